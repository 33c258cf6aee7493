// Package config loads server settings from environment variables with
// envconfig. Every field has a default; Load fails only on malformed values
// or on sync and proxy settings that cannot work.
package config
