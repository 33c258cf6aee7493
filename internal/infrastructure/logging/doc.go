// Package logging provides structured logging using uber/zap.
//
// Two modes are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components receive a named *zap.Logger from Logger.Component and log
// window ids and message ids as structured fields.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	sync := logger.Component("windowsync")
//	sync.Debug("sync message sent", zap.Int("id", 3))
package logging
