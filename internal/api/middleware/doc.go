// Package middleware provides the gin middleware of the control API.
//
//   - CORS: cross-origin access to /page and /health for test runners
//   - RateLimit: per-IP token buckets, idle clients evicted after IdleTTL
//
// The /xhr relay is mounted outside CORS; its responses are governed by the
// proxied page's origin instead.
//
// Example Usage:
//
//	api := router.Group("/", middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
