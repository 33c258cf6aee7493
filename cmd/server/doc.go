// Package main runs the crossframe proxy server.
//
// The server loads one page, a frame tree described by a scenario file, and
// keeps the cookies of all its windows synchronized while relaying the XHRs
// those windows issue.
//
// Routes:
//   - /xhr: XHR relay with cross-origin read checks
//   - /ws?window=<name>: WebSocket bridge for remote frames
//   - /page: control API (list windows, write cookies, run scripts, add or
//     remove frames)
//   - /health, /metrics
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags override env vars
//
// Usage:
//
//	./server -scenario page.yaml -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -scenario page.html -origin https://app.example.com
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
