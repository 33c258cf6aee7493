/*
Package monitoring provides Prometheus metrics for the proxy core.

# Overview

Collectors cover three areas:

  - Cookie synchronization: batches, fan-out routes, send outcomes
    (ack, exhausted, removed, abandoned), retries and pending sends
  - Origin policy: decisions labelled by the rule that decided them
  - HTTP and WebSocket traffic of the control server

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", monitoring.Handler(reg))

Every recording method accepts a nil receiver, so components can be built
without metrics in tests.
*/
package monitoring
