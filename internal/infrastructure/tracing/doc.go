/*
Package tracing gives every HTTP request a trace and span id and logs the
finished span.

Spans carry tags set by the handlers: the XHR relay records the destination
and the origin rule that decided the response.

# Usage

	tracer := tracing.New(logger)
	defer tracer.Close()
	router.Use(tracing.HTTPMiddleware(tracer))

	// inside a handler
	tracing.SpanFromContext(c.Request.Context()).SetTag("origin.rule", "same-origin")

# Trace Format

Traces propagate through the X-Trace-ID and X-Span-ID headers.
*/
package tracing
