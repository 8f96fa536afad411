/*
Package tracing provides lightweight request and execution tracing.

# Overview

Every HTTP request gets a span, and every guest execution it triggers gets a
child span. The current span travels in the context: sandbox execution logs
carry its trace_id, and bridge calls made by guest code forward it in their
request headers. Completed spans are logged through zap by a background
collector.

# Usage

	tracer := tracing.New("membrane", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.Start(ctx, "sandbox.execute")
	defer span.End()
	span.Set(zap.String("execution_id", result.ExecutionID))

# Propagation

	X-Trace-ID: identifier for the entire request flow
	X-Span-ID:  identifier for the calling operation

Spans are buffered (1000) and dropped with a warning when the buffer is
full, so tracing never blocks a request.
*/
package tracing
