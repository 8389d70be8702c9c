// Package middleware provides composable middleware for invocation
// execution inside the worker sandbox.
//
// A [Middleware] is a function that wraps an invocation handler. Middleware
// are composed into a chain using [Chain] and applied around each
// execution. They are applied right-to-left: the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] — logs invocation name, duration, and outcome
//   - [Recover] — catches panics and converts them to errors with a stack
//   - [Timeout] — cancels the invocation context after its declared timeout
//   - [Tracing] — wraps execution in an OpenTelemetry span
//   - [Metrics] — records per-invocation duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
