// Package observability provides OpenTelemetry-based metrics extensions
// for Vigil. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for error records (by kind), node deaths, worker
// exits, task failures, and actor lifecycle events.
//
// For per-invocation tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
