// Package observability exposes dialog activity as Prometheus metrics.
//
// Metrics plugs into the engine in two places: as LifecycleHooks (steps,
// retries, confirmations, completions) and as a telemetry sink (custom
// events by name).
package observability
