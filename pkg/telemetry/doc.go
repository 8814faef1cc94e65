// Package telemetry groups the observability packages used by the wagf
// binary:
//
//   - logging: slog setup with run and span ids and credential redaction
//   - metrics: a Prometheus collector that observes broker decisions
//   - tracing: an OpenTelemetry tracer provider for decision spans
//
// None of them is required by the governance core. The broker logs through
// slog.Default, starts spans on the global tracer provider and reports to
// an optional Observer, so each concern is switched on by the caller.
package telemetry
