// Package instrumentation provides OpenTelemetry metrics for the
// extraction pipeline: counters for messages and attachments by outcome
// and duration histograms for Gmail API calls and pipeline stages.
//
// Metrics are exported through the Prometheus default registry; the CLI
// optionally serves them on a /metrics endpoint during a run. A zero
// *Metrics is a valid no-op recorder, so instrumented code paths work
// unchanged when metrics are disabled.
package instrumentation
