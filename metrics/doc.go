// Package metrics exports server activity to Prometheus.
//
// Prometheus implements the metrics collector interfaces of the server and
// the root package, and StartHTTPServer exposes its registry at /metrics.
package metrics
