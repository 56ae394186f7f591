// Package observability provides structured logging, Prometheus metrics,
// and health checking for the Tenancy service.
//
// Logging is JSON over log/slog. Metrics cover the HTTP surface plus the
// domain counters operators actually watch: organizations provisioned and
// invitation lifecycle transitions. The health checker probes PostgreSQL
// and Redis and backs the k8s-style liveness/readiness endpoints served on
// the separate health port.
package observability
