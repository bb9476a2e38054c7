// Package observability builds the process logger and the Prometheus
// metrics for the assistant.
package observability
