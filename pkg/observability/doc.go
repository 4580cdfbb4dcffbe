// Package observability wires the operational surface of the auth service:
// structured logging, Prometheus metrics for the login and session
// lifecycle, dependency health probes, and optional OTLP trace export.
//
// Metrics deliberately count outcomes rather than users. No metric label
// ever carries a subject identifier, token or session ID.
package observability
