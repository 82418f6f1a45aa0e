// Package observability builds the structured logger and the Prometheus
// metrics shared by the workdesk backend.
//
// The logger is a plain *zap.Logger configured from LOG_LEVEL and
// LOG_FORMAT. Metrics live in a private registry so tests can create as
// many instances as they like; a nil *Metrics is valid and records nothing.
package observability
