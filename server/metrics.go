package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// Implementations can send metrics to monitoring systems like Prometheus,
// StatsD, DataDog, etc. The metrics/prometheus package provides one.
//
// Methods are called from connection goroutines while input is being
// processed and should not block.
type MetricsCollector interface {
	// RecordCommand records one dispatched line. pattern is the source text
	// of the matching command, or "" if nothing matched. known is false for
	// lines reported to the not-known hook.
	RecordCommand(pattern string, known bool, duration time.Duration)

	// RecordConnection records a connection attempt.
	// reason provides context (e.g., "global_limit_reached", "per_ip_limit_reached", "accepted").
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a checked login.
	RecordAuthentication(success bool, user string)

	// RecordBytes records traffic; direction is "in" or "out".
	RecordBytes(direction string, n int)
}
