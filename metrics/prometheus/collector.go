// Package prometheus provides a server.MetricsCollector backed by
// Prometheus.
package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gonzalop/telnet/server"
)

// Collector is the Prometheus implementation of server.MetricsCollector.
type Collector struct {
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	connections     *prometheus.CounterVec
	authentications *prometheus.CounterVec
	bytes           *prometheus.CounterVec
}

var _ server.MetricsCollector = (*Collector)(nil)

// New registers the telnet metrics with reg and returns their collector.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "telnet_commands_total",
				Help: "Total number of dispatched command lines by pattern and outcome",
			},
			[]string{"pattern", "status"}, // status: "known", "unknown"
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "telnet_command_duration_milliseconds",
				Help: "Duration of command handlers in milliseconds",
				Buckets: []float64{
					0.01, // 10us - prompt only
					0.1,  // 100us
					1,    // 1ms
					10,   // 10ms
					100,  // 100ms
					1000, // 1s - slow handler
				},
			},
			[]string{"pattern"},
		),
		connections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "telnet_connections_total",
				Help: "Total number of connection attempts by outcome",
			},
			[]string{"status", "reason"},
		),
		authentications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "telnet_authentications_total",
				Help: "Total number of checked logins by outcome",
			},
			[]string{"status"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "telnet_bytes_total",
				Help: "Total bytes received and sent",
			},
			[]string{"direction"}, // "in", "out"
		),
	}
}

// RecordCommand implements server.MetricsCollector.
func (c *Collector) RecordCommand(pattern string, known bool, duration time.Duration) {
	status := "known"
	if !known {
		status = "unknown"
	}
	c.commands.WithLabelValues(pattern, status).Inc()
	if known {
		c.commandDuration.WithLabelValues(pattern).Observe(float64(duration) / float64(time.Millisecond))
	}
}

// RecordConnection implements server.MetricsCollector.
func (c *Collector) RecordConnection(accepted bool, reason string) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	c.connections.WithLabelValues(status, reason).Inc()
}

// RecordAuthentication implements server.MetricsCollector. The user is not
// used as a label to keep cardinality bounded.
func (c *Collector) RecordAuthentication(success bool, _ string) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.authentications.WithLabelValues(status).Inc()
}

// RecordBytes implements server.MetricsCollector.
func (c *Collector) RecordBytes(direction string, n int) {
	c.bytes.WithLabelValues(direction).Add(float64(n))
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
