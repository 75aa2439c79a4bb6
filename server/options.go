package server

import (
	"fmt"
	"log/slog"
	"time"
)

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithLogger sets a custom logger for the server and its connections.
// If not specified, slog.Default() is used.
//
// Example with debug logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":2323", console, server.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithMaxIdleTime sets the maximum time a connection can be idle before being closed.
// If not specified, defaults to 5 minutes. Zero disables the idle limit.
func WithMaxIdleTime(duration time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = duration
		return nil
	}
}

// WithReadTimeout sets the deadline for each read from a connection. It
// takes precedence over the idle time when both are set.
func WithReadTimeout(duration time.Duration) Option {
	return func(s *Server) error {
		s.readTimeout = duration
		return nil
	}
}

// WithWriteTimeout sets the deadline for each write to a connection.
func WithWriteTimeout(duration time.Duration) Option {
	return func(s *Server) error {
		s.writeTimeout = duration
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous connections,
// in total and per client IP. Zero means no limit. This is the default.
//
// When a limit is reached, new connections receive a short message and are
// closed.
//
// Example:
//
//	s, _ := server.NewServer(":2323", console,
//	    server.WithMaxConnections(100, 10), // Max 100 total, 10 per IP
//	)
func WithMaxConnections(max, perIP int) Option {
	return func(s *Server) error {
		if max < 0 || perIP < 0 {
			return fmt.Errorf("connection limits must not be negative")
		}
		s.maxConnections = max
		s.maxConnectionsPerIP = perIP
		return nil
	}
}

// WithMetricsCollector sets the collector for connection, login and command
// metrics.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = m
		return nil
	}
}

// WithOutputRateLimit limits how fast text is written to each connection,
// in bytes per second. Zero means unlimited.
func WithOutputRateLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("output rate limit must not be negative")
		}
		s.outputRateLimit = bytesPerSecond
		return nil
	}
}
