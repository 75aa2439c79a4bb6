package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gonzalop/telnet/internal/config"
	"github.com/gonzalop/telnet/internal/democonsole"
	"github.com/gonzalop/telnet/internal/logger"
	"github.com/gonzalop/telnet/metrics/prometheus"
	"github.com/gonzalop/telnet/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo console",
	Long: `Serve the demo console until interrupted.

Changes to the configuration file are picked up while running. The log level
applies immediately; other settings take effect on the next start.

Examples:
  # Serve with the default configuration
  telnetd serve

  # Serve on another address
  telnetd serve --addr :2323

  # Debug logging through the environment
  TELNETD_LOGGING_LEVEL=DEBUG telnetd serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	changes := make(chan *config.Config, 1)
	reloadErrs := make(chan error, 1)

	cfg, err := config.Watch(GetConfigFile(),
		func(next *config.Config) {
			// Only the latest configuration matters.
			select {
			case <-changes:
			default:
			}
			changes <- next
		},
		func(err error) {
			select {
			case reloadErrs <- err:
			default:
			}
		},
	)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log, ln, changes, reloadErrs)
}

// serve runs the console on ln until ctx is done or the server fails.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, ln net.Listener,
	changes <-chan *config.Config, reloadErrs <-chan error) error {
	opts := serverOptions(cfg.Server, log)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := promclient.NewRegistry()
		opts = append(opts, server.WithMetricsCollector(prometheus.New(reg)))
		metricsSrv = startMetricsServer(cfg.Metrics.Addr, reg, log)
	}

	srv, err := server.NewServer(ln.Addr().String(), newConsole(cfg.Console), opts...)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	log.Info("telnetd_started",
		"addr", ln.Addr().String(),
		"version", Version,
		"metrics", cfg.Metrics.Enabled,
		"log_level", cfg.Logging.Level)

	for {
		select {
		case next := <-changes:
			applyReload(log, cfg, next)

		case err := <-reloadErrs:
			log.Warn("config_reload_failed", "error", err)

		case err := <-errCh:
			stopMetricsServer(metricsSrv, cfg.Server.ShutdownTimeout, log)
			if errors.Is(err, server.ErrServerClosed) {
				return nil
			}
			return err

		case <-ctx.Done():
			log.Info("shutdown_started", "timeout", cfg.Server.ShutdownTimeout)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			err := srv.Shutdown(shutdownCtx)
			<-errCh
			stopMetricsServer(metricsSrv, cfg.Server.ShutdownTimeout, log)
			if err != nil {
				log.Error("shutdown_incomplete", "error", err, "active_connections", srv.ActiveConnections())
				return err
			}
			log.Info("shutdown_complete")
			return nil
		}
	}
}

// newConsole derives the served console from the demo console, applying
// the configured prompts and extra logins.
func newConsole(cfg config.ConsoleConfig) *server.Type {
	t := server.NewType("telnetd", democonsole.NewType())
	if cfg.CommandPrompt != "" {
		t.HasOption(server.OptionCommandPrompt, cfg.CommandPrompt)
	}
	if cfg.LoginPrompt != "" {
		t.HasOption(server.OptionLoginPrompt, cfg.LoginPrompt)
	}
	if cfg.PasswordPrompt != "" {
		t.HasOption(server.OptionPasswordPrompt, cfg.PasswordPrompt)
	}
	for _, l := range cfg.Logins {
		t.HasLogin(l.Username, l.Password, server.Role(l.Role))
	}
	return t
}

func serverOptions(cfg config.ServerConfig, log *logger.Logger) []server.Option {
	return []server.Option{
		server.WithLogger(log.Logger),
		server.WithMaxIdleTime(cfg.MaxIdleTime),
		server.WithReadTimeout(cfg.ReadTimeout),
		server.WithWriteTimeout(cfg.WriteTimeout),
		server.WithMaxConnections(cfg.MaxConnections, cfg.MaxConnectionsPerIP),
		server.WithOutputRateLimit(cfg.OutputRateLimit),
	}
}

// applyReload applies what can change at runtime and reports the rest.
func applyReload(log *logger.Logger, current, next *config.Config) {
	if next.Logging.Level != current.Logging.Level {
		if err := log.SetLevel(next.Logging.Level); err != nil {
			log.Warn("log_level_change_failed", "level", next.Logging.Level, "error", err)
		} else {
			log.Info("log_level_changed", "from", current.Logging.Level, "to", next.Logging.Level)
			current.Logging.Level = next.Logging.Level
		}
	}
	if next.Server != current.Server || next.Metrics != current.Metrics {
		log.Warn("config_change_requires_restart")
	}
}

func startMetricsServer(addr string, reg *promclient.Registry, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", "addr", addr, "error", err)
		}
	}()
	log.Info("metrics_server_started", "addr", addr)
	return srv
}

func stopMetricsServer(srv *http.Server, timeout time.Duration, log *logger.Logger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("metrics_server_shutdown_failed", "error", err)
	}
}
