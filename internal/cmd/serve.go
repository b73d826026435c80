package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/appid"
	"github.com/creditgate/creditgate/internal/config"
	errwrap "github.com/creditgate/creditgate/internal/errors"
	"github.com/creditgate/creditgate/internal/metrics"
	"github.com/creditgate/creditgate/internal/observability"
	"github.com/creditgate/creditgate/internal/server"
	"github.com/creditgate/creditgate/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// signalHealthChecker implements HealthChecker for signal system
type signalHealthChecker struct{}

func (s signalHealthChecker) CheckHealth(ctx context.Context) error {
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	identity appid.Identity
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.identity.BinaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.identity.EnvPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.identity.ConfigName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the credit decision HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload throttle limits and decision policy

The server drains in-flight requests, closes the approval store and flushes
logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		overrides := serveOverrides(cmd)
		cfg, err := loadConfig(ctx, overrides)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "config load failed")
		}

		identity := appid.Get()
		namespace := identity.TelemetryNamespace()

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		svc, err := buildService(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to open approval store",
				zap.String("driver", cfg.Store.Driver), zap.Error(err))
			return errwrap.WrapUnavailable(ctx, err, "approval store unavailable")
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
			zap.Int("metrics_port", cfg.Metrics.Port),
			zap.String("store_driver", svc.backend.Driver()),
			zap.Bool("admin_enabled", cfg.Admin.Enabled()))

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("signal_handlers", signalHealthChecker{})
		hm.RegisterChecker("app_identity", identityHealthChecker{identity: identity})
		hm.RegisterChecker("approval_store", handlers.PingChecker{Target: svc.backend})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv := server.New(cfg, server.Dependencies{
			Credits:  svc.engine,
			Throttle: svc.throttle,
			Health:   hm,
		})

		svc.throttle.StartJanitor(ctx, cfg.Throttle.SweepInterval, func(removed int) {
			metrics.RecordThrottleSweep(removed, svc.throttle.Len())
			if removed > 0 {
				logger.Debug("Evicted idle throttle state",
					zap.Int("removed", removed), zap.Int("remaining", svc.throttle.Len()))
			}
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout <= 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: server, store, metrics exporter, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		if cfg.Metrics.Enabled {
			signals.OnShutdown(func(ctx context.Context) error {
				if err := observability.ShutdownMetrics(); err != nil {
					logger.Warn("Metrics exporter stop returned error", zap.Error(err))
				}
				return nil
			})
		}

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Closing approval store...")
			if err := svc.Close(); err != nil {
				return errwrap.WrapInternal(ctx, err, "approval store close failed")
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			cancel()
			shutdownCtx, stop := context.WithTimeout(ctx, shutdownTimeout)
			defer stop()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: reloading configuration")
			return reloadService(ctx, svc, overrides)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		metrics.SetServerStartTime(time.Now().Unix())

		errChan := make(chan error, 2)
		go func() {
			logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
			errChan <- srv.Start()
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = svc.Close()
			return errwrap.WrapInternal(ctx, err, "server error")
		}
		return nil
	},
}

// reloadService re-reads configuration and applies the parts that can change
// at runtime. Listener, store and admin settings need a restart.
func reloadService(ctx context.Context, svc *service, overrides map[string]any) error {
	logger := observability.ServerLogger

	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		metrics.RecordConfigReload(false)
		if logger != nil {
			logger.Error("Config reload failed", zap.Error(err))
		}
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	applyRuntimeConfig(svc, cfg)
	metrics.RecordConfigReload(true)

	if logger != nil {
		limits := svc.throttle.Limits()
		logger.Info("Configuration reloaded",
			zap.Int("max_requests_per_window", limits.MaxRequestsPerWindow),
			zap.Duration("window", limits.Window),
			zap.Duration("block_duration", limits.BlockDuration),
			zap.Int("max_attempts", limits.MaxAttempts))
	}
	return nil
}

func applyRuntimeConfig(svc *service, cfg *config.Config) {
	svc.throttle.Reconfigure(throttleLimits(cfg))
	svc.engine.SetPolicy(decisionPolicy(cfg))
}

// serveOverrides returns the listener flags the user set explicitly.
func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["server.host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		overrides["server.port"] = serverPort
	}
	return overrides
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
