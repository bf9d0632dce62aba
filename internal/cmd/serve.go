package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/appid"
	"github.com/formscout/formscout/internal/config"
	errwrap "github.com/formscout/formscout/internal/errors"
	"github.com/formscout/formscout/internal/observability"
	"github.com/formscout/formscout/internal/server"
	"github.com/formscout/formscout/internal/server/handlers"
)

const (
	defaultMetricsPort     = 9090
	defaultShutdownTimeout = 10 * time.Second
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP lookup API",
	Long: `Start the HTTP lookup API with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload rate limit overrides and safety margin

The server drains in-flight lookups and flushes logs on shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (default from config)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default from config)")
	serveCmd.Flags().Bool("no-cache", false, "Disable the result cache for this server")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identity := appid.Get()
	namespace := identity.TelemetryNamespace()

	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	// The server logger must exist before bootstrap so the resolver and
	// advisor pick it up.
	preCfg, err := config.Load(ctx)
	if err != nil {
		return loadConfigError(err)
	}
	observability.InitServerLogger(identity.BinaryName, preCfg.Logging.Level, namespace)
	logger := observability.ServerLogger

	rt, err := bootstrap(ctx, bootstrapOptions{noCache: noCache, withAdvisor: true})
	if err != nil {
		return err
	}
	cfg := rt.cfg

	host, port, err := listenAddress(cmd, cfg.Server)
	if err != nil {
		_ = rt.Close()
		return err
	}

	metricsPort := cfg.Metrics.Port
	if metricsPort == 0 {
		metricsPort = defaultMetricsPort
	}
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(observability.MetricsOptions{Namespace: namespace, Port: metricsPort}); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			_ = rt.Close()
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", host),
		zap.Int("port", port),
		zap.Int("sources", rt.registry.Len()),
		zap.Bool("cache", rt.resolver.UseCache),
		zap.Bool("advisor", rt.advisor.Enabled()),
		zap.Int("metrics_port", metricsPort))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("sources", handlers.RegistryChecker(rt.registry))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	if rt.store != nil {
		hm.RegisterChecker("cache_store", handlers.StoreChecker(rt.store))
	}

	srv := server.New(server.Options{
		Host:         host,
		Port:         port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Forms: &handlers.Forms{
			Resolver: rt.resolver,
			Advisor:  rt.advisor,
		},
		MetricsPort: metricsPort,
		Pprof:       cfg.Debug.PprofEnabled,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	// Shutdown handlers run LIFO: HTTP server, then the store, then the
	// metrics exporter, then the logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				logger.Warn("Metrics exporter stop failed", zap.Error(err))
			}
			return nil
		})
	}

	signals.OnShutdown(func(ctx context.Context) error {
		if err := rt.Close(); err != nil {
			logger.Warn("Cache store close failed", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading rate limits")

		reloaded, err := config.Load(ctx)
		if err != nil {
			logger.Error("Failed to reload config",
				zap.String("file", config.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		rt.limiter.ApplyOverrides(reloaded.RateLimits)
		rt.limiter.ApplySafetyMargin(reloaded.RateLimitMargin)

		logger.Info("Rate limits reloaded",
			zap.String("file", config.ConfigFileUsed()),
			zap.Int("overrides", len(reloaded.RateLimits)),
			zap.Float64("margin", reloaded.RateLimitMargin))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// listenAddress prefers explicit flags over configuration.
func listenAddress(cmd *cobra.Command, cfg config.ServerConfig) (string, int, error) {
	host, port := cfg.Host, cfg.Port
	if cmd.Flags().Changed("host") {
		value, err := cmd.Flags().GetString("host")
		if err != nil {
			return "", 0, err
		}
		host = value
	}
	if cmd.Flags().Changed("port") {
		value, err := cmd.Flags().GetInt("port")
		if err != nil {
			return "", 0, err
		}
		port = value
	}
	if port < 0 || port > 65535 {
		return "", 0, loadConfigError(errwrap.NewInvalidInputError("port must be between 0 and 65535"))
	}
	return host, port, nil
}
