package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/formscout/formscout/internal/config"
	errwrap "github.com/formscout/formscout/internal/errors"
	"github.com/formscout/formscout/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify configuration loads, the source registry builds and the cache store (when enabled) is reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration failed to load", err)
			return
		}
		logger.Info("✅ Configuration loaded", zap.String("file", config.ConfigFileUsed()))

		registry, err := buildRegistry(cfg.Sources)
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Source registry invalid", err)
			return
		}
		logger.Info("✅ Source registry ready", zap.Int("sources", registry.Len()))

		if cfg.Cache.Enabled {
			db, err := openStore(ctx, cfg)
			if err != nil {
				ExitWithCode(logger, foundry.ExitFailure, "Cache store unavailable", err)
				return
			}
			pingErr := db.Ping(ctx)
			_ = db.Close()
			if pingErr != nil {
				ExitWithCode(logger, foundry.ExitFailure, "Cache store unavailable", pingErr)
				return
			}
			logger.Info("✅ Cache store reachable", zap.String("driver", db.Driver()))
		} else {
			logger.Info("Cache disabled; skipping store check")
		}

		if cfg.Advisor.Enabled() {
			logger.Info("✅ Advisor credentials present", zap.String("model", cfg.Advisor.Model))
		}

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
