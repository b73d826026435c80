package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/creditgate/creditgate/internal/errors"
	"github.com/creditgate/creditgate/internal/observability"
)

const healthStoreTimeout = 5 * time.Second

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the configuration loads and the approval store is reachable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.CLILogger
		if logger == nil {
			return errwrap.NewConfigInvalidError("Logger not initialized")
		}
		logger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			logger.Error("❌ FAIL: Version information missing")
			return errwrap.NewConfigInvalidError("Version information missing")
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		// Check 2: Configuration loads and validates
		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			logger.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid")
		}
		logger.Info("✅ Configuration valid")

		// Check 3: Approval store reachable
		ctx, cancel := context.WithTimeout(cmd.Context(), healthStoreTimeout)
		defer cancel()
		db, err := openStore(ctx, cfg)
		if err != nil {
			logger.Error("❌ FAIL: Approval store unavailable", zap.String("driver", cfg.Store.Driver), zap.Error(err))
			return errwrap.WrapUnavailable(cmd.Context(), err, "approval store unavailable")
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.Ping(ctx); err != nil {
			logger.Error("❌ FAIL: Approval store ping failed", zap.Error(err))
			return errwrap.WrapUnavailable(cmd.Context(), err, "approval store unavailable")
		}
		logger.Info("✅ Approval store reachable", zap.String("driver", db.Driver()))

		logger.Info("")
		logger.Info("✅ All health checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
