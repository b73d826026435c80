package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/appid"
	"github.com/creditgate/creditgate/internal/config"
	"github.com/creditgate/creditgate/internal/observability"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           filepath.Base(os.Args[0]),
	Short:         "Credit line gating service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early so config loading does not emit metrics to
	// stdout. Server mode initializes proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	identity := appid.Get()
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
		rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", identity.BinaryName, identity.Description)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName))
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment (default .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig prepares the CLI logger. Configuration itself is loaded per
// command so that a reload re-reads the same sources.
func initConfig() {
	observability.InitCLILogger(appid.Get().BinaryName, verbose)
}

// loadOptions returns the config sources selected by the global flags.
func loadOptions() config.Options {
	opts := config.Options{ConfigFile: strings.TrimSpace(cfgFile)}
	if path := strings.TrimSpace(envFile); path != "" {
		opts.EnvFiles = []string{path}
	}
	return opts
}

// loadConfig loads the effective configuration, optionally with overrides.
func loadConfig(ctx context.Context, overrides map[string]any) (*config.Config, error) {
	opts := loadOptions()
	opts.Overrides = overrides

	cfg, err := config.Load(ctx, opts)
	if err != nil {
		return nil, err
	}

	if verbose && observability.CLILogger != nil {
		observability.CLILogger.Debug("Configuration loaded",
			zap.String("config_file", opts.ConfigFile),
			zap.String("store_driver", cfg.Store.Driver))
	}
	return cfg, nil
}
