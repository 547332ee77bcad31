package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/procreport/internal/config"
	"github.com/hugo-lorenzo-mato/procreport/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	// Populated by initConfig before any subcommand runs.
	appConfig *config.Config
	appLoader *config.Loader

	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "procreport",
	Short: "Diagnostic process reports for an event-loop runtime",
	Long: `procreport hosts an event loop with a diagnostic report subsystem.

Reports are written on uncaught panics, fatal errors, a configurable signal
(SIGUSR2 by default) or on request through the CLI and the HTTP API. Each
report is a plain text file with the engine stack, native goroutine stacks,
heap and resource usage, open handles and system information.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion injects build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: .procreport.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
}

// initConfig loads configuration into a fresh viper instance so flags given to
// one invocation do not leak into the next.
func initConfig(cmd *cobra.Command) error {
	v := viper.New()
	flags := cmd.Root().PersistentFlags()
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		_ = v.BindPFlag("log.level", f)
	}
	if f := flags.Lookup("log-format"); f != nil && f.Changed {
		_ = v.BindPFlag("log.format", f)
	}

	loader := config.NewLoaderWithViper(v)
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	appConfig, appLoader = cfg, loader
	return nil
}

func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:  appConfig.Log.Level,
		Format: appConfig.Log.Format,
	})
}
