package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dotcommander/vbook/internal/config"
	"github.com/dotcommander/vbook/internal/core"
	"github.com/dotcommander/vbook/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	metricsOut string
}

var rootCmd = &cobra.Command{
	Use:   "vbook",
	Short: "Draft, review and illustrate a serialized novel",
	Long: "vbook drives a language model through draft, critique and refinement\n" +
		"until each act and chapter clears its quality bar or is flagged for a human.\n" +
		"All progress lives in the record store, so any phase can be re-run.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "Config file (default $VBOOK_CONFIG or ~/.config/vbook/config.yaml)")
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format: text or json")
	f.StringVar(&rootFlags.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}

var loadedConfig *config.Config

func setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, rootFlags.logFormat, cmd.ErrOrStderr())
	slog.SetDefault(slog.Default().With("run_id", uuid.NewString()))

	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loadedConfig = cfg

	logging.New("cli").Debug("configuration loaded",
		"command", cmd.Name(),
		"database", cfg.Paths.Database,
		"model", cfg.AI.Model,
		"units_per_collection", cfg.Story.UnitsPerCollection)
	return nil
}

func flushMetrics() error {
	if rootFlags.metricsOut == "" {
		return nil
	}
	if err := core.WriteMetrics(rootFlags.metricsOut); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
