package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/user/collector/internal/config"
	"github.com/user/collector/internal/logging"
)

var (
	configPath string
	dbPath     string
	logFormat  string
	verbose    bool
	assumeYes  bool

	cfg    *config.Config
	logger *slog.Logger
)

// Execute runs the root command
func Execute(ctx context.Context, version string) error {
	return newRootCommand(version).ExecuteContext(ctx)
}

func newRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "collector",
		Short: "Template-driven data acquisition engine",
		Long: color.CyanString(`collector - template-driven data acquisition

Define templates that describe how to fill a table from polled endpoints,
static values and formulas, then run them once or on a schedule.`),
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "collector.yaml", "Path to YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to SQLite database (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Skip confirmation prompts")

	// Add subcommands
	rootCmd.AddCommand(newDBCommand())
	rootCmd.AddCommand(newSourceCommand())
	rootCmd.AddCommand(newTemplateCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newAutoRunCommand())
	rootCmd.AddCommand(newTableCommand())

	return rootCmd
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if dbPath != "" {
		c.Database.Path = dbPath
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cfg = c
	logger = logging.Setup(cfg.Log.Format, verbose)
	slog.SetDefault(logger)

	return nil
}
