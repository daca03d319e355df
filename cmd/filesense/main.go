// Command filesense indexes files with AI-derived metadata and serves hybrid
// search over the catalog via MCP, HTTP or the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/dshills/filesense/internal/app"
	"github.com/dshills/filesense/internal/config"
	"github.com/dshills/filesense/internal/logging"
)

var (
	// Persistent flags
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "filesense",
	Short: "AI file catalog with hybrid natural-language search",
	Long: `filesense enriches your files with labels, tags, captions, extracted text and
embeddings, then answers natural-language queries such as
"screenshots from last week" or "receipts tag:travel".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file (default ./"+config.DefaultFile+" if present)")
	flags.StringVar(&dbPath, "db", "", "catalog database path (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flags.StringVar(&logFormat, "log-format", "", "console or json (overrides config)")

	rootCmd.AddCommand(serveMCPCmd, serveHTTPCmd, indexCmd, searchCmd, cleanupCmd, rebuildCmd, statsCmd, versionCmd)
}

// setup loads configuration, applies flag overrides and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout is reserved for MCP and command output
	logger = logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: os.Stderr,
	})
	return nil
}

// openApp builds the application; callers close it
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start filesense: %w", err)
	}
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
