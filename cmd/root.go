// =============================================================================
// Claims Consolidator - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (consolidator)
//   ├── fetch        download the latest quarterly archives
//   ├── extract      unpack archives, one directory per archive
//   ├── scan         list filings that mention events anywhere
//   ├── consolidate  filings -> consolidated.csv
//   ├── enrich       consolidated.csv + registry -> enriched.csv
//   ├── validate     enriched.csv -> validated.csv + validation_errors.csv
//   ├── aggregate    validated.csv -> aggregated.csv
//   ├── run          every stage from consolidate to packaging
//   ├── serve        read-only query API
//   └── version
//
// CONFIGURATION:
//   The root command loads the YAML configuration (plus CONSOLIDATOR_*
//   environment overrides) and builds the logger before any subcommand runs.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// cfg and logger are set by the root command before any subcommand runs.
var (
	cfg         *config.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "consolidator",
	Short: "Claims Consolidator - consolidate and validate quarterly claims expenses",
	Long: `Claims Consolidator reads the quarterly financial filings published by the
regulator, keeps the claims/events expense lines, and produces per-filer,
per-quarter totals together with an audit trail of every anomaly found.

Key Features:
  - CSV and XLSX filings with unknown delimiters and column names
  - Locale-aware amounts ("1.234,56" and "1234.56")
  - Registry enrichment and CNPJ check-digit validation
  - Cross-quarter statistics per filer and region
  - Parallel, reproducible file reading

Example Usage:
  consolidator fetch                       # Download the latest 3 quarters
  consolidator extract                     # Unpack them
  consolidator run                         # Run every stage
  consolidator aggregate --top 10          # Print the top 10 groups
  consolidator serve --config ./prod.yaml  # Serve the query API`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}

		l, closeFn, err := logging.New(loaded.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		cfg = loaded
		logger = l
		closeLogger = closeFn
		slog.SetDefault(logger)
		return nil
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLogger()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context, which stops downloads, file reading and the query service.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file (a missing file means defaults)",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
