// =============================================================================
// Claims Consolidator - Stage Commands
// =============================================================================
//
// Each stage can be run on its own against the files the previous stage left
// in the output directory, or all together with 'run'.
//
// COMMAND USAGE:
//   consolidator consolidate [--dir DIR]
//   consolidator enrich
//   consolidator validate
//   consolidator aggregate [--top N]
//   consolidator run
//   consolidator scan [--dir DIR]
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/claims-consolidator/internal/pipeline"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
	"github.com/ginjaninja78/claims-consolidator/internal/stats"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// sourceDir overrides paths.extract_dir for consolidate and scan.
var sourceDir string

// top prints the N largest groups after aggregation.
var top int

func newPipeline() (*pipeline.Pipeline, error) {
	p := pipeline.New(cfg, logger, nil)
	if err := p.Files().EnsureDirectories(); err != nil {
		return nil, err
	}
	return p, nil
}

func extractRoot() string {
	if sourceDir != "" {
		return sourceDir
	}
	return cfg.Paths.ExtractDir
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate claims expenses from the extracted filings",
	Long: `consolidate reads every CSV, TXT and XLSX file under the extraction
directory, keeps the rows describing claims/events, and writes one total per
filer and quarter to consolidated.csv. Rows that cannot be trusted are listed
in inconsistencies.csv. Files that cannot be read are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		start := time.Now()
		result, err := p.Consolidate(cmd.Context(), extractRoot())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range result.Files {
			if f.Skipped() {
				fmt.Fprintf(out, "  ✗ %s: %v\n", filepath.Base(f.Path), f.Err)
				continue
			}
			fmt.Fprintf(out, "  ✓ %s (%d events)\n", filepath.Base(f.Path), len(f.Events))
		}

		fmt.Fprintln(out, "\n=== Consolidation Complete ===")
		fmt.Fprintf(out, "Total files:      %d\n", len(result.Files))
		fmt.Fprintf(out, "Read:             %d\n", result.ReadFiles())
		fmt.Fprintf(out, "Entries:          %d\n", len(result.Entries))
		fmt.Fprintf(out, "Inconsistencies:  %d\n", len(result.Inconsistencies))
		fmt.Fprintf(out, "Output:           %s\n", result.ConsolidatedPath)
		fmt.Fprintf(out, "Time elapsed:     %s\n", time.Since(start))
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Join consolidated.csv to the filer registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		summary, err := p.Enrich(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rows: %d  Matched: %d  Unmatched: %d\n",
			summary.Rows, summary.Matched, summary.Unmatched)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate enriched.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		summary, err := p.Validate()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rows: %d  Invalid rows: %d  Field errors: %d\n",
			summary.Rows, summary.InvalidRows, summary.FieldErrors)
		return nil
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Compute per-filer, per-region statistics from validated.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		results, summary, err := p.Aggregate()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Rows: %d  Used: %d  Skipped: %d  Groups: %d\n",
			summary.Rows, summary.Used, summary.Skipped, summary.Groups)
		return printTop(out, results)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage over the extracted filings",
	Long: `run consolidates, enriches, validates and aggregates in order, packages
the consolidated and aggregated tables, and writes a run summary to the
output directory. The filer registry is downloaded first if it is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		summary, err := p.Run(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "=== Run Complete ===")
		fmt.Fprintf(out, "Run ID:           %s\n", summary.RunID)
		fmt.Fprintf(out, "Total files:      %d\n", summary.TotalFiles)
		fmt.Fprintf(out, "Skipped files:    %d\n", summary.SkippedFiles)
		fmt.Fprintf(out, "Entries:          %d\n", summary.Entries)
		fmt.Fprintf(out, "Inconsistencies:  %d\n", summary.Inconsistencies)
		fmt.Fprintf(out, "Invalid rows:     %d\n", summary.InvalidRows)
		fmt.Fprintf(out, "Groups:           %d\n", summary.Groups)
		fmt.Fprintf(out, "Time elapsed:     %s\n", summary.EndTime.Sub(summary.StartTime))
		for _, o := range summary.Outputs {
			fmt.Fprintf(out, "  -> %s\n", o)
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List filings that mention claims/events in any cell",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := pipeline.New(cfg, logger, nil)
		result, err := p.Scan(cmd.Context(), extractRoot())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range result.Matching {
			fmt.Fprintln(out, m)
		}
		fmt.Fprintf(out, "%d of %d file(s) mention events, %d skipped\n",
			len(result.Matching), result.Files, len(result.Skipped))
		return nil
	},
}

func printTop(w io.Writer, results []records.Statistic) error {
	if top <= 0 || len(results) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return stats.FormatTable(w, results, top)
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.AddCommand(consolidateCmd, enrichCmd, validateCmd, aggregateCmd, runCmd, scanCmd)

	for _, c := range []*cobra.Command{consolidateCmd, scanCmd} {
		c.Flags().StringVar(
			&sourceDir,
			"dir",
			"",
			"Directory to read filings from (default paths.extract_dir)",
		)
	}

	aggregateCmd.Flags().IntVar(
		&top,
		"top",
		0,
		"Print the N groups with the largest total",
	)
}
