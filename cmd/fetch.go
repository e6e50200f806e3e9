// =============================================================================
// Claims Consolidator - Fetch and Extract Commands
// =============================================================================
//
// COMMAND USAGE:
//   consolidator fetch [--latest N]
//   consolidator extract
//
// fetch walks the publisher's year directories and downloads the N most
// recent quarterly archives into the archives directory. Archives already
// on disk are not downloaded again.
//
// extract unpacks every archive into <extract_dir>/<archive name>/.
//
// =============================================================================

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/claims-consolidator/internal/archive"
	"github.com/ginjaninja78/claims-consolidator/internal/source"
	"github.com/ginjaninja78/claims-consolidator/pkg/utils"
)

// latest overrides fetch.latest from the configuration.
var latest int

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the latest quarterly archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		n := cfg.Fetch.Latest
		if latest > 0 {
			n = latest
		}

		files := utils.NewFileManager(cfg.Paths.ArchivesDir, cfg.Paths.ExtractDir, cfg.Paths.OutputDir)
		if err := files.EnsureDirectories(); err != nil {
			return err
		}

		client := source.NewClient(cfg.Fetch, logger)
		urls, err := client.LatestArchives(cmd.Context(), cfg.Fetch.BaseURL, n)
		if err != nil {
			return fmt.Errorf("failed to list archives: %w", err)
		}
		if len(urls) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No archives found.")
			return nil
		}

		paths, err := client.Download(cmd.Context(), urls, cfg.Paths.ArchivesDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %s\n", filepath.Base(p))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d archive(s) downloaded to %s\n", len(paths), len(urls), cfg.Paths.ArchivesDir)
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Unpack downloaded archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		dirs, err := archive.ExtractAll(cfg.Paths.ArchivesDir, cfg.Paths.ExtractDir)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			logger.Info("archive extracted", "dir", d)
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓ %s\n", d)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d archive(s) extracted\n", len(dirs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(extractCmd)

	fetchCmd.Flags().IntVar(
		&latest,
		"latest",
		0,
		"Number of quarters to download (default from configuration)",
	)
}
