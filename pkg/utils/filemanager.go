// =============================================================================
// Claims Consolidator - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the pipeline:
//   - Directory management (archives, extracted filings, outputs)
//   - Recursive source discovery with a deterministic order
//   - Run identifiers
//   - The run summary log written next to the outputs
//
// LAYOUT:
//   archives/   downloaded quarterly zip files
//   extracted/  one directory per archive, named after its stem
//   output/     consolidated, enriched, validated and aggregated tables
//
// =============================================================================

package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager knows the working directories of a run.
type FileManager struct {
	// ArchivesDir holds the downloaded archives.
	ArchivesDir string

	// ExtractDir holds the extracted filings.
	ExtractDir string

	// OutputDir receives every table the pipeline writes.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(archivesDir, extractDir, outputDir string) *FileManager {
	return &FileManager{
		ArchivesDir: archivesDir,
		ExtractDir:  extractDir,
		OutputDir:   outputDir,
	}
}

// EnsureDirectories creates all required directories if they don't exist.
//
// RETURNS:
//   - An error if any directory cannot be created.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.ArchivesDir, fm.ExtractDir, fm.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// OutputPath joins a file name to the output directory.
func (fm *FileManager) OutputPath(name string) string {
	return filepath.Join(fm.OutputDir, name)
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverFiles walks root recursively and returns the regular files accepted
// by the filter, sorted by path. A nil filter accepts every file.
//
// PARAMETERS:
//   - root: The directory to walk. A missing root yields no files.
//   - accept: Reports whether a path should be returned.
//
// RETURNS:
//   - The matching paths in lexical order.
//   - An error if the tree cannot be walked.
func DiscoverFiles(root string, accept func(path string) bool) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if accept == nil || accept(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}

// NewRunID returns a unique identifier for one pipeline run.
func NewRunID() string {
	return uuid.New().String()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a pipeline run.
type ProcessingSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	// Reading
	TotalFiles   int
	ReadFiles    int
	SkippedFiles int
	TotalRows    int
	Events       int
	DroppedRows  int

	// Consolidation
	Entries         int
	Inconsistencies int

	// Enrichment
	MatchedRows   int
	UnmatchedRows int

	// Validation
	InvalidRows int
	FieldErrors int

	// Aggregation
	Groups int

	Outputs         []string
	FailedFilesList []FailedFileInfo
}

// FailedFileInfo contains information about a skipped source file.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a run summary to a text file in outputDir.
//
// PARAMETERS:
//   - summary: The run summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("run_summary_%s.txt", timestamp))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", outputDir, err)
	}
	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "Claims Consolidator - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n\n"+
		"Statistics:\n"+
		"  Source Files:       %d\n"+
		"  Read:               %d\n"+
		"  Skipped:            %d\n"+
		"  Rows:               %d\n"+
		"  Events:             %d\n"+
		"  Dropped Rows:       %d\n"+
		"  Entries:            %d\n"+
		"  Inconsistencies:    %d\n"+
		"  Registry Matches:   %d\n"+
		"  Registry Misses:    %d\n"+
		"  Invalid Rows:       %d\n"+
		"  Field Errors:       %d\n"+
		"  Groups:             %d\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.TotalFiles,
		summary.ReadFiles,
		summary.SkippedFiles,
		summary.TotalRows,
		summary.Events,
		summary.DroppedRows,
		summary.Entries,
		summary.Inconsistencies,
		summary.MatchedRows,
		summary.UnmatchedRows,
		summary.InvalidRows,
		summary.FieldErrors,
		summary.Groups)

	if len(summary.Outputs) > 0 {
		writer.WriteString("Outputs:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, out := range summary.Outputs {
			fmt.Fprintf(writer, "  %s\n", out)
		}
		writer.WriteString("\n")
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Skipped Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}
	return summaryPath, nil
}
