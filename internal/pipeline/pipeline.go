// =============================================================================
// Claims Consolidator - Pipeline
// =============================================================================
//
// This file orchestrates the stages of a run. Each stage fully drains its
// input before the next begins:
//
//   1. Consolidate  extracted filings -> consolidated.csv (+ inconsistencies.csv)
//   2. Enrich       consolidated.csv + registry -> enriched.csv
//   3. Validate     enriched.csv -> validated.csv + validation_errors.csv
//   4. Aggregate    validated.csv -> aggregated.csv
//   5. Package      consolidated.zip, aggregated.zip
//
// CONCURRENCY:
//   Only file reading runs in parallel. Every file is read into its own
//   FileResult and the results are merged in sorted path order, so totals are
//   identical to a sequential run whatever the worker count.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ginjaninja78/claims-consolidator/internal/archive"
	"github.com/ginjaninja78/claims-consolidator/internal/classify"
	"github.com/ginjaninja78/claims-consolidator/internal/config"
	"github.com/ginjaninja78/claims-consolidator/internal/consolidate"
	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
	"github.com/ginjaninja78/claims-consolidator/internal/registry"
	"github.com/ginjaninja78/claims-consolidator/internal/source"
	"github.com/ginjaninja78/claims-consolidator/internal/stats"
	"github.com/ginjaninja78/claims-consolidator/internal/tabular"
	"github.com/ginjaninja78/claims-consolidator/internal/validation"
	"github.com/ginjaninja78/claims-consolidator/pkg/utils"
)

// Output file names under the output directory.
const (
	ConsolidatedFile     = "consolidated.csv"
	InconsistenciesFile  = "inconsistencies.csv"
	EnrichedFile         = "enriched.csv"
	ValidatedFile        = "validated.csv"
	ValidationErrorsFile = "validation_errors.csv"
	AggregatedFile       = "aggregated.csv"
	ConsolidatedArchive  = "consolidated.zip"
	AggregatedArchive    = "aggregated.zip"
)

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs the stages against one configuration.
type Pipeline struct {
	cfg        *config.Config
	classifier *classify.Classifier
	files      *utils.FileManager
	logger     *slog.Logger
	metrics    *Metrics

	// Downloader fetches the registry when it is missing. It defaults to a
	// source.Client built from the fetch configuration.
	Downloader registry.Downloader
}

// New creates a Pipeline. A nil metrics value registers a private set.
func New(cfg *config.Config, logger *slog.Logger, metrics *Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Pipeline{
		cfg:        cfg,
		classifier: classify.New(cfg.Classification),
		files:      utils.NewFileManager(cfg.Paths.ArchivesDir, cfg.Paths.ExtractDir, cfg.Paths.OutputDir),
		logger:     logger,
		metrics:    metrics,
		Downloader: source.NewClient(cfg.Fetch, logger),
	}
}

// Files returns the directory layout of the run.
func (p *Pipeline) Files() *utils.FileManager { return p.files }

func (p *Pipeline) tabularOptions() tabular.Options {
	return tabular.Options{
		Encoding:   p.cfg.Source.Encoding,
		Delimiters: p.cfg.Source.DelimiterRunes(),
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// DiscoverSources lists the supported source files under root, sorted.
func DiscoverSources(root string) ([]string, error) {
	return utils.DiscoverFiles(root, tabular.Supported)
}

// =============================================================================
// CONSOLIDATE
// =============================================================================

// ConsolidateResult summarizes the consolidation stage.
type ConsolidateResult struct {
	Files           []FileResult
	Entries         []records.Entry
	Inconsistencies []records.Inconsistency
	Stats           consolidate.Stats

	// ConsolidatedPath is always written; InconsistenciesPath is empty when
	// there were no inconsistencies.
	ConsolidatedPath    string
	InconsistenciesPath string
}

// ReadFiles counts the files that were read successfully.
func (r *ConsolidateResult) ReadFiles() int {
	n := 0
	for _, f := range r.Files {
		if !f.Skipped() {
			n++
		}
	}
	return n
}

// Consolidate reads every source file under root and writes the consolidated
// table and, when needed, the inconsistency log to the output directory.
func (p *Pipeline) Consolidate(ctx context.Context, root string) (*ConsolidateResult, error) {
	defer p.observeStage("consolidate", time.Now())

	paths, err := DiscoverSources(root)
	if err != nil {
		return nil, err
	}
	p.logger.Info("discovered source files", "root", root, "files", len(paths))

	opts := p.tabularOptions()
	files, err := readAll(ctx, paths, p.cfg.Processing.MaxConcurrency, func(path string) FileResult {
		return ReadFile(path, p.classifier, opts)
	})
	if err != nil {
		return nil, err
	}

	agg := consolidate.NewAggregator()
	for _, f := range files {
		p.metrics.observeFile(f)
		if f.Skipped() {
			p.logger.Warn("skipping source file", "path", f.Path, "error", f.Err)
			continue
		}
		attrs := []any{"path", f.Path, "origin", f.Origin.String(), "rows", f.Rows,
			"events", len(f.Events), "dropped", f.Dropped, "duration", f.Duration}
		if f.Delimiter != 0 {
			attrs = append(attrs, "delimiter", string(f.Delimiter))
		}
		p.logger.Debug("read source file", attrs...)
		agg.AddAll(f.Events)
	}

	result := &ConsolidateResult{
		Files:            files,
		Entries:          agg.Entries(),
		Inconsistencies:  agg.Inconsistencies(),
		Stats:            agg.Stats(),
		ConsolidatedPath: p.files.OutputPath(ConsolidatedFile),
	}
	for _, inc := range result.Inconsistencies {
		p.metrics.Inconsistencies.WithLabelValues(string(inc.Kind)).Inc()
	}

	if err := consolidate.WriteConsolidated(result.ConsolidatedPath, result.Entries); err != nil {
		return nil, err
	}

	incPath := p.files.OutputPath(InconsistenciesFile)
	written, err := consolidate.WriteInconsistencies(incPath, result.Inconsistencies)
	if err != nil {
		return nil, err
	}
	if written {
		result.InconsistenciesPath = incPath
	} else if err := os.Remove(incPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale %s: %w", incPath, err)
	}

	p.logger.Info("consolidation complete",
		"files", len(files), "read", result.ReadFiles(),
		"entries", len(result.Entries), "inconsistencies", len(result.Inconsistencies))
	return result, nil
}

// =============================================================================
// ENRICH
// =============================================================================

// LoadRegistry downloads the registry if it is missing and loads it.
func (p *Pipeline) LoadRegistry(ctx context.Context) (*registry.Index, error) {
	rc := p.cfg.Registry
	downloaded, err := registry.EnsureDownloaded(ctx, p.Downloader, rc.URL, rc.Path)
	if err != nil {
		return nil, err
	}
	if downloaded {
		p.logger.Info("registry downloaded", "url", rc.URL, "path", rc.Path)
	}

	idx, err := registry.Load(rc.Path, csvio.ReadOptions{
		Delimiter: rc.RegistryDelimiter(),
		Encoding:  rc.Encoding,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("registry loaded", "path", rc.Path, "filers", idx.Len())
	return idx, nil
}

// Enrich joins the consolidated table to the registry.
func (p *Pipeline) Enrich(ctx context.Context) (registry.EnrichSummary, error) {
	defer p.observeStage("enrich", time.Now())

	idx, err := p.LoadRegistry(ctx)
	if err != nil {
		return registry.EnrichSummary{}, err
	}

	summary, err := registry.Enrich(p.files.OutputPath(ConsolidatedFile), p.files.OutputPath(EnrichedFile), idx)
	if err != nil {
		return summary, err
	}
	p.logger.Info("enrichment complete",
		"rows", summary.Rows, "matched", summary.Matched, "unmatched", summary.Unmatched)
	return summary, nil
}

// =============================================================================
// VALIDATE
// =============================================================================

// Validate validates the enriched table.
func (p *Pipeline) Validate() (validation.Summary, error) {
	defer p.observeStage("validate", time.Now())

	summary, err := validation.ValidateFile(
		p.files.OutputPath(EnrichedFile),
		p.files.OutputPath(ValidatedFile),
		p.files.OutputPath(ValidationErrorsFile),
	)
	if err != nil {
		return summary, err
	}
	for kind, n := range summary.ByKind {
		p.metrics.FieldErrors.WithLabelValues(kind).Add(float64(n))
	}
	if !summary.CheckedIDs {
		p.logger.Warn("input has no CNPJ column, identifiers not checked")
	}
	p.logger.Info("validation complete",
		"rows", summary.Rows, "invalid_rows", summary.InvalidRows, "field_errors", summary.FieldErrors)
	return summary, nil
}

// =============================================================================
// AGGREGATE
// =============================================================================

// Aggregate computes the cross-quarter statistics of the validated table.
func (p *Pipeline) Aggregate() ([]records.Statistic, stats.FileSummary, error) {
	defer p.observeStage("aggregate", time.Now())

	results, summary, err := stats.AggregateFile(
		p.files.OutputPath(ValidatedFile),
		p.files.OutputPath(AggregatedFile),
	)
	if err != nil {
		return nil, summary, err
	}
	p.logger.Info("aggregation complete",
		"rows", summary.Rows, "used", summary.Used, "skipped", summary.Skipped, "groups", summary.Groups)
	return results, summary, nil
}

// =============================================================================
// PACKAGE
// =============================================================================

// Package zips the consolidated and aggregated tables. It returns the
// archives it wrote.
func (p *Pipeline) Package() ([]string, error) {
	defer p.observeStage("package", time.Now())

	pairs := [][2]string{
		{ConsolidatedFile, ConsolidatedArchive},
		{AggregatedFile, AggregatedArchive},
	}

	var written []string
	for _, pair := range pairs {
		src, dst := p.files.OutputPath(pair[0]), p.files.OutputPath(pair[1])
		if err := archive.Package(src, dst); err != nil {
			return written, err
		}
		written = append(written, dst)
	}
	return written, nil
}

// =============================================================================
// RUN
// =============================================================================

// Run executes every stage over the extracted filings and writes the run
// summary log.
func (p *Pipeline) Run(ctx context.Context) (*utils.ProcessingSummary, error) {
	summary := &utils.ProcessingSummary{
		RunID:     utils.NewRunID(),
		StartTime: time.Now(),
	}
	run := *p
	run.logger = p.logger.With("run_id", summary.RunID)
	return run.run(ctx, summary)
}

func (p *Pipeline) run(ctx context.Context, summary *utils.ProcessingSummary) (*utils.ProcessingSummary, error) {
	if err := p.files.EnsureDirectories(); err != nil {
		return nil, err
	}

	consolidated, err := p.Consolidate(ctx, p.cfg.Paths.ExtractDir)
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	summary.TotalFiles = len(consolidated.Files)
	for _, f := range consolidated.Files {
		if f.Skipped() {
			summary.SkippedFiles++
			summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
				InputFile:    f.Path,
				ErrorMessage: f.Err.Error(),
			})
			continue
		}
		summary.ReadFiles++
		summary.TotalRows += f.Rows
		summary.Events += len(f.Events)
		summary.DroppedRows += f.Dropped
	}
	summary.Entries = len(consolidated.Entries)
	summary.Inconsistencies = len(consolidated.Inconsistencies)
	summary.Outputs = append(summary.Outputs, consolidated.ConsolidatedPath)
	if consolidated.InconsistenciesPath != "" {
		summary.Outputs = append(summary.Outputs, consolidated.InconsistenciesPath)
	}

	enriched, err := p.Enrich(ctx)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	summary.MatchedRows = enriched.Matched
	summary.UnmatchedRows = enriched.Unmatched
	summary.Outputs = append(summary.Outputs, p.files.OutputPath(EnrichedFile))

	validated, err := p.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	summary.InvalidRows = validated.InvalidRows
	summary.FieldErrors = validated.FieldErrors
	summary.Outputs = append(summary.Outputs,
		p.files.OutputPath(ValidatedFile), p.files.OutputPath(ValidationErrorsFile))

	_, aggregated, err := p.Aggregate()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	summary.Groups = aggregated.Groups
	summary.Outputs = append(summary.Outputs, p.files.OutputPath(AggregatedFile))

	if p.cfg.Processing.PackagingEnabled() {
		archives, err := p.Package()
		if err != nil {
			return nil, fmt.Errorf("package: %w", err)
		}
		summary.Outputs = append(summary.Outputs, archives...)
	}

	summary.EndTime = time.Now()
	summaryPath, err := utils.WriteSummaryLog(*summary, p.cfg.Paths.OutputDir)
	if err != nil {
		return nil, err
	}
	p.logger.Info("run complete", "summary", summaryPath, "duration", summary.EndTime.Sub(summary.StartTime))
	return summary, nil
}

// =============================================================================
// SCAN
// =============================================================================

// ScanResult lists the source files that mention an event keyword anywhere.
type ScanResult struct {
	Files    int
	Matching []string
	Skipped  []string
}

// Scan checks every source file under root for cells mentioning an event
// keyword. Unreadable files are listed as skipped.
func (p *Pipeline) Scan(ctx context.Context, root string) (ScanResult, error) {
	paths, err := DiscoverSources(root)
	if err != nil {
		return ScanResult{}, err
	}

	type scanned struct {
		path  string
		found bool
		err   error
	}

	opts := p.tabularOptions()
	files, err := readAll(ctx, paths, p.cfg.Processing.MaxConcurrency, func(path string) scanned {
		found, err := scanFile(path, p.classifier, opts)
		return scanned{path: path, found: found, err: err}
	})
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{Files: len(files)}
	for _, f := range files {
		switch {
		case f.err != nil:
			p.logger.Warn("skipping source file", "path", f.path, "error", f.err)
			result.Skipped = append(result.Skipped, f.path)
		case f.found:
			result.Matching = append(result.Matching, f.path)
		}
	}
	return result, nil
}
