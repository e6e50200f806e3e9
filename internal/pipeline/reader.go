package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ginjaninja78/claims-consolidator/internal/classify"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
	"github.com/ginjaninja78/claims-consolidator/internal/tabular"
)

// FileResult is the outcome of reading one source file.
type FileResult struct {
	// Path is the source file.
	Path string

	// Events holds the classified events, in row order. It is empty when
	// Err is set: a file that fails part-way contributes nothing.
	Events []records.Event

	// Rows counts the data rows read.
	Rows int

	// Dropped counts event rows whose amount could not be parsed.
	Dropped int

	// Err is the open or read error that caused the file to be skipped.
	Err error

	// Origin is the kind of source; Delimiter is set for delimited ones.
	Origin    tabular.Origin
	Delimiter rune

	Duration time.Duration
}

// Skipped reports whether the file was skipped.
func (r FileResult) Skipped() bool { return r.Err != nil }

// ReadFile drains one source file through the classifier. The file handle is
// released before ReadFile returns.
func ReadFile(path string, classifier *classify.Classifier, opts tabular.Options) FileResult {
	start := time.Now()
	result := FileResult{Path: path}

	reader, err := tabular.Open(path, opts)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}
	defer reader.Close()

	if d, ok := reader.(tabular.DelimitedReader); ok {
		result.Delimiter = d.Delimiter()
	} else {
		result.Origin = tabular.OriginSpreadsheet
	}

	for reader.Next() {
		result.Rows++
		outcome := classifier.Classify(reader.Row())
		switch {
		case outcome.Matched:
			result.Events = append(result.Events, outcome.Event)
		case outcome.Reason == classify.AmountUnparseable:
			result.Dropped++
		}
	}
	if err := reader.Err(); err != nil {
		result.Events = nil
		result.Err = fmt.Errorf("%s: %w", path, err)
	}

	result.Duration = time.Since(start)
	return result
}

// readAll reads every path with at most limit files open at once. Results
// are returned in the order of paths, whatever order the reads finish in.
func readAll[T any](ctx context.Context, paths []string, limit int, read func(string) T) ([]T, error) {
	if limit < 1 {
		limit = 1
	}
	results := make([]T, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range paths {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			results[i] = read(paths[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scanFile reports whether any cell of the file mentions an event keyword.
func scanFile(path string, classifier *classify.Classifier, opts tabular.Options) (bool, error) {
	reader, err := tabular.Open(path, opts)
	if err != nil {
		return false, err
	}
	defer reader.Close()

	for reader.Next() {
		if classifier.MentionsEvent(reader.Row()) {
			return true, nil
		}
	}
	return false, reader.Err()
}
