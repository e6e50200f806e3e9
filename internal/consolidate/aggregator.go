// =============================================================================
// Claims Consolidator - Consolidation Aggregator
// =============================================================================
//
// The aggregator sums classified events per (filer, year, quarter). The
// quarter is not read from the rows: it is derived from the source file path,
// which must contain a "<quarter>T<year>" token such as "3T2024".
//
// ANOMALIES:
//   Problems found here never abort the run. They become inconsistency
//   records instead:
//
//   INVALID_QUARTER     the path has no quarter token; event skipped
//   EMPTY_FILER_ID      the row had no filer identifier; event skipped
//   NON_POSITIVE_VALUE  amount <= 0; event still summed, flagged for audit
//
//   Structurally identical records are kept once, in first-seen order.
//
// =============================================================================

package consolidate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// Context fields of inconsistency records.
const (
	FieldFile         = "File"
	FieldFilerID      = "FilerID"
	FieldYear         = "Year"
	FieldQuarterLabel = "QuarterLabel"
	FieldValue        = "Value"
)

// quarterPattern matches a single-digit quarter followed by a four-digit year.
var quarterPattern = regexp.MustCompile(`([1-4])T(\d{4})`)

// QuarterFromPath extracts the fiscal quarter from the leftmost
// "<quarter>T<year>" token anywhere in the path.
func QuarterFromPath(path string) (records.Quarter, bool) {
	m := quarterPattern.FindStringSubmatch(path)
	if m == nil {
		return records.Quarter{}, false
	}
	q, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	return records.Quarter{Year: y, Quarter: q}, true
}

// Stats counts what happened to the events fed to an Aggregator.
type Stats struct {
	Events          int
	Aggregated      int
	Skipped         int
	Inconsistencies int
}

// Aggregator accumulates events. It is not safe for concurrent use; callers
// that read files in parallel merge their results through one Aggregator.
type Aggregator struct {
	totals map[records.EntryKey]float64

	inconsistencies []records.Inconsistency
	seen            map[string]struct{}

	stats Stats
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		totals: make(map[records.EntryKey]float64),
		seen:   make(map[string]struct{}),
	}
}

// Add folds one event into the totals.
func (a *Aggregator) Add(e records.Event) {
	a.stats.Events++

	quarter, ok := QuarterFromPath(e.SourceFile)
	if !ok {
		a.record(records.InvalidQuarter, map[string]string{FieldFile: e.SourceFile})
		a.stats.Skipped++
		return
	}

	filerID := strings.TrimSpace(e.FilerID)
	if filerID == "" {
		a.record(records.EmptyFilerID, map[string]string{FieldFile: e.SourceFile})
		a.stats.Skipped++
		return
	}

	key := records.EntryKey{FilerID: filerID, Quarter: quarter}
	a.totals[key] += e.Amount
	a.stats.Aggregated++

	if e.Amount <= 0 {
		a.record(records.NonPositiveValue, map[string]string{
			FieldFilerID:      filerID,
			FieldYear:         strconv.Itoa(quarter.Year),
			FieldQuarterLabel: quarter.Label(),
			FieldValue:        strconv.FormatFloat(e.Amount, 'f', -1, 64),
			FieldFile:         e.SourceFile,
		})
	}
}

// AddAll folds a batch of events in order.
func (a *Aggregator) AddAll(events []records.Event) {
	for _, e := range events {
		a.Add(e)
	}
}

// record keeps an inconsistency unless an identical one was already seen.
func (a *Aggregator) record(kind records.InconsistencyKind, context map[string]string) {
	inc := records.Inconsistency{Kind: kind, Context: context}
	key := inc.DedupKey()
	if _, dup := a.seen[key]; dup {
		return
	}
	a.seen[key] = struct{}{}
	a.inconsistencies = append(a.inconsistencies, inc)
	a.stats.Inconsistencies++
}

// Entries returns the consolidated totals sorted by (year, quarter, filer).
func (a *Aggregator) Entries() []records.Entry {
	entries := make([]records.Entry, 0, len(a.totals))
	for k, total := range a.totals {
		entries = append(entries, records.Entry{Key: k, Total: total})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Less(entries[j].Key)
	})
	return entries
}

// Inconsistencies returns the deduplicated records in first-seen order.
func (a *Aggregator) Inconsistencies() []records.Inconsistency {
	return append([]records.Inconsistency(nil), a.inconsistencies...)
}

// Stats returns the counters collected so far.
func (a *Aggregator) Stats() Stats {
	return a.stats
}
