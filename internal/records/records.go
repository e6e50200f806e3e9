// =============================================================================
// Claims Consolidator - Shared Records
// =============================================================================
//
// This package holds the data model shared by the pipeline stages. It lives
// on its own to avoid import cycles between the reader, the aggregators and
// the validators.
//
// OWNERSHIP:
//   Every stage materializes its own output values. Nothing here is mutated
//   by a stage that did not create it.
//
// =============================================================================

package records

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// CLASSIFIED EVENTS
// =============================================================================

// Event is a tabular row recognized as a claims/events expense line.
// The amount keeps its sign.
type Event struct {
	// SourceFile is the path of the file the row was read from. The
	// consolidation stage derives the fiscal quarter from it.
	SourceFile string

	// FilerID is the raw filer identifier found on the row, possibly blank.
	FilerID string

	Description string
	Amount      float64
}

// =============================================================================
// QUARTERS
// =============================================================================

// Quarter identifies a fiscal quarter. Quarter is 1 to 4.
type Quarter struct {
	Year    int
	Quarter int
}

// Label returns the quarter label ("1T".."4T").
func (q Quarter) Label() string {
	return strconv.Itoa(q.Quarter) + "T"
}

// Less orders quarters by year, then quarter.
func (q Quarter) Less(o Quarter) bool {
	if q.Year != o.Year {
		return q.Year < o.Year
	}
	return q.Quarter < o.Quarter
}

func (q Quarter) String() string {
	return fmt.Sprintf("%d-%s", q.Year, q.Label())
}

// PeriodKey joins a year and a quarter label as found in tabular output,
// e.g. ("2024", "3T") -> "2024-3T". Keys sort in chronological order for
// four-digit years.
func PeriodKey(year, quarterLabel string) string {
	return strings.TrimSpace(year) + "-" + strings.TrimSpace(quarterLabel)
}

// =============================================================================
// CONSOLIDATED ENTRIES
// =============================================================================

// EntryKey groups events of one filer in one quarter.
type EntryKey struct {
	FilerID string
	Quarter Quarter
}

// Less orders keys by (year, quarter, filer id).
func (k EntryKey) Less(o EntryKey) bool {
	if k.Quarter != o.Quarter {
		return k.Quarter.Less(o.Quarter)
	}
	return k.FilerID < o.FilerID
}

// Entry is the summed expense of one filer in one quarter.
type Entry struct {
	Key EntryKey

	// DisplayName is blank at consolidation time and filled by enrichment.
	DisplayName string

	Total float64
}

// =============================================================================
// INCONSISTENCIES
// =============================================================================

// InconsistencyKind enumerates the non-fatal anomalies found while
// consolidating.
type InconsistencyKind string

const (
	InvalidQuarter   InconsistencyKind = "INVALID_QUARTER"
	EmptyFilerID     InconsistencyKind = "EMPTY_FILER_ID"
	NonPositiveValue InconsistencyKind = "NON_POSITIVE_VALUE"
)

// KindField is the column that carries the kind of an inconsistency.
const KindField = "Kind"

// Inconsistency describes one anomaly plus its context fields.
type Inconsistency struct {
	Kind    InconsistencyKind
	Context map[string]string
}

// Fields returns every (field, value) pair of the record, the kind included.
func (i Inconsistency) Fields() map[string]string {
	fields := make(map[string]string, len(i.Context)+1)
	for k, v := range i.Context {
		fields[k] = v
	}
	fields[KindField] = string(i.Kind)
	return fields
}

// DedupKey identifies structurally identical records: the same kind and the
// same context fields with the same values.
func (i Inconsistency) DedupKey() string {
	fields := i.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(fields[k]))
		b.WriteByte(';')
	}
	return b.String()
}

// =============================================================================
// VALIDATION
// =============================================================================

// Status flags one validated field.
type Status string

const (
	StatusOK      Status = "OK"
	StatusInvalid Status = "INVALID"
)

// Field error kinds.
const (
	ErrValueNotNumeric  = "VALUE_NOT_NUMERIC"
	ErrValueNotPositive = "VALUE_NOT_POSITIVE"
	ErrNameEmpty        = "NAME_EMPTY"
	ErrIDInvalid        = "ID_INVALID"
)

// FieldError is one failed field validation. RowNumber counts the header
// as row 1.
type FieldError struct {
	RowNumber int
	FieldName string
	ErrorKind string
	RawValue  string
}

// =============================================================================
// STATISTICS
// =============================================================================

// Statistic is the cross-quarter aggregate of one (name, region) group.
type Statistic struct {
	DisplayName  string
	Region       string
	Total        float64
	Mean         float64
	StdDev       float64
	QuarterCount int
}

// =============================================================================
// COLUMN NAMES
// =============================================================================

// Columns of the consolidated output and of the files derived from it.
const (
	ColFilerID      = "FilerID"
	ColDisplayName  = "DisplayName"
	ColQuarterLabel = "QuarterLabel"
	ColYear         = "Year"
	ColExpenseValue = "ExpenseValue"

	// Added by enrichment.
	ColCNPJ     = "CNPJ"
	ColRegion   = "Region"
	ColModality = "Modality"
)

// ConsolidatedHeader is the column order of the consolidated output.
var ConsolidatedHeader = []string{ColFilerID, ColDisplayName, ColQuarterLabel, ColYear, ColExpenseValue}
