package api

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
	"github.com/ginjaninja78/claims-consolidator/internal/registry"
	"github.com/ginjaninja78/claims-consolidator/internal/validation"
)

// UnknownLabel names groups with no name or region.
const UnknownLabel = "UNKNOWN"

// TopFilers is the size of the top list in Statistics.
const TopFilers = 5

// Expense is one consolidated (filer, quarter) amount.
type Expense struct {
	FilerID      string  `json:"filer_id"`
	DisplayName  string  `json:"display_name"`
	Year         int     `json:"year"`
	QuarterLabel string  `json:"quarter_label"`
	Value        float64 `json:"value"`

	quarter int
}

// LoadExpenses reads a consolidated or enriched table. Values that do not
// parse count as zero.
func LoadExpenses(path string) ([]Expense, error) {
	table, err := csvio.OpenTable(path, csvio.ReadOptions{})
	if err != nil {
		return nil, err
	}
	defer table.Close()

	if err := table.Require(records.ColFilerID, records.ColYear, records.ColQuarterLabel, records.ColExpenseValue); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", path, err)
	}

	var expenses []Expense
	for table.Next() {
		rec := table.Record()
		value, _ := numeric.ParseDecimal(rec.Get(records.ColExpenseValue))
		label := strings.TrimSpace(rec.Get(records.ColQuarterLabel))
		expenses = append(expenses, Expense{
			FilerID:      strings.TrimSpace(rec.Get(records.ColFilerID)),
			DisplayName:  strings.TrimSpace(rec.Get(records.ColDisplayName)),
			Year:         leadingInt(validation.Digits(rec.Get(records.ColYear))),
			QuarterLabel: label,
			Value:        value,
			quarter:      leadingInt(validation.Digits(label)),
		})
	}
	if err := table.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return expenses, nil
}

func leadingInt(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Dataset is an immutable snapshot of the registry and the expenses, built
// once at startup and shared by every request.
type Dataset struct {
	registry *registry.Index
	expenses []Expense
	byFiler  map[string][]int
	stats    Statistics
}

// NewDataset indexes the expenses by filer and precomputes the statistics.
func NewDataset(idx *registry.Index, expenses []Expense) *Dataset {
	d := &Dataset{
		registry: idx,
		expenses: expenses,
		byFiler:  make(map[string][]int),
	}
	for i, e := range expenses {
		d.byFiler[e.FilerID] = append(d.byFiler[e.FilerID], i)
	}
	d.stats = d.computeStatistics()
	return d
}

// Registry returns the filer index.
func (d *Dataset) Registry() *registry.Index { return d.registry }

// ExpensesOf returns the expenses of one filer ordered by year and quarter.
func (d *Dataset) ExpensesOf(filerID string) []Expense {
	positions := d.byFiler[filerID]
	out := make([]Expense, len(positions))
	for i, pos := range positions {
		out[i] = d.expenses[pos]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].quarter < out[j].quarter
	})
	return out
}

// NamedTotal is a labelled sum.
type NamedTotal struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Statistics summarizes every expense row.
type Statistics struct {
	Total    float64      `json:"total"`
	Mean     float64      `json:"mean"`
	Top      []NamedTotal `json:"top_filers"`
	ByRegion []NamedTotal `json:"by_region"`
}

// Statistics returns the precomputed summary.
func (d *Dataset) Statistics() Statistics { return d.stats }

func (d *Dataset) computeStatistics() Statistics {
	st := Statistics{Top: []NamedTotal{}, ByRegion: []NamedTotal{}}
	if len(d.expenses) == 0 {
		return st
	}

	byName := newTotals()
	byRegion := newTotals()
	for _, e := range d.expenses {
		st.Total += e.Value

		filer, found := d.registry.Lookup(e.FilerID)

		name := e.DisplayName
		if name == "" && found {
			name = filer.Name
		}
		if name == "" {
			name = e.FilerID
		}
		if name == "" {
			name = UnknownLabel
		}
		byName.add(name, e.Value)

		region := UnknownLabel
		if found && filer.Region != "" {
			region = filer.Region
		}
		byRegion.add(region, e.Value)
	}
	st.Mean = st.Total / float64(len(d.expenses))

	st.Top = byName.sorted()
	if len(st.Top) > TopFilers {
		st.Top = st.Top[:TopFilers]
	}
	st.ByRegion = byRegion.sorted()
	return st
}

// totals sums values per name, remembering first appearance.
type totals struct {
	index map[string]int
	list  []NamedTotal
}

func newTotals() *totals {
	return &totals{index: make(map[string]int)}
}

func (t *totals) add(name string, v float64) {
	pos, ok := t.index[name]
	if !ok {
		pos = len(t.list)
		t.index[name] = pos
		t.list = append(t.list, NamedTotal{Name: name})
	}
	t.list[pos].Total += v
}

// sorted orders by total descending; ties keep first appearance.
func (t *totals) sorted() []NamedTotal {
	out := append([]NamedTotal(nil), t.list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out
}
