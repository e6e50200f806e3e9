// =============================================================================
// Claims Consolidator - Statistical Aggregator
// =============================================================================
//
// Validated, enriched records are regrouped by (display name, region). Within
// a group, values are first summed per quarter, since one filer can appear in
// the same quarter on several rows. The per-quarter sums, sorted by quarter,
// feed the statistics:
//
//   total   sum of the quarterly sums
//   mean    total / count (0 when there are no quarters)
//   stddev  sample standard deviation, n-1 denominator (0 when n <= 1)
//
// Groups are returned by total, descending; ties keep first-appearance order.
//
// =============================================================================

package stats

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// OutputHeader is the column order of the aggregated output.
var OutputHeader = []string{"DisplayName", "Region", "TotalExpense", "QuarterlyMean", "QuarterlyStdDev", "QuarterCount"}

type groupKey struct {
	name   string
	region string
}

type group struct {
	key      groupKey
	quarters map[string]float64
}

// Aggregator accumulates quarterly values per (name, region).
type Aggregator struct {
	groups map[groupKey]*group
	order  []*group
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{groups: make(map[groupKey]*group)}
}

// Add adds a value to the group's quarter. period is any key that sorts
// chronologically, see records.PeriodKey.
func (a *Aggregator) Add(name, region, period string, value float64) {
	k := groupKey{name: name, region: region}
	g, ok := a.groups[k]
	if !ok {
		g = &group{key: k, quarters: make(map[string]float64)}
		a.groups[k] = g
		a.order = append(a.order, g)
	}
	g.quarters[period] += value
}

// Results computes the statistics of every group.
func (a *Aggregator) Results() []records.Statistic {
	out := make([]records.Statistic, 0, len(a.order))
	for _, g := range a.order {
		periods := make([]string, 0, len(g.quarters))
		for p := range g.quarters {
			periods = append(periods, p)
		}
		sort.Strings(periods)

		values := make([]float64, len(periods))
		for i, p := range periods {
			values[i] = g.quarters[p]
		}

		total, mean, stddev := Describe(values)
		out = append(out, records.Statistic{
			DisplayName:  g.key.name,
			Region:       g.key.region,
			Total:        total,
			Mean:         mean,
			StdDev:       stddev,
			QuarterCount: len(values),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out
}

// Describe returns the sum, arithmetic mean and sample standard deviation
// of values, summed in order.
func Describe(values []float64) (total, mean, stddev float64) {
	n := len(values)
	for _, v := range values {
		total += v
	}
	if n == 0 {
		return 0, 0, 0
	}
	mean = total / float64(n)
	if n <= 1 {
		return total, mean, 0
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return total, mean, math.Sqrt(sq / float64(n-1))
}

// =============================================================================
// FILE AGGREGATION
// =============================================================================

// FileSummary counts the rows seen by AggregateFile.
type FileSummary struct {
	Rows    int
	Used    int
	Skipped int
	Groups  int
}

// AggregateFile reads a validated, enriched CSV and writes the statistics.
// Rows with a blank display name, CNPJ, region, year or quarter label, or an
// unparseable value, are skipped.
func AggregateFile(inPath, outPath string) ([]records.Statistic, FileSummary, error) {
	var summary FileSummary

	in, err := csvio.OpenTable(inPath, csvio.ReadOptions{})
	if err != nil {
		return nil, summary, err
	}
	defer in.Close()

	if err := in.Require(records.ColDisplayName, records.ColCNPJ, records.ColRegion,
		records.ColYear, records.ColQuarterLabel, records.ColExpenseValue); err != nil {
		return nil, summary, fmt.Errorf("invalid input %s: %w", inPath, err)
	}

	agg := NewAggregator()
	for in.Next() {
		rec := in.Record()
		summary.Rows++

		name := strings.TrimSpace(rec.Get(records.ColDisplayName))
		cnpj := strings.TrimSpace(rec.Get(records.ColCNPJ))
		region := strings.TrimSpace(rec.Get(records.ColRegion))
		year := strings.TrimSpace(rec.Get(records.ColYear))
		quarter := strings.TrimSpace(rec.Get(records.ColQuarterLabel))
		if name == "" || cnpj == "" || region == "" || year == "" || quarter == "" {
			summary.Skipped++
			continue
		}

		value, ok := numeric.ParseDecimal(rec.Get(records.ColExpenseValue))
		if !ok {
			summary.Skipped++
			continue
		}

		agg.Add(name, region, records.PeriodKey(year, quarter), value)
		summary.Used++
	}
	if err := in.Err(); err != nil {
		return nil, summary, fmt.Errorf("failed to read %s: %w", inPath, err)
	}

	results := agg.Results()
	summary.Groups = len(results)

	if err := WriteStatistics(outPath, results); err != nil {
		return nil, summary, err
	}
	return results, summary, nil
}

// WriteStatistics writes the statistics in order, values with two decimals.
func WriteStatistics(path string, stats []records.Statistic) error {
	rows := make([][]string, len(stats))
	for i, s := range stats {
		rows[i] = []string{
			s.DisplayName,
			s.Region,
			numeric.FormatAmount(s.Total),
			numeric.FormatAmount(s.Mean),
			numeric.FormatAmount(s.StdDev),
			strconv.Itoa(s.QuarterCount),
		}
	}
	if err := csvio.WriteFile(path, OutputHeader, rows); err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	return nil
}
