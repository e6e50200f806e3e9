package consolidate

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// WriteConsolidated writes the entries, in the given order, with the columns
// FilerID, DisplayName, QuarterLabel, Year, ExpenseValue.
func WriteConsolidated(path string, entries []records.Entry) error {
	w, err := csvio.Create(path, records.ConsolidatedHeader)
	if err != nil {
		return fmt.Errorf("failed to create consolidated output: %w", err)
	}

	for _, e := range entries {
		err := w.Write([]string{
			e.Key.FilerID,
			e.DisplayName,
			e.Key.Quarter.Label(),
			strconv.Itoa(e.Key.Quarter.Year),
			numeric.FormatAmount(e.Total),
		})
		if err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// WriteInconsistencies writes the records when there is at least one. The
// columns are the alphabetically sorted union of every record's fields.
//
// RETURNS:
//   - true if a file was written.
//   - An error if writing fails.
func WriteInconsistencies(path string, incs []records.Inconsistency) (bool, error) {
	if len(incs) == 0 {
		return false, nil
	}

	columnSet := make(map[string]struct{})
	rows := make([]map[string]string, len(incs))
	for i, inc := range incs {
		rows[i] = inc.Fields()
		for k := range rows[i] {
			columnSet[k] = struct{}{}
		}
	}

	columns := make([]string, 0, len(columnSet))
	for c := range columnSet {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	out := make([][]string, len(rows))
	for i, fields := range rows {
		record := make([]string, len(columns))
		for j, c := range columns {
			record[j] = fields[c]
		}
		out[i] = record
	}

	if err := csvio.WriteFile(path, columns, out); err != nil {
		return false, fmt.Errorf("failed to write inconsistencies: %w", err)
	}
	return true, nil
}
