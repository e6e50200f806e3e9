package registry

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// EnrichSummary counts the rows seen by Enrich.
type EnrichSummary struct {
	Rows      int
	Matched   int
	Unmatched int
}

// Enrich copies the consolidated table at inPath to outPath, joining each
// row to the registry on FilerID. CNPJ, Region and Modality are appended
// (or overwritten when the input already has them) and DisplayName is set
// to the registry name. Unmatched rows get blank registry columns and keep
// their DisplayName.
func Enrich(inPath, outPath string, idx *Index) (EnrichSummary, error) {
	var summary EnrichSummary

	in, err := csvio.OpenTable(inPath, csvio.ReadOptions{})
	if err != nil {
		return summary, err
	}
	defer in.Close()

	if err := in.Require(records.ColFilerID, records.ColDisplayName); err != nil {
		return summary, fmt.Errorf("invalid input %s: %w", inPath, err)
	}

	header := in.Header()
	position := func(col string) int {
		for i, h := range header {
			if h == col {
				return i
			}
		}
		header = append(header, col)
		return len(header) - 1
	}
	nameAt := position(records.ColDisplayName)
	cnpjAt := position(records.ColCNPJ)
	regionAt := position(records.ColRegion)
	modalityAt := position(records.ColModality)

	out, err := csvio.Create(outPath, header)
	if err != nil {
		return summary, err
	}

	for in.Next() {
		rec := in.Record()
		summary.Rows++

		row := make([]string, len(header))
		copy(row, rec.Values())

		filer, ok := idx.Lookup(strings.TrimSpace(rec.Get(records.ColFilerID)))
		if ok {
			summary.Matched++
			row[nameAt] = filer.Name
			row[cnpjAt] = filer.CNPJ
			row[regionAt] = filer.Region
			row[modalityAt] = filer.Modality
		} else {
			summary.Unmatched++
			row[cnpjAt] = ""
			row[regionAt] = ""
			row[modalityAt] = ""
		}

		if err := out.Write(row); err != nil {
			out.Close()
			return summary, err
		}
	}
	if err := in.Err(); err != nil {
		out.Close()
		return summary, fmt.Errorf("failed to read %s: %w", inPath, err)
	}
	return summary, out.Close()
}
