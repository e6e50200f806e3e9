// =============================================================================
// Claims Consolidator - Spreadsheet Source
// =============================================================================
//
// Workbooks are read sheet by sheet in workbook order with the excelize row
// iterator. In every sheet the first row is the header; each following row is
// zipped against it.
//
// CELL VALUES:
//   Text cells are passed through verbatim. Numeric cells are rendered from
//   their stored value in decimal-comma notation without grouping
//   (1500.5 -> "1500,5"), which is the convention used for spreadsheet-origin
//   amounts downstream.
//
// =============================================================================

package tabular

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/xuri/excelize/v2"
)

// spreadsheetReader streams rows across every sheet of a workbook.
type spreadsheetReader struct {
	path   string
	file   *excelize.File
	sheets []string

	// Per-sheet state.
	sheetIdx  int
	sheet     string
	rows      *excelize.Rows
	headers   []string
	rowNumber int

	current Row
	err     error
}

// openSpreadsheet opens the workbook. Sheets are opened lazily by Next.
func openSpreadsheet(path string) (*spreadsheetReader, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	return &spreadsheetReader{
		path:   path,
		file:   f,
		sheets: f.GetSheetList(),
	}, nil
}

// Next advances to the next non-empty data row, moving on to the following
// sheet when the current one is exhausted.
func (s *spreadsheetReader) Next() bool {
	for s.err == nil {
		if s.rows == nil {
			if s.sheetIdx >= len(s.sheets) {
				return false
			}
			s.openSheet(s.sheets[s.sheetIdx])
			s.sheetIdx++
			continue
		}

		if !s.rows.Next() {
			if err := s.rows.Error(); err != nil {
				s.err = fmt.Errorf("error reading sheet '%s': %w", s.sheet, err)
			}
			s.closeSheet()
			continue
		}

		s.rowNumber++
		columns, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			s.err = fmt.Errorf("error reading sheet '%s' row %d: %w", s.sheet, s.rowNumber, err)
			return false
		}

		if s.headers == nil {
			s.headers = headerLabels(columns)
			continue
		}

		if isRowEmpty(columns) {
			continue
		}

		// Cells past the header are ignored, missing trailing cells omitted.
		n := min(len(columns), len(s.headers))
		cells := make([]Cell, n)
		for i := 0; i < n; i++ {
			cells[i] = Cell{Label: s.headers[i], Value: s.cellValue(i, columns[i])}
		}

		s.current = Row{
			Source: s.path,
			Sheet:  s.sheet,
			Number: s.rowNumber,
			Origin: OriginSpreadsheet,
			Cells:  cells,
		}
		return true
	}
	return false
}

// openSheet starts iterating a sheet.
func (s *spreadsheetReader) openSheet(name string) {
	rows, err := s.file.Rows(name)
	if err != nil {
		s.err = fmt.Errorf("failed to read sheet '%s': %w", name, err)
		return
	}
	s.sheet = name
	s.rows = rows
	s.headers = nil
	s.rowNumber = 0
}

func (s *spreadsheetReader) closeSheet() {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
}

// cellValue renders numeric cells in decimal-comma notation.
func (s *spreadsheetReader) cellValue(col int, raw string) string {
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}

	ref, err := excelize.CoordinatesToCellName(col+1, s.rowNumber)
	if err != nil {
		return raw
	}
	typ, err := s.file.GetCellType(s.sheet, ref)
	if err != nil {
		return raw
	}

	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeFormula:
		return numeric.FormatCommaDecimal(v)
	default:
		return raw
	}
}

func (s *spreadsheetReader) Row() Row { return s.current }

func (s *spreadsheetReader) Err() error { return s.err }

// Close releases the open sheet iterator and the workbook.
func (s *spreadsheetReader) Close() error {
	s.closeSheet()
	return s.file.Close()
}

// headerLabels trims header cells. Blank cells become "" labels.
func headerLabels(columns []string) []string {
	labels := make([]string, len(columns))
	for i, c := range columns {
		labels[i] = strings.TrimSpace(c)
	}
	return labels
}
