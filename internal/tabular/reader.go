// =============================================================================
// Claims Consolidator - Tabular Record Reader
// =============================================================================
//
// This package turns a source file into a lazy sequence of rows keyed by the
// column labels found in the file. Two kinds of sources are supported:
//
//   - Delimited text (.csv, .txt) with an unknown delimiter and encoding
//   - Spreadsheets (.xlsx, .xlsm) with any number of sheets
//
// STREAMING:
//   A Reader holds exactly one open file or workbook handle and only the
//   header of the table it is currently reading. Callers drain it with
//   Next/Row and must Close it before opening the next source.
//
// =============================================================================

package tabular

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnsupportedExtension is returned by Open for files that are neither
	// delimited text nor spreadsheets.
	ErrUnsupportedExtension = errors.New("unsupported file extension")

	// ErrNoDelimiter is returned when no delimiter candidate splits the
	// header into more than one column.
	ErrNoDelimiter = errors.New("no delimiter candidate produced more than one column")
)

// =============================================================================
// ROWS
// =============================================================================

// Origin records which kind of source produced a row. Numeric values are
// parsed differently depending on it.
type Origin int

const (
	OriginDelimited Origin = iota
	OriginSpreadsheet
)

func (o Origin) String() string {
	if o == OriginSpreadsheet {
		return "spreadsheet"
	}
	return "delimited"
}

// Cell is one labelled value of a row.
type Cell struct {
	Label string
	Value string
}

// Row is a raw record: column labels exactly as found in the source (case and
// whitespace preserved) mapped to their text values. Missing values are "".
type Row struct {
	// Source is the path of the file the row belongs to.
	Source string

	// Sheet is the worksheet name; empty for delimited sources.
	Sheet string

	// Number is the 1-based line or row number within the file or sheet.
	// The header is row 1.
	Number int

	Origin Origin
	Cells  []Cell
}

// NormalizedRow maps slugified labels to values.
type NormalizedRow map[string]string

// Normalize slugifies every label of the row. When two labels collapse to the
// same slug, the one further right wins.
func (r Row) Normalize() NormalizedRow {
	n := make(NormalizedRow, len(r.Cells))
	for _, c := range r.Cells {
		n[Slugify(c.Label)] = c.Value
	}
	return n
}

// First returns the first key in keys whose value is non-blank.
func (n NormalizedRow) First(keys []string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(n[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

// =============================================================================
// READER
// =============================================================================

// Reader is a lazy sequence of rows from one source file.
type Reader interface {
	// Next advances to the next row. It returns false at the end of the
	// source or on error; check Err afterwards.
	Next() bool

	// Row returns the current row.
	Row() Row

	// Err returns the first error hit while reading, if any.
	Err() error

	// Close releases the underlying file or workbook handle.
	Close() error
}

// DelimitedReader is implemented by readers of delimited sources.
type DelimitedReader interface {
	Reader

	// Delimiter returns the delimiter chosen from the candidates.
	Delimiter() rune
}

// Options control how sources are decoded.
type Options struct {
	// Encoding names the character encoding of delimited sources
	// ("utf-8", "iso-8859-1", "windows-1252", ...). Empty means UTF-8.
	Encoding string

	// Delimiters lists the delimiter candidates in priority order.
	// Empty means semicolon, comma, tab.
	Delimiters []rune
}

// DefaultDelimiters is the candidate order used when Options.Delimiters is empty.
var DefaultDelimiters = []rune{';', ',', '\t'}

// Extensions lists the source extensions Open accepts.
var Extensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// Supported reports whether Open accepts the file's extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Open returns a Reader for the file, chosen by extension.
//
// PARAMETERS:
//   - path: The source file.
//   - opts: Decoding options for delimited sources.
//
// RETURNS:
//   - A Reader positioned before the first data row.
//   - ErrUnsupportedExtension, ErrNoDelimiter, or an open/decode error.
func Open(path string, opts Options) (Reader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return openDelimited(path, opts)
	case ".xlsx", ".xlsm":
		return openSpreadsheet(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedExtension)
	}
}

// =============================================================================
// SLUGS
// =============================================================================

// Slugify lower-cases a label, folds accents, collapses every run of
// non-alphanumeric characters into a single '-' and trims leading and
// trailing separators. "Descrição da Conta" becomes "descricao-da-conta".
func Slugify(label string) string {
	// Transformer chains keep state, so each call builds its own.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, label)
	if err != nil {
		folded = label
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
