// =============================================================================
// Claims Consolidator - Delimited Text Source
// =============================================================================
//
// Delimited sources come with no declared delimiter. The reader tries each
// candidate in priority order and keeps the first one whose header row splits
// into more than one column.
//
// DECODING:
//   Bytes are decoded through golang.org/x/text. Invalid sequences are
//   replaced with U+FFFD instead of failing the file, and a UTF-8 byte order
//   mark is dropped.
//
// =============================================================================

package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
)

// delimitedReader streams rows from a delimited text file.
type delimitedReader struct {
	file      *os.File
	reader    *csv.Reader
	delimiter rune
	headers   []string
	current   Row
	rowNumber int
	err       error
}

// openDelimited opens the file and settles its delimiter.
func openDelimited(path string, opts Options) (*delimitedReader, error) {
	enc, err := csvio.ResolveEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	candidates := opts.Delimiters
	if len(candidates) == 0 {
		candidates = DefaultDelimiters
	}

	for _, delim := range candidates {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
		}

		reader := newCSVReader(file, enc, delim)
		header, err := reader.Read()
		if err != nil || len(header) <= 1 {
			continue
		}

		return &delimitedReader{
			file:      file,
			reader:    reader,
			delimiter: delim,
			headers:   append([]string(nil), header...),
			rowNumber: 1,
			current:   Row{Source: path, Origin: OriginDelimited},
		}, nil
	}

	file.Close()
	return nil, fmt.Errorf("%s: %w", path, ErrNoDelimiter)
}

// newCSVReader wraps the file in a decoder and a lenient csv.Reader.
func newCSVReader(r io.Reader, enc encoding.Encoding, delim rune) *csv.Reader {
	decoded := transform.NewReader(r, enc.NewDecoder())
	reader := csv.NewReader(bufio.NewReader(decoded))
	reader.Comma = delim

	// Rows may have any number of fields.
	reader.FieldsPerRecord = -1

	// Filings regularly carry stray quotes inside unquoted fields.
	reader.LazyQuotes = true

	reader.ReuseRecord = true
	return reader
}

// Next reads the next non-blank record and zips it against the header.
// Cells past the header are ignored; missing trailing cells are "".
func (p *delimitedReader) Next() bool {
	for p.err == nil {
		record, err := p.reader.Read()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading line %d: %w", p.rowNumber+1, err)
			return false
		}

		line, _ := p.reader.FieldPos(0)
		p.rowNumber = line

		if isRowEmpty(record) {
			continue
		}

		cells := make([]Cell, len(p.headers))
		for i, label := range p.headers {
			cells[i].Label = label
			if i < len(record) {
				cells[i].Value = record[i]
			}
		}

		p.current.Number = p.rowNumber
		p.current.Cells = cells
		return true
	}
	return false
}

func (p *delimitedReader) Row() Row { return p.current }

func (p *delimitedReader) Err() error { return p.err }

func (p *delimitedReader) Close() error { return p.file.Close() }

// Delimiter reports the delimiter chosen for the file.
func (p *delimitedReader) Delimiter() rune { return p.delimiter }

// isRowEmpty reports whether every cell of the record is blank.
func isRowEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
