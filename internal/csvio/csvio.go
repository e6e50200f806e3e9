// =============================================================================
// Claims Consolidator - CSV Tables
// =============================================================================
//
// Every stage after consolidation exchanges data as header-first CSV tables.
// This package streams such tables in and out:
//
//   - TableReader: decodes, exposes the header, resolves columns by name
//   - Writer:      creates parent directories, writes a header and records
//
// =============================================================================

package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrMissingColumns is returned when an input table lacks a required
	// column. It aborts the stage reading the table.
	ErrMissingColumns = errors.New("missing required columns")

	// ErrUnknownEncoding is returned for an encoding name that cannot be resolved.
	ErrUnknownEncoding = errors.New("unknown text encoding")

	// ErrEmptyTable is returned when a table has no header row.
	ErrEmptyTable = errors.New("table has no header row")
)

// ResolveEncoding maps an encoding name to a decoder. UTF-8 is the default
// and drops a leading byte order mark; invalid sequences decode to U+FFFD.
func ResolveEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownEncoding)
	}
	return enc, nil
}

// NewDecodingReader wraps r with the decoder for the named encoding.
func NewDecodingReader(r io.Reader, encodingName string) (io.Reader, error) {
	enc, err := ResolveEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	return bufio.NewReader(transform.NewReader(r, enc.NewDecoder())), nil
}

// =============================================================================
// READING
// =============================================================================

// ReadOptions configure a TableReader. The zero value reads UTF-8 with ','.
type ReadOptions struct {
	Delimiter rune
	Encoding  string
}

// Record is one data row of a table.
type Record struct {
	values []string
	index  map[string]int
	width  int

	// Row is the 1-based position of the record in the table; the header
	// is row 1, so the first record is row 2.
	Row int
}

// Get returns the value of a column, or "" when the column is absent or the
// record is short.
func (r Record) Get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.values) {
		return ""
	}
	return r.values[i]
}

// Values returns the record's values padded or cut to the header width.
func (r Record) Values() []string {
	out := make([]string, r.width)
	copy(out, r.values)
	return out
}

// TableReader streams records from a header-first CSV file.
type TableReader struct {
	file    *os.File
	reader  *csv.Reader
	header  []string
	index   map[string]int
	current Record
	row     int
	err     error
}

// OpenTable opens a CSV table and reads its header.
func OpenTable(path string, opts ReadOptions) (*TableReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	decoded, err := NewDecodingReader(file, opts.Encoding)
	if err != nil {
		file.Close()
		return nil, err
	}

	reader := csv.NewReader(decoded)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyTable)
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		header[i] = h
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	return &TableReader{
		file:   file,
		reader: reader,
		header: header,
		index:  index,
		row:    1,
	}, nil
}

// Header returns the column names in file order.
func (t *TableReader) Header() []string {
	return append([]string(nil), t.header...)
}

// Has reports whether the table has the column.
func (t *TableReader) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Require fails with ErrMissingColumns naming every absent column.
func (t *TableReader) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

// Next advances to the next record. Blank lines are skipped by encoding/csv.
func (t *TableReader) Next() bool {
	if t.err != nil {
		return false
	}
	values, err := t.reader.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		t.err = fmt.Errorf("error reading row %d: %w", t.row+1, err)
		return false
	}

	t.row++
	t.current = Record{values: values, index: t.index, width: len(t.header), Row: t.row}
	return true
}

// Record returns the current record.
func (t *TableReader) Record() Record { return t.current }

// Err returns the first read error.
func (t *TableReader) Err() error { return t.err }

// Close releases the file.
func (t *TableReader) Close() error { return t.file.Close() }

// =============================================================================
// WRITING
// =============================================================================

// Writer writes a header-first CSV table.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	path   string
}

// Create creates (or truncates) the file, its parent directories, and writes
// the header.
func Create(path string, header []string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	w := &Writer{file: file, writer: csv.NewWriter(file), path: path}
	if err := w.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Write appends one record.
func (w *Writer) Write(record []string) error {
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to %s: %w", w.path, err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (w *Writer) Close() error {
	w.writer.Flush()
	flushErr := w.writer.Error()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, closeErr)
	}
	return nil
}

// WriteFile writes a whole table at once.
func WriteFile(path string, header []string, records [][]string) error {
	w, err := Create(path, header)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
