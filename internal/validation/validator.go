// =============================================================================
// Claims Consolidator - Validation Engine
// =============================================================================
//
// This module validates consolidated (optionally enriched) records. Three
// fields are checked independently:
//
//   ExpenseValue  must parse as a number and be strictly positive
//   DisplayName   must be non-blank
//   CNPJ          must carry valid check digits (only when the column exists)
//
// ERROR HANDLING:
//   - A missing required column aborts the run
//   - Field failures never drop a record: it is written with a status flag
//     per field, and one FieldError is logged per failure
//   - Field errors are not deduplicated
//
// =============================================================================

package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ginjaninja78/claims-consolidator/internal/csvio"
	"github.com/ginjaninja78/claims-consolidator/internal/numeric"
	"github.com/ginjaninja78/claims-consolidator/internal/records"
)

// Status columns appended to the validated output.
const (
	ColStatusValue       = "StatusValue"
	ColStatusDisplayName = "StatusDisplayName"
	ColStatusFilerID     = "StatusFilerID"
)

// RequiredColumns must all be present in the validator's input.
var RequiredColumns = []string{
	records.ColFilerID,
	records.ColDisplayName,
	records.ColQuarterLabel,
	records.ColYear,
	records.ColExpenseValue,
}

// ErrorLogHeader is the column order of the validation error log.
var ErrorLogHeader = []string{"RowNumber", "FieldName", "ErrorKind", "RawValue"}

// =============================================================================
// FIELD CHECKS
// =============================================================================

// CheckValue validates a monetary value with the strict numeric parser.
// The returned kind is empty when the value is valid.
func CheckValue(raw string) (records.Status, string) {
	v, ok := numeric.ParseDecimal(raw)
	switch {
	case !ok:
		return records.StatusInvalid, records.ErrValueNotNumeric
	case v <= 0:
		return records.StatusInvalid, records.ErrValueNotPositive
	default:
		return records.StatusOK, ""
	}
}

// CheckName validates a display name.
func CheckName(raw string) (records.Status, string) {
	if strings.TrimSpace(raw) == "" {
		return records.StatusInvalid, records.ErrNameEmpty
	}
	return records.StatusOK, ""
}

// CheckID validates a CNPJ.
func CheckID(raw string) (records.Status, string) {
	if !ValidCNPJ(raw) {
		return records.StatusInvalid, records.ErrIDInvalid
	}
	return records.StatusOK, ""
}

// =============================================================================
// RECORD VALIDATION
// =============================================================================

// Input carries the validated fields of one record.
type Input struct {
	Value string
	Name  string

	// ID is nil when the input has no CNPJ column.
	ID *string
}

// Outcome holds the per-field statuses of one record.
type Outcome struct {
	Value  records.Status
	Name   records.Status
	ID     records.Status
	Errors []records.FieldError
}

// Valid reports whether every checked field is OK.
func (o Outcome) Valid() bool {
	return len(o.Errors) == 0
}

// ValidateRecord checks one record. rowNumber counts the header as row 1.
func ValidateRecord(rowNumber int, in Input) Outcome {
	var out Outcome

	addErr := func(field, kind, raw string) {
		out.Errors = append(out.Errors, records.FieldError{
			RowNumber: rowNumber,
			FieldName: field,
			ErrorKind: kind,
			RawValue:  raw,
		})
	}

	var kind string
	if out.Value, kind = CheckValue(in.Value); kind != "" {
		addErr(records.ColExpenseValue, kind, in.Value)
	}

	name := strings.TrimSpace(in.Name)
	if out.Name, kind = CheckName(name); kind != "" {
		addErr(records.ColDisplayName, kind, name)
	}

	if in.ID != nil {
		id := strings.TrimSpace(*in.ID)
		if out.ID, kind = CheckID(id); kind != "" {
			addErr(records.ColCNPJ, kind, id)
		}
	}

	return out
}

// =============================================================================
// FILE VALIDATION
// =============================================================================

// Summary counts the outcome of a file validation.
type Summary struct {
	Rows        int
	InvalidRows int
	FieldErrors int

	// ByKind counts field errors per error kind.
	ByKind map[string]int

	// CheckedIDs is false when the input had no CNPJ column.
	CheckedIDs bool
}

// ValidateFile validates every record of the input table.
//
// PARAMETERS:
//   - inPath: Consolidated or enriched CSV.
//   - validatedPath: Receives every input record plus status columns.
//   - errorsPath: Receives the field error log.
//
// RETURNS:
//   - A summary of the run.
//   - csvio.ErrMissingColumns (wrapped) if a required column is missing, or
//     an I/O error.
func ValidateFile(inPath, validatedPath, errorsPath string) (Summary, error) {
	summary := Summary{ByKind: make(map[string]int)}

	in, err := csvio.OpenTable(inPath, csvio.ReadOptions{})
	if err != nil {
		return summary, err
	}
	defer in.Close()

	if err := in.Require(RequiredColumns...); err != nil {
		return summary, fmt.Errorf("invalid input %s: %w", inPath, err)
	}
	summary.CheckedIDs = in.Has(records.ColCNPJ)

	header := append(in.Header(), ColStatusValue, ColStatusDisplayName)
	if summary.CheckedIDs {
		header = append(header, ColStatusFilerID)
	}

	validated, err := csvio.Create(validatedPath, header)
	if err != nil {
		return summary, err
	}
	defer validated.Close()

	errLog, err := csvio.Create(errorsPath, ErrorLogHeader)
	if err != nil {
		return summary, err
	}
	defer errLog.Close()

	for in.Next() {
		rec := in.Record()

		input := Input{
			Value: rec.Get(records.ColExpenseValue),
			Name:  rec.Get(records.ColDisplayName),
		}
		if summary.CheckedIDs {
			id := rec.Get(records.ColCNPJ)
			input.ID = &id
		}

		out := ValidateRecord(rec.Row, input)

		row := append(rec.Values(), string(out.Value), string(out.Name))
		if summary.CheckedIDs {
			row = append(row, string(out.ID))
		}
		if err := validated.Write(row); err != nil {
			return summary, err
		}

		for _, fe := range out.Errors {
			if err := errLog.Write(FormatFieldError(fe)); err != nil {
				return summary, err
			}
			summary.ByKind[fe.ErrorKind]++
		}

		summary.Rows++
		summary.FieldErrors += len(out.Errors)
		if !out.Valid() {
			summary.InvalidRows++
		}
	}
	if err := in.Err(); err != nil {
		return summary, fmt.Errorf("failed to read %s: %w", inPath, err)
	}

	if err := validated.Close(); err != nil {
		return summary, err
	}
	if err := errLog.Close(); err != nil {
		return summary, err
	}
	return summary, nil
}

// FormatFieldError renders a field error as an error log record.
func FormatFieldError(fe records.FieldError) []string {
	return []string{strconv.Itoa(fe.RowNumber), fe.FieldName, fe.ErrorKind, fe.RawValue}
}
