// =============================================================================
// Claims Consolidator - Numeric Locale Parser
// =============================================================================
//
// Filings mix two numeric conventions: "1.234,56" (period grouping, comma
// decimal) and "1234.56" (period decimal). This package turns either form into
// a float64 without ever failing loudly; callers get (value, ok).
//
// VARIANTS:
//   ParseDecimal       : strict, disambiguates by the rightmost separator
//   ParseCommaDecimal  : assumes the comma is always the decimal separator
//
// =============================================================================

package numeric

import (
	"math"
	"strconv"
	"strings"
)

// ParseDecimal parses a locale-formatted decimal.
//
// RULES:
//   - blank input yields no value
//   - both ',' and '.' present: the rightmost one is the decimal separator,
//     every occurrence of the other is removed
//   - only ',' present: it is the decimal separator
//   - only '.' or neither: parsed as-is
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	comma := strings.LastIndex(s, ",")
	period := strings.LastIndex(s, ".")

	switch {
	case comma >= 0 && period >= 0:
		if comma > period {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	return parseFloat(s)
}

// ParseCommaDecimal parses a value that always uses ',' as the decimal
// separator: every '.' is removed and ',' becomes the decimal point.
func ParseCommaDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return parseFloat(s)
}

// FormatAmount renders a monetary value with exactly two fractional digits.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatCommaDecimal renders a number in decimal-comma notation without
// grouping, e.g. 1500.5 -> "1500,5".
func FormatCommaDecimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
