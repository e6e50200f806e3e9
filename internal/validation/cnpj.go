package validation

import "strings"

// Check digit weights for the 14-digit national registry number (CNPJ).
var (
	firstDigitWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	secondDigitWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// Digits strips every non-digit character.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CheckDigits computes the two modulo-11 check digits of a 12-digit base.
// ok is false when base is not exactly 12 ASCII digits.
func CheckDigits(base string) (first, second int, ok bool) {
	if len(base) != 12 || Digits(base) != base {
		return 0, 0, false
	}
	first = checkDigit(base, firstDigitWeights)
	second = checkDigit(base+string(rune('0'+first)), secondDigitWeights)
	return first, second, true
}

// checkDigit: weighted sum mod 11; remainders below 2 give 0.
func checkDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rem := sum % 11
	if rem < 2 {
		return 0
	}
	return 11 - rem
}

// ValidCNPJ reports whether raw, once non-digits are removed, is 14 digits,
// not all the same digit, and ends with its two check digits.
func ValidCNPJ(raw string) bool {
	d := Digits(raw)
	if len(d) != 14 {
		return false
	}
	if strings.Count(d, d[:1]) == len(d) {
		return false
	}

	first, second, ok := CheckDigits(d[:12])
	if !ok {
		return false
	}
	return int(d[12]-'0') == first && int(d[13]-'0') == second
}
