// Package address canonicalizes street addresses used as ledger keys.
package address

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of a raw address string.
//
// Hangul text arrives from spreadsheets and portal responses in mixed
// Unicode forms (precomposed syllables vs. decomposed jamo), so the value
// is NFC-normalized before use. Surrounding whitespace is dropped and
// interior runs of whitespace collapse to a single space. Two addresses
// that normalize equal are treated as the same ledger entry.
func Normalize(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return norm.NFC.String(strings.Join(fields, " "))
}

// IsBlank reports whether the raw value normalizes to the empty string.
func IsBlank(raw string) bool {
	return len(strings.TrimSpace(raw)) == 0
}
