// Package compare reconciles each voter's registered district against the
// district their coordinate actually falls in.
package compare

import "strings"

// Normalize canonicalizes a district identifier for comparison. Whitespace
// is trimmed, a literal "district" token is dropped case-insensitively,
// all-digit identifiers lose their leading zeros ("026" equals "26"), and
// everything else is case-folded ("Water" equals "water").
func Normalize(id string) string {
	fields := strings.Fields(id)
	kept := fields[:0]
	for _, f := range fields {
		if strings.EqualFold(f, "district") {
			continue
		}
		kept = append(kept, f)
	}
	s := strings.Join(kept, " ")

	if s != "" && allDigits(s) {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
		return s
	}
	return strings.ToLower(s)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
