package normalize

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// maxLabelLen is the hard ceiling on normalized labels; anything longer is
// truncated to truncateAt characters and suffixed with an 8-hex digest of the
// full string so distinct inputs stay distinct.
const (
	maxLabelLen = 100
	truncateAt  = 92
)

// SnakeCase converts an XBRL concept name (UpperCamelCase, possibly with
// acronym runs and digits) to snake_case.
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				// Break before an upper rune following lower/digit, or at the
				// end of an acronym run (XBRLReport -> xbrl_report).
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			// Punctuation (colons, dashes in prefixed names) becomes a break.
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "_") {
				b.WriteByte('_')
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// suffix rewrites applied to auto-fallback labels, most specific first.
var suffixRewrites = []struct{ from, to string }{
	{"_policy_text_block", "_policy_note"},
	{"_text_block", "_note"},
	{"_abstract", "_section_header"},
}

// AutoFallbackLabel is the last-resort label: snake_case with XBRL suffixes
// rewritten to semantically explicit tags, truncated and hash-suffixed when
// the result would exceed maxLabelLen.
func AutoFallbackLabel(conceptName string) string {
	label := SnakeCase(conceptName)
	for _, rw := range suffixRewrites {
		if strings.HasSuffix(label, rw.from) {
			label = strings.TrimSuffix(label, rw.from) + rw.to
			break
		}
	}
	return capLabel(label)
}

// capLabel enforces the length ceiling while preserving uniqueness.
func capLabel(label string) string {
	if len(label) <= maxLabelLen {
		return label
	}
	h := fnv.New32a()
	h.Write([]byte(label))
	return fmt.Sprintf("%s%08x", label[:truncateAt], h.Sum32())
}
