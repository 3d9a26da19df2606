package scan

import "strings"

// Canonicalize normalizes a raw matched token into the registry key form:
// surrounding whitespace trimmed, lowercased, and one layer of enclosing
// angle brackets stripped. Canonicalize is idempotent; empty input stays
// empty (callers must not register empty tokens).
func Canonicalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
