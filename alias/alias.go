// Package alias implements console shorthand expansion.
package alias

import (
	"strings"
	"unicode"
)

// Resolve expands the leading token of input if it is exactly a key of m.
// The remainder of the input after the first run of whitespace is appended
// to the replacement with a single space. The replacement is not expanded
// again. If the leading token is not a key, the input is returned unchanged.
func Resolve(m map[string]string, input string) string {
	s := strings.TrimSpace(input)
	lead, rest := split(s)
	v, ok := m[lead]
	if !ok {
		return input
	}
	if rest == "" {
		return v
	}
	return v + " " + rest
}

// split separates s at its first run of whitespace.
func split(s string) (lead, rest string) {
	k := strings.IndexFunc(s, unicode.IsSpace)
	if k < 0 {
		return s, ""
	}
	return s[:k], strings.TrimLeftFunc(s[k:], unicode.IsSpace)
}
