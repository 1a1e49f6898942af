package db

import (
	"strings"
	"unicode/utf8"
)

// TruncateIdent cuts s to at most maxLen bytes on a UTF-8 boundary.
func TruncateIdent(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	b := []byte(s)
	cut := maxLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxLen]
	}
	return string(b[:cut])
}

// NormalizeIdent converts an arbitrary input string into a safe, lowercase
// identifier.
func NormalizeIdent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	//  - lower
	//  - replace separators with one underscore
	//  - remove non [a-z0-9_]
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))

	lastUnderscore := false
	for _, r := range s {
		if r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';' {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}

		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = (r == '_')
			continue
		}
	}

	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
