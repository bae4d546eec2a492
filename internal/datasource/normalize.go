package datasource

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeFieldName converts an arbitrary header into a safe, lowercase
// identifier: diacritics are folded ("Příjmení" -> "prijmeni"), separators
// become single underscores and anything outside [a-z0-9_] is dropped.
func NormalizeFieldName(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
	if s == "" {
		return ""
	}
	s = strings.ToLower(foldDiacritics(s))

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
		}
	}

	return truncateFieldName(strings.Trim(b.String(), "_"))
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// truncateFieldName caps identifiers at 63 bytes without splitting a rune.
func truncateFieldName(s string) string {
	const maxLen = 63
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return s[:cut]
}

// normalizeHeaders normalizes every header and makes duplicates unique by
// appending _2, _3, ...
func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		n := NormalizeFieldName(h)
		if n == "" {
			n = "column"
		}
		seen[n]++
		if seen[n] > 1 {
			n = n + "_" + strconv.Itoa(seen[n])
		}
		out[i] = n
	}
	return out
}
