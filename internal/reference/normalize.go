// Package reference loads the municipality tables used to resolve names to
// PNCP location codes.
package reference

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Key folds a name for matching: lowercase, no diacritics, and every run of
// characters outside [a-z0-9] collapsed to a single underscore.
// "São João d'Aliança" becomes "sao_joao_d_alianca".
func Key(s string) string {
	folded, _, err := transform.String(stripMarks, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(s))
	}

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// SplitNameUF parses "Nome/UF" or "Nome - UF". A suffix that is not a
// two-letter state code is kept as part of the name.
func SplitNameUF(s string) (name, uf string) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"/", " - ", ","} {
		i := strings.LastIndex(s, sep)
		if i < 0 {
			continue
		}
		cand := strings.TrimSpace(s[i+len(sep):])
		if len(cand) == 2 && isLetters(cand) {
			return strings.TrimSpace(s[:i]), strings.ToUpper(cand)
		}
	}
	return s, ""
}

// NormalizeUF upper-cases a state code. "Todos" and blanks mean no filter.
func NormalizeUF(uf string) string {
	uf = strings.ToUpper(strings.TrimSpace(uf))
	if uf == "TODOS" || uf == "ALL" {
		return ""
	}
	return uf
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
