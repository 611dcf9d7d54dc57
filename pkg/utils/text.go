package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func TokenizeWords(s string) []string {
	var out []string
	var cur []rune
	kind := -1 // 0=space,1=word,2=punct
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, string(cur))
		cur = cur[:0]
	}
	for _, r := range s {
		k := 2
		switch {
		case unicode.IsSpace(r):
			k = 0
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '-' || r == '\'':
			k = 1
		}
		if kind == -1 {
			kind = k
		}
		if k != kind {
			flush()
			kind = k
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

// foldDiacritics decomposes, drops combining marks and recomposes.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeTitle is the cross-dataset matching key: diacritics folded,
// lower-cased, punctuation dropped, whitespace collapsed.
// "Spider-Man: No Way Home" and "spider man no way home" share a key.
func NormalizeTitle(s string) string {
	s = strings.ToLower(foldDiacritics(s))
	s = strings.ReplaceAll(s, "&", " and ")

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '\'' || r == '’' || r == '.':
			// "Ocean's" -> "oceans", "Mr." -> "mr"
		default:
			space = true
		}
	}
	return b.String()
}

// Slug turns a title into a hyphenated file-name-safe token.
func Slug(s string) string {
	return strings.ReplaceAll(NormalizeTitle(s), " ", "-")
}

// IsTruthy reports whether a flag-matrix cell marks membership.
func IsTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "x", "y", "yes", "true", "✓":
		return true
	}
	return false
}
