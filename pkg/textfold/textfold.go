// Package textfold provides accent- and case-insensitive text comparison.
package textfold

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

func stripper() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// StripAccents removes combining diacritical marks, keeping letter case.
// "Transacción" becomes "Transaccion".
func StripAccents(s string) string {
	out, _, err := transform.String(stripper(), s)
	if err != nil {
		return s
	}
	return out
}

// Key returns the comparison form of s: accents stripped and lower-cased.
func Key(s string) string {
	return strings.ToLower(StripAccents(s))
}

// Contains reports whether needle occurs in haystack ignoring case and accents.
func Contains(haystack, needle string) bool {
	return strings.Contains(Key(haystack), Key(needle))
}

// ContainsAny reports whether any of needles occurs in haystack ignoring
// case and accents. It returns the first matching needle.
func ContainsAny(haystack string, needles []string) (string, bool) {
	key := Key(haystack)
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(key, Key(n)) {
			return n, true
		}
	}
	return "", false
}

// Folded is accent-stripped text that remembers where each byte came from
// in the original string, so regexp match offsets can be mapped back.
type Folded struct {
	Text     string
	original string
	offsets  []int
}

// Fold strips accents from s rune by rune and records byte offsets.
func Fold(s string) Folded {
	var b strings.Builder
	offsets := make([]int, 0, len(s)+1)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		piece := s[i : i+size]
		if r >= utf8.RuneSelf {
			piece = StripAccents(piece)
		}
		for range len(piece) {
			offsets = append(offsets, i)
		}
		b.WriteString(piece)
		i += size
	}
	offsets = append(offsets, len(s))
	return Folded{Text: b.String(), original: s, offsets: offsets}
}

// Original returns the slice of the original string that produced
// Text[start:end].
func (f Folded) Original(start, end int) string {
	if start < 0 || end > len(f.Text) || start > end {
		return ""
	}
	return f.original[f.offsets[start]:f.offsets[end]]
}
