// Package fingerprint derives the content-addressable dedup key of an item title.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	hebrewBlockStart = 0x0590
	hebrewBlockEnd   = 0x05FF
	hebrewMarksStart = 0x0591
	hebrewMarksEnd   = 0x05C7
)

// niqqud and cantillation marks
var hebrewMarks = runes.Predicate(func(r rune) bool {
	return r >= hebrewMarksStart && r <= hebrewMarksEnd && unicode.Is(unicode.Mn, r)
})

// Normalize lowercases the title, removes Hebrew diacritics and punctuation
// and collapses whitespace.
func Normalize(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))

	t := transform.Chain(norm.NFD, runes.Remove(hebrewMarks), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || (r >= hebrewBlockStart && r <= hebrewBlockEnd) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Of returns the hex SHA-256 of the normalized title.
func Of(title string) string {
	sum := sha256.Sum256([]byte(Normalize(title)))
	return hex.EncodeToString(sum[:])
}
