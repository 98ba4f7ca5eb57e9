// Package textmatch answers whether a vocabulary word literally appears in a
// transcript, ignoring case.
package textmatch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Fold returns the case-folded form of s with runs of whitespace collapsed.
func Fold(s string) string {
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

// Contains reports whether word occurs in transcript, case-insensitively.
// The match must not be glued to letters or digits on either side, so "run"
// is found in "Run!" but not in "running". Multi-word entries match with any
// whitespace between their parts. Words in Japanese script are matched on
// morpheme boundaries instead.
func Contains(transcript, word string) bool {
	needle := Fold(word)
	if needle == "" {
		return false
	}
	haystack := Fold(transcript)

	if spaceless(needle) {
		if found, err := containsMorphemes(haystack, needle); err == nil {
			return found
		}
		return strings.Contains(haystack, needle)
	}

	for offset := 0; offset <= len(haystack)-len(needle); {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := []rune(s[i:])[0]
	return !isWordRune(r)
}

func lastRune(s string) rune {
	runes := []rune(s)
	return runes[len(runes)-1]
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
