// Package textnorm holds the text primitives shared by the scoring, tagging,
// extraction and dedup stages: whitespace normalisation, content fingerprints,
// sentence splitting, tokenising and case folding.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var tokenRe = regexp.MustCompile(`[a-zA-Z\-]{3,}`)

// Normalize collapses every run of whitespace to a single space and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint returns the hex SHA-256 of the lower-cased normalised text.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(Normalize(s))))
	return hex.EncodeToString(sum[:])
}

// Fold returns the case-folded form of s for case-insensitive matching.
// A Caser keeps state, so a fresh one is used per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsFold reports whether needle occurs in an already folded haystack.
func ContainsFold(foldedHaystack, needle string) bool {
	if needle == "" {
		return false
	}

	return strings.Contains(foldedHaystack, Fold(needle))
}

// Len returns the length of s in characters.
func Len(s string) int {
	return utf8.RuneCountInString(s)
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}

	return s
}

// SplitSentences splits on '.', '!' or '?' followed by whitespace.
// The terminal punctuation stays with its sentence; empty pieces are dropped.
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
		prev  rune
	)

	for i, r := range text {
		if unicode.IsSpace(r) && isTerminal(prev) && i > start {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				out = append(out, s)
			}
			start = i
		}
		prev = r
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}

	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Tokens returns lower-cased runs of at least three ASCII letters or hyphens.
func Tokens(text string) []string {
	matches := tokenRe.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.ToLower(m)
	}

	return matches
}
