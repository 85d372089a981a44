// Package filters implements the item-level reject rules of the pipeline.
//
// Two rules apply, at different stages:
//   - Exclusion terms, checked against title and URL before anything is fetched
//   - Minimum extracted text length, checked after extraction
package filters

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/lueurxax/procurement-monitor/internal/platform/observability"
)

// DefaultMinTextLength is the shortest extracted body that can be stored.
const DefaultMinTextLength = 400

const (
	ReasonExcluded = observability.ReasonExcluded
	ReasonTooShort = observability.ReasonTooShort
)

// Filterer applies the reject rules. Excluded is not safe for concurrent use.
type Filterer struct {
	excludeTerms []string
	minLength    int
	caser        cases.Caser
}

// New creates a Filterer. Terms are folded once; empty terms are ignored.
// A non-positive minLength selects DefaultMinTextLength.
func New(excludeTerms []string, minLength int) *Filterer {
	if minLength <= 0 {
		minLength = DefaultMinTextLength
	}

	f := &Filterer{minLength: minLength, caser: cases.Fold()}

	for _, t := range excludeTerms {
		if t = strings.TrimSpace(t); t != "" {
			f.excludeTerms = append(f.excludeTerms, f.caser.String(t))
		}
	}

	return f
}

// MinLength returns the configured minimum text length.
func (f *Filterer) MinLength() int {
	return f.minLength
}

// Excluded reports whether title or url contains an exclusion term.
func (f *Filterer) Excluded(title, url string) (bool, string) {
	if len(f.excludeTerms) == 0 {
		return false, ""
	}

	// Caser keeps state between calls.
	f.caser.Reset()
	haystack := f.caser.String(title + " " + url)

	for _, term := range f.excludeTerms {
		if strings.Contains(haystack, term) {
			return true, ReasonExcluded
		}
	}

	return false, ""
}

// TooShort reports whether text is below the minimum length in characters.
func (f *Filterer) TooShort(text string) (bool, string) {
	if utf8.RuneCountInString(text) < f.minLength {
		return true, ReasonTooShort
	}

	return false, ""
}
