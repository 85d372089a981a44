// Package solutions pulls recommendation-style sentences out of article text.
package solutions

import (
	"strings"

	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
)

const (
	MinLength    = 60
	MaxLength    = 280
	MaxSolutions = 10
)

// Cues mark a sentence as a candidate recommendation.
var Cues = []string{
	"should",
	"must",
	"we need to",
	"recommend",
	"propose",
	"ought to",
	"could",
	"establish",
	"adopt",
	"create",
	"introduce",
}

// Extract returns up to MaxSolutions qualifying sentences in document order.
// A sentence qualifies when it contains a cue and its trimmed length is within
// [MinLength, MaxLength] characters.
func Extract(text string) []string {
	out := []string{}

	for _, s := range textnorm.SplitSentences(text) {
		if len(out) == MaxSolutions {
			break
		}

		n := textnorm.Len(s)
		if n < MinLength || n > MaxLength {
			continue
		}

		if hasCue(textnorm.Fold(s)) {
			out = append(out, s)
		}
	}

	return out
}

func hasCue(folded string) bool {
	for _, c := range Cues {
		if strings.Contains(folded, c) {
			return true
		}
	}

	return false
}
