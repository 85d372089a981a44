// Package scoring computes the relevance heuristic for a candidate article.
//
// The score is additive and then clamped to [-1, 1]:
//   - preferred domain found in the URL host
//   - base keyword in the title and, separately, in the body
//   - problem and solution keywords in the body
//   - body length against the configured minimum
//   - item age against the recency window (skipped for unknown dates)
//
// Every keyword contributes at most once. Matching is case-insensitive substring.
package scoring

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	weightPreferredDomain = 0.08
	weightTitleKeyword    = 0.10
	weightBodyKeyword     = 0.06
	weightVocabulary      = 0.02
	bonusLength           = 0.10
	penaltyLength         = -0.08
	bonusRecent           = 0.06
	penaltyStale          = -0.04

	minScore = -1.0
	maxScore = 1.0

	hoursPerDay = 24
)

// Scorer is safe for concurrent use.
type Scorer struct {
	preferDomains []string
	baseKeywords  []string
	vocabulary    []string
	minChars      int
	recencyDays   int
	now           func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock overrides the clock used for the recency contribution.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) {
		s.now = now
	}
}

// New builds a Scorer from the topic. Keywords are folded once up front.
func New(topic config.Topic, opts ...Option) *Scorer {
	s := &Scorer{
		preferDomains: foldAll(topic.PreferDomains),
		baseKeywords:  foldAll(topic.BaseKeywords),
		minChars:      topic.Scoring.MinChars,
		recencyDays:   topic.Scoring.PreferRecencyDays,
		now:           time.Now,
	}

	// Problem and solution lists are scored independently, so a keyword
	// present in both contributes twice.
	s.vocabulary = append(foldAll(topic.Keywords.Problems), foldAll(topic.Keywords.Solutions)...)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Score returns the clamped relevance of an item. It never fails.
func (s *Scorer) Score(meta domain.Meta, text string) float64 {
	title := textnorm.Fold(meta.Title)
	body := textnorm.Fold(text)

	score := s.domainScore(meta.URL)
	score += s.keywordScore(title, body)
	score += s.lengthScore(text)
	score += s.recencyScore(meta.Date)

	return clamp(score)
}

func (s *Scorer) domainScore(rawURL string) float64 {
	host := hostOf(rawURL)
	if host == "" {
		return 0
	}

	var score float64

	for _, d := range s.preferDomains {
		if d != "" && containsFolded(host, d) {
			score += weightPreferredDomain
		}
	}

	return score
}

func (s *Scorer) keywordScore(title, body string) float64 {
	var score float64

	for _, k := range s.baseKeywords {
		if containsFolded(title, k) {
			score += weightTitleKeyword
		}

		if containsFolded(body, k) {
			score += weightBodyKeyword
		}
	}

	for _, k := range s.vocabulary {
		if containsFolded(body, k) {
			score += weightVocabulary
		}
	}

	return score
}

func (s *Scorer) lengthScore(text string) float64 {
	if textnorm.Len(text) >= s.minChars {
		return bonusLength
	}

	return penaltyLength
}

func (s *Scorer) recencyScore(date time.Time) float64 {
	if date.IsZero() {
		return 0
	}

	ageDays := int(math.Floor(s.now().Sub(date).Hours() / hoursPerDay))
	if ageDays <= s.recencyDays {
		return bonusRecent
	}

	return penaltyStale
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return textnorm.Fold(u.Hostname())
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		out = append(out, textnorm.Fold(k))
	}

	return out
}

// containsFolded assumes both sides are already folded.
func containsFolded(haystack, needle string) bool {
	return needle != "" && strings.Contains(haystack, needle)
}

func clamp(v float64) float64 {
	return math.Max(minScore, math.Min(maxScore, v))
}
