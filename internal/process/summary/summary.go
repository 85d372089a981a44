// Package summary produces the per-item summary.
//
// The extractive tier is always available. When an abstractive client is
// configured its output replaces the extractive text; any failure falls back
// silently to the extractive result.
package summary

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const DefaultSentences = 5

// Mode records which tier produced a summary.
type Mode string

const (
	ModeExtractive  Mode = "extractive"
	ModeAbstractive Mode = "abstractive"
	ModeEmpty       Mode = "empty"
)

// Abstractive is an optional external summarisation capability.
type Abstractive interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Result is a summary and the tier that produced it.
type Result struct {
	Text string
	Mode Mode
}

// Summarizer is safe for concurrent use when its Abstractive client is.
type Summarizer struct {
	sentences   int
	stopwords   config.Stopwords
	abstractive Abstractive
	logger      *zerolog.Logger
}

// New creates a Summarizer. abstractive may be nil.
func New(sentences int, stopwords config.Stopwords, abstractive Abstractive, logger *zerolog.Logger) *Summarizer {
	if sentences <= 0 {
		sentences = DefaultSentences
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Summarizer{
		sentences:   sentences,
		stopwords:   stopwords,
		abstractive: abstractive,
		logger:      logger,
	}
}

// Summarize never fails.
func (s *Summarizer) Summarize(ctx context.Context, text string) Result {
	if s.abstractive != nil && strings.TrimSpace(text) != "" {
		out, err := s.abstractive.Summarize(ctx, text)

		switch {
		case err != nil:
			s.logger.Debug().Err(err).Str("kind", string(errors.Classify(err))).Msg("abstractive summary unavailable, using extractive")
		case strings.TrimSpace(out) != "":
			return Result{Text: strings.TrimSpace(out), Mode: ModeAbstractive}
		}
	}

	ext := Extractive(text, s.sentences, s.stopwords)
	if ext == "" {
		return Result{Mode: ModeEmpty}
	}

	return Result{Text: ext, Mode: ModeExtractive}
}

type scoredSentence struct {
	index int
	score int
}

// Extractive selects the n sentences with the most distinct non-stopword tokens
// and joins them in document order. Ties keep document order.
func Extractive(text string, n int, stopwords config.Stopwords) string {
	sentences := textnorm.SplitSentences(textnorm.Normalize(text))
	if len(sentences) == 0 || n <= 0 {
		return ""
	}

	scored := make([]scoredSentence, len(sentences))
	for i, sent := range sentences {
		scored[i] = scoredSentence{index: i, score: distinctTokens(sent, stopwords)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	if len(scored) > n {
		scored = scored[:n]
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].index < scored[j].index
	})

	picked := make([]string, len(scored))
	for i, sc := range scored {
		picked[i] = sentences[sc.index]
	}

	return strings.Join(picked, " ")
}

func distinctTokens(sentence string, stopwords config.Stopwords) int {
	seen := make(map[string]struct{})

	for _, tok := range textnorm.Tokens(sentence) {
		if stopwords.Contains(tok) {
			continue
		}

		seen[tok] = struct{}{}
	}

	return len(seen)
}
