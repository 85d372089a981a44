// Package pipeline turns raw candidates from the source connectors into new
// store items and merges them with the existing store.
//
// Per candidate the states are Fetched, TextExtracted, Deduped, Processed and
// Merged. Work is staged so that every touch of the dedup indices happens on
// one goroutine while fetching, extraction and processing fan out:
//
//  1. serial: exclusion terms and URL reservation, in candidate order
//  2. parallel: fetch (or inline HTML), extract, normalise, fingerprint
//  3. serial: minimum length and content claim, in candidate order
//  4. parallel: summary, score, tags, solutions
//  5. serial: append in candidate order, then merge and sort
//
// Because the serial stages walk candidates in input order, the outcome of a
// run does not depend on goroutine scheduling.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/platform/observability"
	"github.com/lueurxax/procurement-monitor/internal/process/dedup"
	"github.com/lueurxax/procurement-monitor/internal/process/filters"
	"github.com/lueurxax/procurement-monitor/internal/process/scoring"
	"github.com/lueurxax/procurement-monitor/internal/process/solutions"
	"github.com/lueurxax/procurement-monitor/internal/process/summary"
	"github.com/lueurxax/procurement-monitor/internal/process/tagging"
)

// Source is a connector producing raw candidates. A source may return items
// together with an error when only part of it failed.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.RawItem, error)
}

// Fetcher downloads a page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ExtractFunc turns HTML into plain text. It returns "" when nothing usable
// can be extracted.
type ExtractFunc func(html, url string) string

// Summarizer produces the per-item summary and never fails.
type Summarizer interface {
	Summarize(ctx context.Context, text string) summary.Result
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Fetcher    Fetcher
	Extract    ExtractFunc
	Summarizer Summarizer
	Logger     *zerolog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock sets the clock used for undated items and recency scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithConcurrency bounds the parallel stages.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSummaries toggles summary generation. When off, items are stored with
// an empty summary.
func WithSummaries(enabled bool) Option {
	return func(e *Engine) { e.summarise = enabled }
}

// Engine is the dedup and merge engine. One Engine may run many times; each
// run builds fresh indices from the store it is given.
type Engine struct {
	topic       config.Topic
	scorer      *scoring.Scorer
	tagger      *tagging.Tagger
	filter      *filters.Filterer
	fetcher     Fetcher
	extract     ExtractFunc
	summarizer  Summarizer
	concurrency int
	summarise   bool
	now         func() time.Time
	logger      *zerolog.Logger
}

// New creates an Engine for topic. The topic must already carry any seed
// terms; it is not modified.
func New(topic config.Topic, deps Deps, opts ...Option) *Engine {
	e := &Engine{
		topic:       topic,
		fetcher:     deps.Fetcher,
		extract:     deps.Extract,
		summarizer:  deps.Summarizer,
		concurrency: DefaultConcurrency,
		summarise:   true,
		now:         time.Now,
		logger:      deps.Logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		nop := zerolog.Nop()
		e.logger = &nop
	}

	if e.extract == nil {
		e.extract = func(html, _ string) string { return html }
	}

	e.scorer = scoring.New(topic, scoring.WithClock(e.now))
	e.tagger = tagging.New(topic)
	e.filter = filters.New(topic.ExcludeTerms, filters.DefaultMinTextLength)

	return e
}

// Result describes one run.
type Result struct {
	RunID uuid.UUID

	// New holds the accepted items in candidate order.
	New []domain.ProcessedItem

	// Merged is existing plus New, sorted by date descending.
	Merged []domain.ProcessedItem

	// Rejected counts dropped candidates by reason.
	Rejected map[string]int

	// FailedSources lists sources that returned an error.
	FailedSources []string
}

// Run collects candidates from sources and processes them against existing.
func (e *Engine) Run(ctx context.Context, existing []domain.ProcessedItem, sources []Source) (Result, error) {
	runID := uuid.New()
	logger := e.logger.With().Str(LogFieldRunID, runID.String()).Logger()

	candidates, failed := e.collect(ctx, sources, &logger)

	res, err := e.process(ctx, runID, existing, candidates, &logger)
	if err != nil {
		return Result{}, err
	}

	res.FailedSources = failed

	return res, nil
}

// Process runs the candidates through dedup and processing and merges the
// accepted items with existing. It returns an error only when ctx ends.
func (e *Engine) Process(ctx context.Context, existing []domain.ProcessedItem, candidates []domain.RawItem) (Result, error) {
	runID := uuid.New()
	logger := e.logger.With().Str(LogFieldRunID, runID.String()).Logger()

	return e.process(ctx, runID, existing, candidates, &logger)
}

// collect fans out over sources. A failing source only loses its own items.
func (e *Engine) collect(ctx context.Context, sources []Source, logger *zerolog.Logger) ([]domain.RawItem, []string) {
	batches := make([][]domain.RawItem, len(sources))
	errs := make([]error, len(sources))

	var g errgroup.Group

	for i, src := range sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("source panic: %v", r)
				}
			}()

			batches[i], errs[i] = src.Fetch(ctx)

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines report through errs

	var (
		out    []domain.RawItem
		failed []string
	)

	for i, src := range sources {
		name := src.Name()

		if err := errs[i]; err != nil {
			kind := errors.Classify(err)

			ev := logger.Warn()
			if kind == errors.KindUnsupported {
				ev = logger.Info()
			} else {
				failed = append(failed, name)
				observability.SourceFailures.WithLabelValues(name, string(kind)).Inc()
			}

			ev.Err(err).Str(LogFieldSource, name).Str(LogFieldKind, string(kind)).Int(LogFieldCount, len(batches[i])).Msg("source did not complete")
		}

		observability.ItemsFetched.WithLabelValues(name).Add(float64(len(batches[i])))
		logger.Debug().Str(LogFieldSource, name).Int(LogFieldCount, len(batches[i])).Msg("source drained")

		out = append(out, batches[i]...)
	}

	return out, failed
}

// slot carries one candidate through the stages.
type slot struct {
	raw      domain.RawItem
	pos      int
	text     string
	hash     string
	reason   string
	promoted bool
	item     domain.ProcessedItem
}

func (e *Engine) process(
	ctx context.Context,
	runID uuid.UUID,
	existing []domain.ProcessedItem,
	candidates []domain.RawItem,
	logger *zerolog.Logger,
) (Result, error) {
	res := Result{RunID: runID, Rejected: make(map[string]int)}
	idx := dedup.NewIndex(existing)

	reject := func(s *slot, reason string) {
		s.reason = reason
		res.Rejected[reason]++
		observability.ItemsRejected.WithLabelValues(reason).Inc()
		logger.Debug().Str(LogFieldURL, s.raw.URL).Str(LogFieldReason, reason).Msg("candidate rejected")
	}

	// Stage 1: exclusion and URL reservation. A later candidate for a URL
	// reserved earlier in this run waits as a backup; it takes over the URL
	// if the holder is rejected before merge.
	slots := make([]*slot, 0, len(candidates))
	backups := make(map[string][]*slot)
	waiting := make([]*slot, 0)
	reservedInRun := make(map[string]struct{})

	for i, raw := range candidates {
		s := &slot{raw: raw, pos: i}

		if raw.URL == "" {
			reject(s, observability.ReasonNoURL)
			continue
		}

		if excluded, reason := e.filter.Excluded(raw.Title, raw.URL); excluded {
			reject(s, reason)
			continue
		}

		if !idx.ReserveURL(raw.URL) {
			if _, ok := reservedInRun[raw.URL]; ok {
				backups[raw.URL] = append(backups[raw.URL], s)
				waiting = append(waiting, s)

				continue
			}

			reject(s, observability.ReasonDuplicateURL)

			continue
		}

		reservedInRun[raw.URL] = struct{}{}
		slots = append(slots, s)
	}

	accepted := make([]*slot, 0, len(slots))

	for round := slots; len(round) > 0; {
		// Stage 2: fetch and extract.
		if err := e.parallel(ctx, round, func(ctx context.Context, s *slot) {
			e.extractText(ctx, s, logger)
		}); err != nil {
			return Result{}, err
		}

		// Stage 3: length and content uniqueness.
		var next []*slot

		for _, s := range round {
			if reason := e.admit(s, idx); reason != "" {
				reject(s, reason)

				if queue := backups[s.raw.URL]; len(queue) > 0 {
					queue[0].promoted = true
					backups[s.raw.URL] = queue[1:]
					next = append(next, queue[0])
				}

				continue
			}

			accepted = append(accepted, s)
		}

		round = next
	}

	for _, s := range waiting {
		if !s.promoted {
			reject(s, observability.ReasonDuplicateURL)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].pos < accepted[j].pos })

	// Stage 4: processing.
	if err := e.parallel(ctx, accepted, e.build); err != nil {
		return Result{}, err
	}

	// Stage 5: merge.
	res.New = make([]domain.ProcessedItem, 0, len(accepted))
	for _, s := range accepted {
		res.New = append(res.New, s.item)
	}

	res.Merged = Merge(existing, res.New)

	observability.ItemsProcessed.Add(float64(len(res.New)))
	logger.Info().
		Int("candidates", len(candidates)).
		Int("new", len(res.New)).
		Int("total", len(res.Merged)).
		Interface("rejected", res.Rejected).
		Msg("pipeline run complete")

	return res, nil
}

// parallel runs fn over slots with bounded concurrency. It fails only when
// ctx is done.
func (e *Engine) parallel(ctx context.Context, slots []*slot, fn func(context.Context, *slot)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, s := range slots {
		if err := gctx.Err(); err != nil {
			break
		}

		g.Go(func() error {
			fn(gctx, s)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline stage: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pipeline cancelled: %w", err)
	}

	return nil
}

// admit returns the rejection reason for an extracted slot, or "" once its
// content fingerprint is claimed.
func (e *Engine) admit(s *slot, idx *dedup.Index) string {
	if s.reason != "" {
		return s.reason
	}

	if short, reason := e.filter.TooShort(s.text); short {
		return reason
	}

	if !idx.ClaimContent(s.hash) {
		return observability.ReasonDuplicateContent
	}

	return ""
}

func (e *Engine) extractText(ctx context.Context, s *slot, logger *zerolog.Logger) {
	html := s.raw.InlineHTML

	if html == "" {
		if e.fetcher == nil {
			s.reason = observability.ReasonFetchFailed
			return
		}

		body, err := e.fetcher.Fetch(ctx, s.raw.URL)
		if err != nil {
			logger.Debug().Err(err).Str(LogFieldURL, s.raw.URL).Str(LogFieldKind, string(errors.Classify(err))).Msg("fetch failed")
			s.reason = observability.ReasonFetchFailed

			return
		}

		html = string(body)
	}

	s.text = textnorm.Normalize(e.extract(html, s.raw.URL))
	s.hash = textnorm.Fingerprint(s.text)
}

func (e *Engine) build(ctx context.Context, s *slot) {
	raw := s.raw

	// An unknown date is stored as now but scores no recency contribution.
	date := raw.PublishedAt
	if date.IsZero() {
		date = e.now()
	}

	date = date.UTC()

	title := textnorm.Normalize(raw.Title)
	if title == "" {
		title = textnorm.Truncate(s.text, TitleFallbackChars) + titleEllipsis
	}

	source := raw.Source
	if source == "" {
		source = hostOf(raw.URL)
	}

	sum := summary.Result{Mode: summary.ModeEmpty}
	if e.summarise && e.summarizer != nil {
		sum = e.summarizer.Summarize(ctx, s.text)
	}

	observability.SummariesProduced.WithLabelValues(string(sum.Mode)).Inc()

	score := e.scorer.Score(domain.Meta{Title: title, URL: raw.URL, Date: raw.PublishedAt}, s.text)

	s.item = domain.ProcessedItem{
		ID:             dedup.ItemID(raw.URL),
		Title:          title,
		URL:            raw.URL,
		Source:         source,
		Date:           date,
		Summary:        sum.Text,
		RelevanceScore: roundScore(score),
		Tags:           e.tagger.Tag(s.text),
		Solutions:      solutions.Extract(s.text),
		ContentHash:    s.hash,
		ContentLength:  textnorm.Len(s.text),
	}
}

// Merge returns existing followed by fresh, stably sorted by date descending.
// Neither input is modified.
func Merge(existing, fresh []domain.ProcessedItem) []domain.ProcessedItem {
	out := make([]domain.ProcessedItem, 0, len(existing)+len(fresh))
	out = append(out, existing...)
	out = append(out, fresh...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})

	return out
}

func roundScore(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
