// Package feeds reads the configured RSS and Atom feeds.
package feeds

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	// SourceName labels this connector in logs and metrics.
	SourceName = "feeds"

	defaultTimeout     = 20 * time.Second
	defaultConcurrency = 4
	userAgent          = "Mozilla/5.0 (procurement-monitor)"
)

// Source fetches every configured feed and flattens the entries.
type Source struct {
	feeds  []config.Feed
	client *http.Client
	now    func() time.Time
	logger *zerolog.Logger
}

// Option customises a Source.
type Option func(*Source)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithClock sets the clock used for entries without a usable date.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New creates a feed source.
func New(feeds []config.Feed, timeout time.Duration, logger *zerolog.Logger, opts ...Option) *Source {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &Source{
		feeds:  feeds,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
		logger: logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Source) Name() string { return SourceName }

// Fetch returns the entries of all feeds in configuration order. Feeds that
// fail are reported in the returned error; entries of the others are kept.
func (s *Source) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if len(s.feeds) == 0 {
		return nil, fmt.Errorf("no feeds configured: %w", errors.ErrUnsupported)
	}

	batches := make([][]domain.RawItem, len(s.feeds))
	errs := make([]error, len(s.feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultConcurrency)

	for i, f := range s.feeds {
		g.Go(func() error {
			batches[i], errs[i] = s.fetchFeed(gctx, f)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // per-feed errors are collected in errs

	var out []domain.RawItem

	for i, f := range s.feeds {
		if errs[i] != nil {
			s.logger.Warn().Err(errs[i]).Str("feed", f.Name).Str("url", f.URL).Msg("feed fetch failed")
			errs[i] = fmt.Errorf("feed %q: %w", f.Name, errs[i])
		}

		out = append(out, batches[i]...)
	}

	return out, stderrors.Join(errs...)
}

func (s *Source) fetchFeed(ctx context.Context, f config.Feed) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w: %w", errors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w: %d", errors.ErrTransient, errors.ErrHTTPStatusNotOK, resp.StatusCode)
		}

		return nil, fmt.Errorf("%w: %d", errors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	// Parsers hold per-document state, so each feed gets its own.
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w: %w", errors.ErrNoData, err)
	}

	source := f.Name
	if source == "" {
		source = hostOf(f.URL)
	}

	items := make([]domain.RawItem, 0, len(feed.Items))

	for _, entry := range feed.Items {
		link := entry.Link
		if link == "" {
			link = entry.GUID
		}

		if link == "" {
			continue
		}

		items = append(items, domain.RawItem{
			Title:       textnorm.Normalize(entry.Title),
			URL:         link,
			Source:      source,
			PublishedAt: s.entryDate(entry),
		})
	}

	s.logger.Debug().Str("feed", f.Name).Int("entries", len(items)).Msg("feed parsed")

	return items, nil
}

// entryDate resolves published, then updated, then the raw strings, then now.
func (s *Source) entryDate(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}

	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}

	for _, raw := range []string{entry.Published, entry.Updated} {
		if raw == "" {
			continue
		}

		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			return t.UTC()
		}
	}

	return s.now().UTC()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
