// Package social collects tweets and reddit posts through the snscrape CLI.
//
// snscrape prints one JSON object per line. Each post becomes a candidate
// whose inline HTML is the post body, so the pipeline never fetches it.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	// SourceName labels this connector in logs and metrics.
	SourceName = "social"

	DefaultBinary  = "snscrape"
	defaultTimeout = 60 * time.Second

	twitterMaxResults = 30
	redditMaxResults  = 50

	sourceTwitter = "Twitter"
	sourceReddit  = "Reddit"

	maxLineBytes = 1 << 20
)

// Runner executes a command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("run %s: %w", name, err)
	}

	return out, nil
}

type tweet struct {
	URL             string `json:"url"`
	Date            string `json:"date"`
	RenderedContent string `json:"renderedContent"`
	Content         string `json:"content"`
	User            struct {
		Username string `json:"username"`
	} `json:"user"`
}

type redditPost struct {
	URL      string `json:"url"`
	Date     string `json:"date"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	SelfText string `json:"selftext"`
}

// Source runs the configured twitter and reddit searches.
type Source struct {
	cfg     config.SocialConfig
	twitter []string
	reddit  []string
	runner  Runner
	logger  *zerolog.Logger
}

// New creates a social source. runner may be nil to use ExecRunner.
func New(cfg config.SocialConfig, searches config.SocialSearches, runner Runner, logger *zerolog.Logger) *Source {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if runner == nil {
		runner = ExecRunner{}
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Source{
		cfg:     cfg,
		twitter: searches.TwitterSearches,
		reddit:  searches.RedditSearches,
		runner:  runner,
		logger:  logger,
	}
}

func (s *Source) Name() string { return SourceName }

// Fetch runs every twitter search, then every reddit search. A failed search
// is reported in the returned error; the posts of the others are kept.
func (s *Source) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if len(s.twitter) == 0 && len(s.reddit) == 0 {
		return nil, fmt.Errorf("no social searches configured: %w", errors.ErrUnsupported)
	}

	var (
		out  []domain.RawItem
		errs []error
	)

	for _, q := range s.twitter {
		items, err := s.search(ctx, "twitter-search", twitterMaxResults, q, parseTweet)
		out = append(out, items...)

		if err != nil {
			if errors.Is(err, errors.ErrUnsupported) {
				return out, err
			}

			errs = append(errs, err)
		}
	}

	for _, q := range s.reddit {
		items, err := s.search(ctx, "reddit-search", redditMaxResults, q, parseRedditPost)
		out = append(out, items...)

		if err != nil {
			if errors.Is(err, errors.ErrUnsupported) {
				return out, err
			}

			errs = append(errs, err)
		}
	}

	return out, stderrors.Join(errs...)
}

type lineParser func(line []byte) (domain.RawItem, error)

func (s *Source) search(ctx context.Context, scraper string, maxResults int, q string, parse lineParser) ([]domain.RawItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := s.runner.Run(ctx, s.cfg.Binary, "--jsonl", "--max-results", strconv.Itoa(maxResults), scraper, q)
	if err != nil {
		s.logger.Warn().Err(err).Str("scraper", scraper).Str("query", q).Msg("social search failed")

		switch {
		case stderrors.Is(err, exec.ErrNotFound):
			return nil, fmt.Errorf("%s not installed: %w: %w", s.cfg.Binary, errors.ErrUnsupported, err)
		case stderrors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
			return nil, fmt.Errorf("%s %q: %w: %w", scraper, q, errors.ErrTransient, err)
		}

		return nil, fmt.Errorf("%s %q: %w", scraper, q, err)
	}

	return s.parseLines(out, scraper, parse), nil
}

// parseLines skips lines that are not valid posts and lines longer than
// maxLineBytes; the lines after them are still read.
func (s *Source) parseLines(out []byte, scraper string, parse lineParser) []domain.RawItem {
	var items []domain.RawItem

	skipped, oversized := 0, 0

	for rest := out; len(rest) > 0; {
		var line []byte

		line, rest, _ = bytes.Cut(rest, []byte{'\n'})
		if len(line) > maxLineBytes {
			oversized++
			continue
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		item, err := parse(line)
		if err != nil {
			skipped++
			continue
		}

		items = append(items, item)
	}

	if oversized > 0 {
		s.logger.Warn().Str("scraper", scraper).Int("oversized", oversized).Int("limit", maxLineBytes).
			Msg("dropped oversized social lines")
	}

	if skipped > 0 {
		s.logger.Debug().Str("scraper", scraper).Int("skipped", skipped).Msg("skipped malformed social lines")
	}

	return items
}

var errNoURL = stderrors.New("post has no url")

func parseTweet(line []byte) (domain.RawItem, error) {
	var t tweet
	if err := json.Unmarshal(line, &t); err != nil {
		return domain.RawItem{}, fmt.Errorf("decode tweet: %w", err)
	}

	if t.URL == "" {
		return domain.RawItem{}, errNoURL
	}

	user := t.User.Username
	if user == "" {
		user = "unknown"
	}

	body := t.RenderedContent
	if body == "" {
		body = t.Content
	}

	return domain.RawItem{
		Title:       "Tweet by @" + user,
		URL:         t.URL,
		Source:      sourceTwitter,
		PublishedAt: parseDate(t.Date),
		InlineHTML:  body,
	}, nil
}

func parseRedditPost(line []byte) (domain.RawItem, error) {
	var p redditPost
	if err := json.Unmarshal(line, &p); err != nil {
		return domain.RawItem{}, fmt.Errorf("decode reddit post: %w", err)
	}

	if p.URL == "" {
		return domain.RawItem{}, errNoURL
	}

	title := p.Title
	if title == "" {
		title = "Reddit post"
	}

	body := p.Content
	if body == "" {
		body = p.SelfText
	}

	return domain.RawItem{
		Title:       title,
		URL:         p.URL,
		Source:      sourceReddit,
		PublishedAt: parseDate(p.Date),
		InlineHTML:  body,
	}, nil
}

// parseDate returns the zero time for missing or unparseable dates.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}
