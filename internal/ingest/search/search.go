// Package search queries the Bing Web Search API for the configured queries.
package search

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	// SourceName labels this connector in logs and metrics.
	SourceName = "search"

	DefaultEndpoint = "https://api.bing.microsoft.com/v7.0/search"
	DefaultResults  = 15

	defaultTimeout  = 20 * time.Second
	market          = "en-GB"
	language        = "EN"
	subscriptionKey = "Ocp-Apim-Subscription-Key"
	maxBodyBytes    = 2 << 20

	// Bing's free tier allows three transactions per second.
	queriesPerSecond = 3
)

type webPage struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type response struct {
	WebPages struct {
		Value []webPage `json:"value"`
	} `json:"webPages"`
}

// Client runs each query once per Fetch.
type Client struct {
	cfg     config.SearchConfig
	queries []string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithClock sets the clock used to date results.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a search client.
func New(cfg config.SearchConfig, queries []string, logger *zerolog.Logger, opts ...Option) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	if cfg.Results <= 0 {
		cfg.Results = DefaultResults
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Client{
		cfg:     cfg,
		queries: queries,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(queriesPerSecond), 1),
		now:     time.Now,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Name() string { return SourceName }

// Fetch runs every query. Results carry the URL host as source and the
// current time as date, since the API does not report publication dates.
func (c *Client) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("search API key not set: %w", errors.ErrUnsupported)
	}

	if len(c.queries) == 0 {
		return nil, fmt.Errorf("no search queries configured: %w", errors.ErrUnsupported)
	}

	var (
		out  []domain.RawItem
		errs []error
	)

	for _, q := range c.queries {
		pages, err := c.query(ctx, q)
		if err != nil {
			c.logger.Warn().Err(err).Str("query", q).Msg("search query failed")
			errs = append(errs, fmt.Errorf("query %q: %w", q, err))

			if ctx.Err() != nil {
				break
			}

			continue
		}

		now := c.now().UTC()

		for _, p := range pages {
			if p.URL == "" {
				continue
			}

			out = append(out, domain.RawItem{
				Title:       textnorm.Normalize(p.Name),
				URL:         p.URL,
				Source:      hostOf(p.URL),
				PublishedAt: now,
			})
		}
	}

	return out, stderrors.Join(errs...)
}

func (c *Client) query(ctx context.Context, q string) ([]webPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(c.cfg.Results))
	params.Set("mkt", market)
	params.Set("setLang", language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	req.Header.Set(subscriptionKey, c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w: %w", errors.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %w: %d", errors.ErrUnsupported, errors.ErrHTTPStatusNotOK, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: %w: %d", errors.ErrTransient, errors.ErrHTTPStatusNotOK, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: %d", errors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w: %w", errors.ErrTransient, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode search response: %w: %w", errors.ErrNoData, err)
	}

	return r.WebPages.Value, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
