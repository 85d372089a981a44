package links

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
)

// ErrTooManyRedirects indicates too many HTTP redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

const (
	defaultFetchTimeout = 20 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; procurement-monitor/1.0)"

	globalBurst  = 5
	hostRate     = 1
	hostBurst    = 2
	maxRedirects = 5
	maxBodyBytes = 5 << 20
)

// WebFetcher downloads article pages. Requests share a global rate limit and
// each host gets its own, so one slow publisher cannot be hammered by a batch
// of links pointing at it.
type WebFetcher struct {
	client    *http.Client
	global    *rate.Limiter
	userAgent string

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// FetcherOption customises a WebFetcher.
type FetcherOption func(*WebFetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *WebFetcher) { f.userAgent = ua }
}

// WithTransport replaces the HTTP transport. The timeout and redirect policy
// are kept.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *WebFetcher) { f.client.Transport = rt }
}

// NewWebFetcher creates a fetcher allowing rps requests per second overall.
// A non-positive rps disables the global limit.
func NewWebFetcher(rps float64, timeout time.Duration, opts ...FetcherOption) *WebFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	f := &WebFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return ErrTooManyRedirects
				}

				return nil
			},
		},
		global:    rate.NewLimiter(limit, globalBurst),
		userAgent: defaultUserAgent,
		hosts:     make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch returns the page body, capped at 5 MiB.
//
// Network failures, 429 and 5xx wrap ErrTransient. Other statuses wrap
// ErrHTTPStatusNotOK only. A response that declares a non-HTML content type
// (PDF, images) wraps ErrUnsupported.
func (f *WebFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.global.Wait(ctx); err != nil {
		return nil, fmt.Errorf("global rate limiter wait: %w", err)
	}

	if err := f.hostLimiter(hostOf(rawURL)).Wait(ctx); err != nil {
		return nil, fmt.Errorf("host rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", coreerrors.ErrInvalidInput, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w: %w", coreerrors.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w: %d", coreerrors.ErrTransient, coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
		}

		return nil, fmt.Errorf("%w: %d", coreerrors.ErrHTTPStatusNotOK, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); !isHTML(ct) {
		return nil, fmt.Errorf("%w: content type %q", coreerrors.ErrUnsupported, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w: %w", coreerrors.ErrTransient, err)
	}

	return body, nil
}

func (f *WebFetcher) hostLimiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.hosts[host]
	if !ok {
		l = rate.NewLimiter(hostRate, hostBurst)
		f.hosts[host] = l
	}

	return l
}

// isHTML accepts a missing content type; many small publishers omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return true
	}

	return mt == "text/html" || mt == "application/xhtml+xml" || mt == "text/plain"
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Host)
}
