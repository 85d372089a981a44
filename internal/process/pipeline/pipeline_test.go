package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/output/aggregate"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/process/dedup"
	"github.com/lueurxax/procurement-monitor/internal/process/scoring"
	"github.com/lueurxax/procurement-monitor/internal/process/summary"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	name  string
	items []domain.RawItem
	err   error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context) ([]domain.RawItem, error) {
	return f.items, f.err
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[url]++

	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: 404", coreerrors.ErrHTTPStatusNotOK)
	}

	return []byte(page), nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		n += c
	}

	return n
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(_ context.Context, text string) summary.Result {
	return summary.Result{Text: "summary of " + textnorm.Truncate(text, 10), Mode: summary.ModeExtractive}
}

func body(seed string) string {
	return strings.Repeat(seed+" The department should establish a single accountable owner for each major programme. ", 6)
}

func testTopic() config.Topic {
	t := config.DefaultTopic()
	t.PreferDomains = []string{"gov.uk"}
	t.Keywords = config.Keywords{
		Problems:  []string{"budget pressure"},
		Solutions: []string{"accountable owner"},
	}
	t.ExcludeTerms = []string{"job advert"}

	return t
}

func newEngine(fetcher Fetcher, opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)

	return New(testTopic(), Deps{
		Fetcher:    fetcher,
		Extract:    func(html, _ string) string { return html },
		Summarizer: fakeSummarizer{},
	}, opts...)
}

func raw(url, title string, age time.Duration) domain.RawItem {
	return domain.RawItem{Title: title, URL: url, Source: "Test Feed", PublishedAt: testNow.Add(-age)}
}

func TestProcessBuildsItem(t *testing.T) {
	const url = "https://www.gov.uk/news/equipment-plan"

	text := "MoD delays equipment plan amid budget pressure. " + body("alpha")
	f := newFakeFetcher(map[string]string{url: "  " + text + "\n\n"})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{raw(url, "MoD delays equipment plan", time.Hour)})
	require.NoError(t, err)
	require.Len(t, res.New, 1)

	got := res.New[0]
	norm := textnorm.Normalize(text)

	assert.Equal(t, dedup.ItemID(url), got.ID)
	assert.Equal(t, "MoD delays equipment plan", got.Title)
	assert.Equal(t, "Test Feed", got.Source)
	assert.Equal(t, testNow.Add(-time.Hour), got.Date)
	assert.Equal(t, textnorm.Fingerprint(norm), got.ContentHash)
	assert.Equal(t, textnorm.Len(norm), got.ContentLength)
	assert.Equal(t, []string{"accountable owner", "budget pressure"}, got.Tags)
	assert.NotEmpty(t, got.Solutions)
	assert.Equal(t, "summary of MoD delays", got.Summary)
	assert.Greater(t, got.RelevanceScore, 0.2)
	assert.LessOrEqual(t, got.RelevanceScore, 1.0)
	assert.Equal(t, roundScore(got.RelevanceScore), got.RelevanceScore)
	assert.Equal(t, res.New, res.Merged)
}

func TestProcessDedupByURL(t *testing.T) {
	const url = "https://example.org/a"

	f := newFakeFetcher(map[string]string{url: body("alpha")})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw(url, "First title", time.Hour),
		raw(url, "Second title", time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, res.Merged, 1)
	assert.Equal(t, "First title", res.Merged[0].Title)
	assert.Equal(t, 1, res.Rejected["duplicate_url"])
	assert.Equal(t, 1, f.totalCalls())
}

func TestProcessSameURLRetriedAfterRejection(t *testing.T) {
	const (
		shared = "https://example.org/shared"
		other  = "https://example.org/other"
	)

	f := newFakeFetcher(map[string]string{other: body("other")})
	e := newEngine(f)

	post := raw(shared, "Post linking the article", time.Hour)
	post.InlineHTML = body("inline")

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw(shared, "Seed with dead link", time.Hour),
		raw(other, "Other article", 2*time.Hour),
		post,
		raw(shared, "Third copy", time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, res.New, 2)
	assert.Equal(t, "Other article", res.New[0].Title)
	assert.Equal(t, "Post linking the article", res.New[1].Title)
	assert.Equal(t, 1, res.Rejected["fetch_failed"])
	assert.Equal(t, 1, res.Rejected["duplicate_url"])
	assert.Equal(t, 1, f.calls[shared])
}

func TestProcessSameURLRetriedAfterShortBody(t *testing.T) {
	const url = "https://example.org/a"

	f := newFakeFetcher(map[string]string{url: "too short"})
	e := newEngine(f)

	post := raw(url, "Full text", time.Hour)
	post.InlineHTML = body("full")

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw(url, "Stub page", time.Hour),
		post,
	})
	require.NoError(t, err)

	require.Len(t, res.New, 1)
	assert.Equal(t, "Full text", res.New[0].Title)
	assert.Equal(t, 1, res.Rejected["too_short"])
	assert.Zero(t, res.Rejected["duplicate_url"])
}

func TestProcessUnknownDateScoresNoRecency(t *testing.T) {
	const url = "https://example.org/undated"

	item := domain.RawItem{Title: "Undated post", URL: url, Source: "Reddit", InlineHTML: body("undated")}

	res, err := newEngine(newFakeFetcher(nil)).Process(context.Background(), nil, []domain.RawItem{item})
	require.NoError(t, err)
	require.Len(t, res.New, 1)

	scorer := scoring.New(testTopic(), scoring.WithClock(func() time.Time { return testNow }))
	text := textnorm.Normalize(item.InlineHTML)

	undated := scorer.Score(domain.Meta{Title: item.Title, URL: url}, text)
	dated := scorer.Score(domain.Meta{Title: item.Title, URL: url, Date: testNow}, text)

	assert.Equal(t, testNow, res.New[0].Date)
	assert.Equal(t, roundScore(undated), res.New[0].RelevanceScore)
	assert.NotEqual(t, roundScore(dated), res.New[0].RelevanceScore)
}

func TestProcessDedupByContent(t *testing.T) {
	text := body("alpha")

	f := newFakeFetcher(map[string]string{
		"https://example.org/a":        text,
		"https://mirror.example.net/a": "\n" + strings.ToUpper(strings.ReplaceAll(text, " ", "   ")),
	})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw("https://example.org/a", "Original", time.Hour),
		raw("https://mirror.example.net/a", "Mirror", time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, res.Merged, 1)
	assert.Equal(t, "https://example.org/a", res.Merged[0].URL)
	assert.Equal(t, 1, res.Rejected["duplicate_content"])
}

func TestProcessDedupAgainstExistingContent(t *testing.T) {
	text := textnorm.Normalize(body("alpha"))
	existing := []domain.ProcessedItem{{
		ID: "old", URL: "https://old.example.org", ContentHash: textnorm.Fingerprint(text), Date: testNow,
	}}

	f := newFakeFetcher(map[string]string{"https://new.example.org": text})
	e := newEngine(f)

	res, err := e.Process(context.Background(), existing, []domain.RawItem{raw("https://new.example.org", "", 0)})
	require.NoError(t, err)

	assert.Empty(t, res.New)
	assert.Equal(t, existing, res.Merged)
}

func TestProcessRejectsShortBody(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://example.org/short":  strings.Repeat("x", 399),
		"https://example.org/exact":  strings.Repeat("y", 400),
		"https://example.org/spaces": strings.Repeat("z ", 250),
	})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw("https://example.org/short", "s", time.Hour),
		raw("https://example.org/exact", "e", time.Hour),
		raw("https://example.org/spaces", "z", time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, res.New, 2)
	assert.Equal(t, "https://example.org/exact", res.New[0].URL)
	assert.Equal(t, 1, res.Rejected["too_short"])
}

func TestProcessExcludedTermsSkipFetch(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://example.org/jobs": body("alpha")})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{raw("https://example.org/jobs", "JOB ADVERT: buyer", 0)})
	require.NoError(t, err)

	assert.Empty(t, res.New)
	assert.Equal(t, 1, res.Rejected["excluded"])
	assert.Zero(t, f.totalCalls())
}

func TestProcessFetchFailureDropsItem(t *testing.T) {
	f := newFakeFetcher(map[string]string{"https://example.org/ok": body("ok")})
	e := newEngine(f)

	res, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw("https://example.org/missing", "gone", 0),
		raw("https://example.org/ok", "ok", 0),
		{URL: "", Title: "no url"},
	})
	require.NoError(t, err)

	require.Len(t, res.New, 1)
	assert.Equal(t, 1, res.Rejected["fetch_failed"])
	assert.Equal(t, 1, res.Rejected["no_url"])
}

func TestProcessInlineHTMLNeedsNoFetch(t *testing.T) {
	f := newFakeFetcher(nil)
	e := newEngine(f)

	item := raw("https://twitter.com/x/status/1", "Tweet by @x", 0)
	item.InlineHTML = body("inline")

	res, err := e.Process(context.Background(), nil, []domain.RawItem{item})
	require.NoError(t, err)

	require.Len(t, res.New, 1)
	assert.Zero(t, f.totalCalls())
}

func TestProcessDefaults(t *testing.T) {
	const url = "https://sub.example.org/path"

	text := body("fallback")
	f := newFakeFetcher(map[string]string{url: text})
	e := newEngine(f, WithSummaries(false))

	res, err := e.Process(context.Background(), nil, []domain.RawItem{{URL: url}})
	require.NoError(t, err)
	require.Len(t, res.New, 1)

	got := res.New[0]
	assert.Equal(t, textnorm.Truncate(textnorm.Normalize(text), TitleFallbackChars)+"…", got.Title)
	assert.Equal(t, "sub.example.org", got.Source)
	assert.Equal(t, testNow, got.Date)
	assert.Empty(t, got.Summary)
}

func TestProcessPreservesCandidateOrder(t *testing.T) {
	pages := make(map[string]string)

	var candidates []domain.RawItem

	for i := 0; i < 20; i++ {
		url := fmt.Sprintf("https://example.org/%02d", i)
		pages[url] = body(fmt.Sprintf("item-%02d", i))
		candidates = append(candidates, raw(url, url, 0))
	}

	e := newEngine(newFakeFetcher(pages), WithConcurrency(8))

	res, err := e.Process(context.Background(), nil, candidates)
	require.NoError(t, err)
	require.Len(t, res.New, 20)

	for i, it := range res.New {
		assert.Equal(t, candidates[i].URL, it.URL)
	}
}

func TestProcessSecondRunDoesNotGrowStore(t *testing.T) {
	const url = "https://example.org/only"

	f := newFakeFetcher(map[string]string{url: body("only")})
	e := newEngine(f)

	first, err := e.Process(context.Background(), nil, []domain.RawItem{raw(url, "only", time.Hour)})
	require.NoError(t, err)
	require.Len(t, first.Merged, 1)

	second, err := e.Process(context.Background(), first.Merged, []domain.RawItem{raw(url, "only again", time.Hour)})
	require.NoError(t, err)

	assert.Len(t, second.Merged, 1)
	assert.Empty(t, second.New)
	assert.Equal(t, 1, f.totalCalls(), "a stored URL must not be fetched again")
}

func TestProcessIdempotentWithoutNewItems(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://example.org/a": body("a"),
		"https://example.org/b": body("b"),
	})
	e := newEngine(f)

	first, err := e.Process(context.Background(), nil, []domain.RawItem{
		raw("https://example.org/a", "a", 2*time.Hour),
		raw("https://example.org/b", "b", time.Hour),
	})
	require.NoError(t, err)

	second, err := e.Process(context.Background(), first.Merged, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Merged, second.Merged)
	assert.Equal(t, aggregate.Build(first.Merged, testNow), aggregate.Build(second.Merged, testNow))
	assert.Equal(t, "https://example.org/b", first.Merged[0].URL, "newest first")
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newEngine(newFakeFetcher(map[string]string{"https://example.org/a": body("a")}))

	_, err := e.Process(ctx, nil, []domain.RawItem{raw("https://example.org/a", "a", 0)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIsolatesSourceFailures(t *testing.T) {
	f := newFakeFetcher(map[string]string{
		"https://example.org/good":    body("good"),
		"https://example.org/partial": body("partial"),
	})
	e := newEngine(f)

	sources := []Source{
		&fakeSource{name: "broken", err: fmt.Errorf("%w: timeout", coreerrors.ErrTransient)},
		&fakeSource{name: "good", items: []domain.RawItem{raw("https://example.org/good", "good", 0)}},
		&fakeSource{name: "disabled", err: coreerrors.ErrUnsupported},
		&fakeSource{
			name:  "partial",
			items: []domain.RawItem{raw("https://example.org/partial", "partial", 0)},
			err:   fmt.Errorf("one feed: %w", coreerrors.ErrNoData),
		},
	}

	res, err := e.Run(context.Background(), nil, sources)
	require.NoError(t, err)

	assert.Len(t, res.New, 2)
	assert.Equal(t, []string{"broken", "partial"}, res.FailedSources)
	assert.NotEqual(t, uuid.Nil, res.RunID)
}

func TestMergeSortsStablyByDateDescending(t *testing.T) {
	day := 24 * time.Hour
	existing := []domain.ProcessedItem{
		{URL: "e1", Date: testNow.Add(-2 * day)},
		{URL: "e2", Date: testNow.Add(-day)},
	}
	fresh := []domain.ProcessedItem{
		{URL: "n1", Date: testNow.Add(-day)},
		{URL: "n2", Date: testNow},
	}

	merged := Merge(existing, fresh)

	var urls []string
	for _, it := range merged {
		urls = append(urls, it.URL)
	}

	assert.Equal(t, []string{"n2", "e2", "n1", "e1"}, urls)
	assert.Equal(t, "e1", existing[0].URL, "inputs are not reordered")
}
