package scoring

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	testTitle  = "MoD delays equipment plan amid budget pressure"
	testURL    = "https://www.gov.uk/government/news/mod-delays-equipment-plan"
	testPhrase = "The equipment plan faces budget pressure across the armed forces this year. "
	epsilon    = 1e-9
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testTopic() config.Topic {
	topic := config.DefaultTopic()
	topic.PreferDomains = []string{"gov.uk"}
	topic.Keywords = config.Keywords{
		Problems:  []string{"budget pressure"},
		Solutions: []string{"competition"},
	}

	return topic
}

func testBody(n int) string {
	return strings.Repeat(testPhrase, n/len(testPhrase)+1)[:n]
}

func newTestScorer(topic config.Topic) *Scorer {
	return New(topic, WithClock(func() time.Time { return testNow }))
}

func TestScore_ConcreteScenario(t *testing.T) {
	s := newTestScorer(testTopic())

	got := s.Score(domain.Meta{
		Title: testTitle,
		URL:   testURL,
		Date:  testNow.AddDate(0, 0, -10),
	}, testBody(1200))

	// domain 0.08 + title keyword 0.10 + body keyword 0.06 + problem 0.02 + length 0.10 + recency 0.06
	assert.InDelta(t, 0.42, got, epsilon)
	assert.Greater(t, got, 0.2)
	assert.LessOrEqual(t, got, 1.0)
}

func TestScore_Contributions(t *testing.T) {
	tests := []struct {
		name string
		meta domain.Meta
		body string
		want float64
	}{
		{
			name: "short body without date",
			meta: domain.Meta{URL: "https://example.com/a"},
			body: "tiny",
			want: -0.08,
		},
		{
			name: "stale date",
			meta: domain.Meta{URL: "https://example.com/a", Date: testNow.AddDate(-2, 0, 0)},
			body: "tiny",
			want: -0.08 - 0.04,
		},
		{
			name: "recency boundary is inclusive",
			meta: domain.Meta{URL: "https://example.com/a", Date: testNow.AddDate(0, 0, -365)},
			body: "tiny",
			want: -0.08 + 0.06,
		},
		{
			name: "keyword counted once regardless of occurrences",
			meta: domain.Meta{URL: "https://example.com/a"},
			body: "tender tender tender",
			want: 0.06 - 0.08,
		},
		{
			name: "case-insensitive title match",
			meta: domain.Meta{Title: "DEFENCE PROCUREMENT review", URL: "https://example.com/a"},
			body: "",
			want: 0.10 - 0.08,
		},
		{
			name: "domain must be in host not path",
			meta: domain.Meta{URL: "https://example.com/gov.uk/page"},
			body: "",
			want: -0.08,
		},
		{
			name: "solution keyword in body",
			meta: domain.Meta{URL: "not a url ::"},
			body: "more competition needed",
			want: 0.02 - 0.08,
		},
	}

	s := newTestScorer(testTopic())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Score(tt.meta, tt.body), epsilon)
		})
	}
}

func TestScore_UnknownDateSkipsRecency(t *testing.T) {
	s := newTestScorer(testTopic())
	meta := domain.Meta{Title: testTitle, URL: testURL}
	text := testBody(1200)

	undated := s.Score(meta, text)

	meta.Date = testNow
	recent := s.Score(meta, text)

	meta.Date = testNow.AddDate(-3, 0, 0)
	stale := s.Score(meta, text)

	assert.InDelta(t, 0.06, recent-undated, epsilon)
	assert.InDelta(t, -0.04, stale-undated, epsilon)
}

func TestScore_Clamped(t *testing.T) {
	topic := testTopic()
	topic.PreferDomains = strings.Split(strings.Repeat("gov,", 40), ",")

	s := newTestScorer(topic)
	got := s.Score(domain.Meta{URL: testURL, Date: testNow}, testBody(1200))

	assert.Equal(t, 1.0, got)
}

func TestScore_AlwaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := append(append([]string{}, config.DefaultBaseKeywords...), "gov", "uk", "budget pressure", "x", "competition")

	pick := func(n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = words[rng.Intn(len(words))]
		}

		return strings.Join(parts, " ")
	}

	for i := 0; i < 500; i++ {
		topic := testTopic()
		topic.PreferDomains = strings.Fields(pick(rng.Intn(30)))
		topic.Keywords.Problems = strings.Fields(pick(rng.Intn(60)))

		s := newTestScorer(topic)
		got := s.Score(domain.Meta{
			Title: pick(rng.Intn(20)),
			URL:   "https://" + strings.ReplaceAll(pick(3), " ", ".") + "/x",
			Date:  testNow.AddDate(0, 0, -rng.Intn(1000)),
		}, pick(rng.Intn(400)))

		assert.GreaterOrEqual(t, got, -1.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := newTestScorer(testTopic())
	meta := domain.Meta{Title: testTitle, URL: testURL, Date: testNow}

	assert.Equal(t, s.Score(meta, testBody(900)), s.Score(meta, testBody(900)))
}
