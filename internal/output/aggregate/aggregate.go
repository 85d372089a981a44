// Package aggregate derives the theme and solution rollups and the weekly
// window from the merged store. Everything here is a pure function of its
// inputs: the same store and clock always give the same output.
package aggregate

import (
	"sort"
	"time"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
)

const (
	// MaxEntries caps each frequency table.
	MaxEntries = 50

	// WeeklyWindow is the look-back of the weekly digest.
	WeeklyWindow = 7 * 24 * time.Hour

	// WeeklyThemes and WeeklyHighlights cap the digest sections.
	WeeklyThemes     = 10
	WeeklyHighlights = 10
)

// counter keeps counts and remembers when each key was first seen so ties
// resolve by store order.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

type entry struct {
	key   string
	count int
}

// top returns at most n entries by count descending, first seen first on ties.
func (c *counter) top(n int) []entry {
	out := make([]entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, entry{key: k, count: c.counts[k]})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].count > out[j].count
	})

	if len(out) > n {
		out = out[:n]
	}

	return out
}

// Build recomputes the aggregates over items. Themes count items carrying a
// tag; solutions count every occurrence of the sentence text.
func Build(items []domain.ProcessedItem, now time.Time) domain.Aggregates {
	themes := themeCounter(items)
	sols := newCounter()

	for _, it := range items {
		for _, s := range it.Solutions {
			sols.add(s)
		}
	}

	agg := domain.Aggregates{
		Updated:      now.UTC(),
		Themes:       toThemes(themes.top(MaxEntries)),
		TopSolutions: make([]domain.SolutionCount, 0, MaxEntries),
	}

	for _, e := range sols.top(MaxEntries) {
		agg.TopSolutions = append(agg.TopSolutions, domain.SolutionCount{Text: e.key, Count: e.count})
	}

	return agg
}

// Window returns the items dated within d before now, in store order.
// Items without a date are outside every window.
func Window(items []domain.ProcessedItem, now time.Time, d time.Duration) []domain.ProcessedItem {
	since := now.Add(-d)
	out := make([]domain.ProcessedItem, 0)

	for _, it := range items {
		if it.Date.IsZero() || it.Date.Before(since) {
			continue
		}
		out = append(out, it)
	}

	return out
}

// Weekly builds the digest model for the last seven days.
func Weekly(items []domain.ProcessedItem, now time.Time) domain.WeeklyDigest {
	week := Window(items, now, WeeklyWindow)

	digest := domain.WeeklyDigest{
		GeneratedAt: now.UTC(),
		Since:       now.Add(-WeeklyWindow).UTC(),
		ItemCount:   len(week),
		Themes:      toThemes(themeCounter(week).top(WeeklyThemes)),
		Highlights:  make([]domain.Highlight, 0, WeeklyHighlights),
	}

	for i, it := range week {
		if i == WeeklyHighlights {
			break
		}

		digest.Highlights = append(digest.Highlights, domain.Highlight{
			Title:  it.Title,
			URL:    it.URL,
			Source: it.Source,
			Score:  it.RelevanceScore,
		})
	}

	return digest
}

func themeCounter(items []domain.ProcessedItem) *counter {
	c := newCounter()

	for _, it := range items {
		seen := make(map[string]struct{}, len(it.Tags))
		for _, t := range it.Tags {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			c.add(t)
		}
	}

	return c
}

func toThemes(entries []entry) []domain.ThemeCount {
	out := make([]domain.ThemeCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.ThemeCount{Name: e.key, Count: e.count})
	}

	return out
}
