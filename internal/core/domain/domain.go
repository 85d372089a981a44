package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// RawItem is a candidate article as emitted by a source connector.
// It is consumed once by the pipeline and never persisted.
type RawItem struct {
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
	// InlineHTML carries content the connector already has, such as a social post body.
	// When empty the pipeline fetches URL.
	InlineHTML string
}

// Meta is the subset of item fields the relevance scorer looks at.
type Meta struct {
	Title string
	URL   string
	Date  time.Time
}

// ProcessedItem is a stored corpus entry. It is created once and never mutated.
type ProcessedItem struct {
	ID             string
	Title          string
	URL            string
	Source         string
	Date           time.Time
	Summary        string
	RelevanceScore float64
	Tags           []string
	Solutions      []string
	ContentHash    string
	ContentLength  int
}

type processedItemJSON struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Source         string   `json:"source"`
	Date           string   `json:"date"`
	Summary        string   `json:"summary"`
	RelevanceScore float64  `json:"relevance_score"`
	Tags           []string `json:"tags"`
	Solutions      []string `json:"solutions"`
	ContentHash    string   `json:"content_hash"`
	ContentLength  int      `json:"content_length"`
}

// MarshalJSON writes the date as RFC 3339 UTC and empty collections as [].
func (p ProcessedItem) MarshalJSON() ([]byte, error) {
	out := processedItemJSON{
		ID:             p.ID,
		Title:          p.Title,
		URL:            p.URL,
		Source:         p.Source,
		Summary:        p.Summary,
		RelevanceScore: p.RelevanceScore,
		Tags:           nonNil(p.Tags),
		Solutions:      nonNil(p.Solutions),
		ContentHash:    p.ContentHash,
		ContentLength:  p.ContentLength,
	}
	if !p.Date.IsZero() {
		out.Date = p.Date.UTC().Format(time.RFC3339)
	}

	return json.Marshal(out)
}

// UnmarshalJSON accepts RFC 3339 as well as the looser ISO-8601 forms found in
// older stores (microseconds, numeric offsets, missing zone). Dates are normalised to UTC.
func (p *ProcessedItem) UnmarshalJSON(data []byte) error {
	var in processedItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err //nolint:wrapcheck // decoder error carries position
	}

	date, err := ParseDate(in.Date)
	if err != nil {
		return fmt.Errorf("item %s: %w", in.URL, err)
	}

	*p = ProcessedItem{
		ID:             in.ID,
		Title:          in.Title,
		URL:            in.URL,
		Source:         in.Source,
		Date:           date,
		Summary:        in.Summary,
		RelevanceScore: in.RelevanceScore,
		Tags:           in.Tags,
		Solutions:      in.Solutions,
		ContentHash:    in.ContentHash,
		ContentLength:  in.ContentLength,
	}

	return nil
}

// ParseDate parses a stored or feed-supplied timestamp into UTC.
// An empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}

	return t.UTC(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}

// ThemeCount is one row of the theme frequency table.
type ThemeCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SolutionCount is one row of the solution frequency table.
type SolutionCount struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// Aggregates is the derived rollup over the whole store.
type Aggregates struct {
	Updated      time.Time       `json:"updated"`
	Themes       []ThemeCount    `json:"themes"`
	TopSolutions []SolutionCount `json:"top_solutions"`
}

// Highlight is an item surfaced in the weekly digest.
type Highlight struct {
	Title  string
	URL    string
	Source string
	Score  float64
}

// WeeklyDigest is the 7-day view used for the weekly report.
type WeeklyDigest struct {
	GeneratedAt time.Time
	Since       time.Time
	ItemCount   int
	Themes      []ThemeCount
	Highlights  []Highlight
}
