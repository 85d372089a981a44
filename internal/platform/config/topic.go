package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseKeywords is the domain vocabulary used when the topic file sets none.
var DefaultBaseKeywords = []string{
	"defence procurement",
	"defense procurement",
	"acquisition",
	"tender",
	"contracting",
	"de&s",
	"industrial base",
	"nao",
	"equipment plan",
	"ssro",
	"single source",
}

const (
	defaultMinChars          = 800
	defaultPreferRecencyDays = 365
	defaultSummarySentences  = 5
)

var errNoTopicPath = errors.New("topic config path is empty")

// Topic is the per-run topic configuration. It is treated as immutable once loaded;
// use WithSeedTerms to derive a variant.
type Topic struct {
	Topic         string         `yaml:"topic"`
	Feeds         []Feed         `yaml:"feeds"`
	Queries       []string       `yaml:"queries"`
	PreferDomains []string       `yaml:"prefer_domains"`
	BaseKeywords  []string       `yaml:"base_keywords"`
	Keywords      Keywords       `yaml:"keywords"`
	ExcludeTerms  []string       `yaml:"exclude_terms"`
	Scoring       ScoringConfig  `yaml:"scoring"`
	Summary       SummaryConfig  `yaml:"summary"`
	Social        SocialSearches `yaml:"social"`
}

// Feed is a named RSS or Atom source.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Keywords are the problem and solution vocabularies used for scoring and tagging.
type Keywords struct {
	Problems  []string `yaml:"problems"`
	Solutions []string `yaml:"solutions"`
}

type ScoringConfig struct {
	MinChars          int `yaml:"min_chars"`
	PreferRecencyDays int `yaml:"prefer_recency_days"`
}

type SummaryConfig struct {
	Sentences int `yaml:"sentences"`
}

type SocialSearches struct {
	TwitterSearches []string `yaml:"twitter_searches"`
	RedditSearches  []string `yaml:"reddit_searches"`
}

// DefaultTopic returns a topic with scoring defaults and the base vocabulary.
func DefaultTopic() Topic {
	return Topic{
		BaseKeywords: slices.Clone(DefaultBaseKeywords),
		Scoring: ScoringConfig{
			MinChars:          defaultMinChars,
			PreferRecencyDays: defaultPreferRecencyDays,
		},
		Summary: SummaryConfig{Sentences: defaultSummarySentences},
	}
}

// LoadTopic reads a YAML topic file and merges it over DefaultTopic.
func LoadTopic(path string) (Topic, error) {
	if path == "" {
		return Topic{}, errNoTopicPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Topic{}, fmt.Errorf("reading topic config: %w", err)
	}

	return ParseTopic(data)
}

// ParseTopic decodes a YAML topic document over DefaultTopic.
func ParseTopic(data []byte) (Topic, error) {
	t := DefaultTopic()
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topic{}, fmt.Errorf("parsing topic config: %w", err)
	}

	if len(t.BaseKeywords) == 0 {
		t.BaseKeywords = slices.Clone(DefaultBaseKeywords)
	}

	if t.Scoring.MinChars <= 0 {
		t.Scoring.MinChars = defaultMinChars
	}

	if t.Scoring.PreferRecencyDays <= 0 {
		t.Scoring.PreferRecencyDays = defaultPreferRecencyDays
	}

	if t.Summary.Sentences <= 0 {
		t.Summary.Sentences = defaultSummarySentences
	}

	return t, nil
}

// Clone returns a deep copy of t.
func (t Topic) Clone() Topic {
	c := t
	c.Feeds = slices.Clone(t.Feeds)
	c.Queries = slices.Clone(t.Queries)
	c.PreferDomains = slices.Clone(t.PreferDomains)
	c.BaseKeywords = slices.Clone(t.BaseKeywords)
	c.Keywords.Problems = slices.Clone(t.Keywords.Problems)
	c.Keywords.Solutions = slices.Clone(t.Keywords.Solutions)
	c.ExcludeTerms = slices.Clone(t.ExcludeTerms)
	c.Social.TwitterSearches = slices.Clone(t.Social.TwitterSearches)
	c.Social.RedditSearches = slices.Clone(t.Social.RedditSearches)

	return c
}

// WithSeedTerms returns a copy of t whose problem vocabulary is extended with
// every term not already present in either vocabulary. t is left untouched.
func (t Topic) WithSeedTerms(terms []string) Topic {
	c := t.Clone()

	known := make(map[string]struct{}, len(c.Keywords.Problems)+len(c.Keywords.Solutions))
	for _, k := range c.Keywords.Problems {
		known[strings.ToLower(k)] = struct{}{}
	}

	for _, k := range c.Keywords.Solutions {
		known[strings.ToLower(k)] = struct{}{}
	}

	for _, term := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" {
			continue
		}

		if _, ok := known[key]; ok {
			continue
		}

		known[key] = struct{}{}
		c.Keywords.Problems = append(c.Keywords.Problems, term)
	}

	return c
}
