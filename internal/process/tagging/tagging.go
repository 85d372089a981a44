// Package tagging assigns theme tags by exact keyword membership.
package tagging

import (
	"sort"
	"strings"

	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

type keyword struct {
	tag    string
	folded string
}

// Tagger matches the problem and solution vocabularies against article text.
type Tagger struct {
	keywords []keyword
}

// New builds a Tagger from the topic vocabularies.
func New(topic config.Topic) *Tagger {
	all := append(append([]string{}, topic.Keywords.Problems...), topic.Keywords.Solutions...)

	t := &Tagger{keywords: make([]keyword, 0, len(all))}
	for _, k := range all {
		if strings.TrimSpace(k) == "" {
			continue
		}

		t.keywords = append(t.keywords, keyword{tag: k, folded: textnorm.Fold(k)})
	}

	return t
}

// Tag returns the configured keywords found in text, sorted and unique.
// There is no stemming or partial matching.
func (t *Tagger) Tag(text string) []string {
	body := textnorm.Fold(text)
	seen := make(map[string]struct{})
	tags := []string{}

	for _, k := range t.keywords {
		if !strings.Contains(body, k.folded) {
			continue
		}

		if _, ok := seen[k.tag]; ok {
			continue
		}

		seen[k.tag] = struct{}{}
		tags = append(tags, k.tag)
	}

	sort.Strings(tags)

	return tags
}
