package config

import (
	"fmt"
	"os"
	"strings"
)

// Stopwords is a set of lower-case words ignored by token-frequency heuristics.
type Stopwords map[string]struct{}

// Contains reports whether w is a stopword.
func (s Stopwords) Contains(w string) bool {
	_, ok := s[w]
	return ok
}

// ParseStopwords reads a comma or newline separated word list.
func ParseStopwords(data string) Stopwords {
	words := strings.FieldsFunc(data, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	out := make(Stopwords, len(words))

	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out[w] = struct{}{}
		}
	}

	return out
}

// LoadStopwords reads the stopword file at path. A missing file yields an empty set.
func LoadStopwords(path string) (Stopwords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stopwords{}, nil
		}

		return nil, fmt.Errorf("reading stopwords: %w", err)
	}

	return ParseStopwords(string(data)), nil
}
