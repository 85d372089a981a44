// Package seeds reads the user-curated seed material under DATA_DIR/user_seed:
// urls.txt lists pages to ingest and text/*.txt provide terms that bias the
// problem vocabulary for the run.
package seeds

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
)

const (
	// SourceName labels this connector in logs and metrics.
	SourceName = "seeds"

	// DefaultBiasTerms is how many seed terms are merged into the vocabulary.
	DefaultBiasTerms = 25

	seedDir  = "user_seed"
	urlsFile = "urls.txt"
	textDir  = "text"
)

// Source reads seed URLs and texts from a data directory.
type Source struct {
	dir       string
	stopwords config.Stopwords
	logger    *zerolog.Logger
}

// New creates a seed source rooted at dataDir/user_seed.
func New(dataDir string, stopwords config.Stopwords, logger *zerolog.Logger) *Source {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Source{
		dir:       filepath.Join(dataDir, seedDir),
		stopwords: stopwords,
		logger:    logger,
	}
}

func (s *Source) Name() string { return SourceName }

// Fetch returns one candidate per seed URL. Blank lines and lines starting
// with # are ignored. A missing urls.txt yields no candidates.
func (s *Source) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("read seed urls: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, urlsFile))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read seed urls: %w", err)
	}

	return ParseURLs(data), nil
}

// ParseURLs turns a urls.txt document into candidates.
func ParseURLs(data []byte) []domain.RawItem {
	var items []domain.RawItem

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		items = append(items, domain.RawItem{URL: line, Source: hostOf(line)})
	}

	return items
}

// BiasTerms reads every text/*.txt file in name order and returns the top
// DefaultBiasTerms terms. A missing directory yields no terms.
func (s *Source) BiasTerms() ([]string, error) {
	dir := filepath.Join(s.dir, textDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read seed texts: %w", err)
	}

	var texts []string

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable seed text")
			continue
		}

		texts = append(texts, string(data))
	}

	terms := BiasTerms(texts, s.stopwords, DefaultBiasTerms)
	s.logger.Debug().Int("files", len(texts)).Strs("terms", terms).Msg("seed bias terms")

	return terms, nil
}

// BiasTerms returns the k most frequent non-stopword tokens across texts.
// Ties keep the order in which tokens first appeared.
func BiasTerms(texts []string, stopwords config.Stopwords, k int) []string {
	counts := make(map[string]int)

	var order []string

	for _, text := range texts {
		for _, tok := range textnorm.Tokens(text) {
			if stopwords.Contains(tok) {
				continue
			}

			if _, ok := counts[tok]; !ok {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > k {
		order = order[:k]
	}

	return order
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
