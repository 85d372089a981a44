// Package storage persists the corpus and its aggregates as JSON files.
//
// The store is read once at the start of a run and replaced once at the end.
// Each file is written to a temporary sibling, synced and renamed over the
// target, so an interrupted write leaves the previous file intact.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	coreerrors "github.com/lueurxax/procurement-monitor/internal/core/errors"
)

const (
	ArticlesFile = "articles.json"
	ThemesFile   = "themes.json"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Store is the JSON file store rooted at a data directory.
type Store struct {
	dir    string
	logger *zerolog.Logger
}

// New creates a store rooted at dir.
func New(dir string, logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Store{dir: dir, logger: logger}
}

// ArticlesPath returns the path of the corpus file.
func (s *Store) ArticlesPath() string {
	return filepath.Join(s.dir, ArticlesFile)
}

// ThemesPath returns the path of the aggregates file.
func (s *Store) ThemesPath() string {
	return filepath.Join(s.dir, ThemesFile)
}

// Load reads the corpus. A missing file is an empty store; an unreadable file
// wraps ErrStoreRead and an undecodable one wraps ErrStoreCorrupt.
func (s *Store) Load(ctx context.Context) ([]domain.ProcessedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	data, err := os.ReadFile(s.ArticlesPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info().Str("path", s.ArticlesPath()).Msg("no existing store, starting empty")
			return []domain.ProcessedItem{}, nil
		}

		return nil, fmt.Errorf("%w: %w", coreerrors.ErrStoreRead, err)
	}

	return decodeItems(data)
}

func decodeItems(data []byte) ([]domain.ProcessedItem, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty file", coreerrors.ErrStoreCorrupt)
	}

	var items []domain.ProcessedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", coreerrors.ErrStoreCorrupt, err)
	}

	if items == nil {
		items = []domain.ProcessedItem{}
	}

	return items, nil
}

// Save replaces the corpus and then the aggregates file.
func (s *Store) Save(items []domain.ProcessedItem, agg domain.Aggregates) error {
	if items == nil {
		items = []domain.ProcessedItem{}
	}

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("%w: create data dir: %w", coreerrors.ErrStoreWrite, err)
	}

	if err := writeJSONAtomic(s.ArticlesPath(), items); err != nil {
		return err
	}

	return writeJSONAtomic(s.ThemesPath(), agg)
}

// LoadAggregates reads the aggregates file written by the last run.
func (s *Store) LoadAggregates() (domain.Aggregates, error) {
	var agg domain.Aggregates

	data, err := os.ReadFile(s.ThemesPath())
	if err != nil {
		return agg, fmt.Errorf("%w: %w", coreerrors.ErrStoreRead, err)
	}

	if err := json.Unmarshal(data, &agg); err != nil {
		return agg, fmt.Errorf("%w: %w", coreerrors.ErrStoreCorrupt, err)
	}

	return agg, nil
}

// Ready reports whether the store can be read. A missing store is ready.
func (s *Store) Ready(_ context.Context) error {
	f, err := os.Open(s.ArticlesPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("%w: %w", coreerrors.ErrStoreRead, err)
	}

	return f.Close()
}

// Marshal encodes v the way store files are written.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}

	return buf.Bytes(), nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", coreerrors.ErrStoreWrite, err)
	}

	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it and
// renames it over path.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", coreerrors.ErrStoreWrite, err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("%w: write temp file: %w", coreerrors.ErrStoreWrite, err)
	}

	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync temp file: %w", coreerrors.ErrStoreWrite, err)
	}

	if err = tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", coreerrors.ErrStoreWrite, err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", coreerrors.ErrStoreWrite, err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", coreerrors.ErrStoreWrite, filepath.Base(path), err)
	}

	return nil
}
