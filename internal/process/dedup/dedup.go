// Package dedup keeps the URL and content indices that guarantee the store never
// holds two items with the same url or the same content fingerprint.
//
// The index is seeded from the existing store and then extended with every
// item accepted during the run, so duplicates are caught both across runs and
// between sources within one run.
package dedup

import (
	"crypto/md5" //nolint:gosec // identifier, not a security boundary
	"encoding/hex"
	"sync"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
)

// ItemID derives the stable item identifier from its URL.
func ItemID(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// Index is the single writer for URL and content uniqueness. It is safe for
// concurrent use; each check-and-insert is atomic.
type Index struct {
	mu     sync.Mutex
	urls   map[string]struct{}
	hashes map[string]struct{}
}

// NewIndex seeds an index from the items already in the store.
func NewIndex(existing []domain.ProcessedItem) *Index {
	idx := &Index{
		urls:   make(map[string]struct{}, len(existing)),
		hashes: make(map[string]struct{}, len(existing)),
	}

	for _, it := range existing {
		if it.URL != "" {
			idx.urls[it.URL] = struct{}{}
		}

		if it.ContentHash != "" {
			idx.hashes[it.ContentHash] = struct{}{}
		}
	}

	return idx
}

// ReserveURL records url and reports whether it was unseen.
// An empty url is never accepted.
func (x *Index) ReserveURL(url string) bool {
	if url == "" {
		return false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.urls[url]; ok {
		return false
	}

	x.urls[url] = struct{}{}

	return true
}

// SeenURL reports whether url is already indexed without reserving it.
func (x *Index) SeenURL(url string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, ok := x.urls[url]

	return ok
}

// ClaimContent records a content fingerprint and reports whether it was unseen.
func (x *Index) ClaimContent(hash string) bool {
	if hash == "" {
		return false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.hashes[hash]; ok {
		return false
	}

	x.hashes[hash] = struct{}{}

	return true
}

// Len returns the number of indexed URLs and fingerprints.
func (x *Index) Len() (urls, hashes int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	return len(x.urls), len(x.hashes)
}
