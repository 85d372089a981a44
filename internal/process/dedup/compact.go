package dedup

import (
	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
)

// Log key constants for deduplication.
const (
	logKeySkippedID   = "skipped_id"
	logKeyDuplicateOf = "duplicate_of"
	logKeyReason      = "reason"
)

// CompactResult contains the result of compaction with metadata.
type CompactResult struct {
	// Items contains the surviving items in their original order.
	Items []domain.ProcessedItem

	// DroppedCount is the number of items removed as duplicates.
	DroppedCount int

	// DuplicateMap maps dropped item IDs to the ID of the item they duplicated.
	DuplicateMap map[string]string
}

// Compact removes later items that repeat an earlier url or content hash.
// Stores written by this program never need it; older stores may.
func Compact(items []domain.ProcessedItem, logger *zerolog.Logger) CompactResult {
	result := CompactResult{
		Items:        make([]domain.ProcessedItem, 0, len(items)),
		DuplicateMap: make(map[string]string),
	}

	byURL := make(map[string]string, len(items))
	byHash := make(map[string]string, len(items))

	for _, it := range items {
		duplicateOf, reason := "", ""

		if id, ok := byURL[it.URL]; ok {
			duplicateOf, reason = id, "url"
		} else if id, ok := byHash[it.ContentHash]; ok && it.ContentHash != "" {
			duplicateOf, reason = id, "content"
		}

		if reason != "" {
			result.DroppedCount++
			result.DuplicateMap[it.ID] = duplicateOf

			if logger != nil {
				logger.Debug().
					Str(logKeySkippedID, it.ID).
					Str(logKeyDuplicateOf, duplicateOf).
					Str(logKeyReason, reason).
					Msg("Dropping stored duplicate")
			}

			continue
		}

		byURL[it.URL] = it.ID
		if it.ContentHash != "" {
			byHash[it.ContentHash] = it.ID
		}

		result.Items = append(result.Items, it)
	}

	return result
}
