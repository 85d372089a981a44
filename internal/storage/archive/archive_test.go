package archive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
)

func testItem(i int) domain.ProcessedItem {
	return domain.ProcessedItem{
		ID:             fmt.Sprintf("id-%d", i),
		Title:          fmt.Sprintf("Item %d", i),
		URL:            fmt.Sprintf("https://example.com/%d", i),
		Source:         "NAO",
		Date:           time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		RelevanceScore: 0.3,
		Tags:           []string{"delays"},
		Solutions:      []string{},
		ContentHash:    fmt.Sprintf("hash-%d", i),
		ContentLength:  900,
	}
}

func TestBuildInsert(t *testing.T) {
	runID := uuid.MustParse("7f8d4b9e-1c2a-4e3f-9a6b-5c4d3e2f1a0b")

	query, args, err := buildInsert(runID, []domain.ProcessedItem{testItem(1), testItem(2)})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO processed_items (id,url,title,source,published_at,summary,relevance_score,tags,solutions,content_hash,content_length,run_id) VALUES ($1,"))
	assert.True(t, strings.HasSuffix(query, "ON CONFLICT DO NOTHING"))
	assert.Contains(t, query, "$24")
	assert.Len(t, args, 24)
	assert.Equal(t, "https://example.com/1", args[1])
	assert.Equal(t, pgtype.UUID{Bytes: runID, Valid: true}, args[11])
}

func TestHelpers(t *testing.T) {
	assert.False(t, toUUID(uuid.Nil).Valid)
	assert.False(t, toTimestamptz(time.Time{}).Valid)
	assert.Equal(t, "ab", sanitizeUTF8("a\xffb"))
	assert.Equal(t, []string{"ok", "xy"}, sanitizeAll([]string{"ok", "x\xc3y"}))
}

func TestArchive_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	logger := zerolog.Nop()

	a, err := New(ctx, dsn, &logger)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NoError(t, a.Migrate(ctx))
	require.NoError(t, a.Ready(ctx))

	_, err = a.Pool.Exec(ctx, "TRUNCATE processed_items, ingest_runs")
	require.NoError(t, err)

	runID := uuid.New()

	n, err := a.Mirror(ctx, runID, []domain.ProcessedItem{testItem(1), testItem(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	dupContent := testItem(3)
	dupContent.ContentHash = testItem(1).ContentHash

	n, err = a.Mirror(ctx, runID, []domain.ProcessedItem{testItem(1), dupContent})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	now := time.Now()
	require.NoError(t, a.RecordRun(ctx, RunRecord{ID: runID, StartedAt: now, FinishedAt: now, NewItems: 2, TotalItems: 2}))
}
