// Package archive mirrors the corpus into PostgreSQL.
//
// The JSON store stays the source of truth. The archive is written after the
// store has been replaced and only ever inserts; rows are never updated, which
// matches the create-once lifecycle of stored items.
package archive

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/platform/worker"
	"github.com/lueurxax/procurement-monitor/migrations"
)

const (
	tableItems = "processed_items"
	tableRuns  = "ingest_runs"

	// insertBatchSize keeps each statement well below the 65535 parameter limit.
	insertBatchSize = 500

	// ConnectionRetrySleep is the sleep duration between connection retries
	ConnectionRetrySleep = 2 * time.Second
	// maxConnectionRetries is the number of retries for initial connection
	maxConnectionRetries = 3

	defaultMaxConns = 4
	migrationLockID = 4711
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Archive wraps a PostgreSQL connection pool.
type Archive struct {
	Pool   *pgxpool.Pool
	Logger *zerolog.Logger
}

// RunRecord summarises one ingestion run.
type RunRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	NewItems   int
	TotalItems int
}

// New connects to dsn with a few retries.
func New(ctx context.Context, dsn string, logger *zerolog.Logger) (*Archive, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if config.MaxConns > defaultMaxConns {
		config.MaxConns = defaultMaxConns
	}

	return connectWithRetries(ctx, config, logger)
}

// connectWithRetries attempts to connect to the database with retries.
func connectWithRetries(ctx context.Context, config *pgxpool.Config, logger *zerolog.Logger) (*Archive, error) {
	var pool *pgxpool.Pool

	var err error

	for i := 0; i < maxConnectionRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return &Archive{Pool: pool, Logger: logger}, nil
			}
		}

		if pool != nil {
			pool.Close()
		}

		logger.Warn().Err(err).Int("attempt", i+1).Msg("archive not reachable, retrying")

		if werr := worker.Wait(ctx, ConnectionRetrySleep); werr != nil {
			return nil, fmt.Errorf("connect to database: %w", werr)
		}
	}

	return nil, fmt.Errorf("failed to connect to database after retries: %w", err)
}

// Close closes the database connection pool.
func (a *Archive) Close() {
	a.Pool.Close()
}

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error().Msgf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// Migrate runs database migrations using goose under an advisory lock.
func (a *Archive) Migrate(ctx context.Context) error {
	conn, err := a.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	defer func() {
		//nolint:errcheck // advisory unlock in defer is best-effort, lock released on connection close anyway
		_, _ = conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	dbSQL := stdlib.OpenDB(*a.Pool.Config().ConnConfig)

	defer func() {
		_ = dbSQL.Close()
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: a.Logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, dbSQL, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Ready pings the database.
func (a *Archive) Ready(ctx context.Context) error {
	if err := a.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping archive: %w", err)
	}

	return nil
}

// Mirror inserts items that are not archived yet and returns how many rows were added.
// Conflicts on url or content hash are skipped.
func (a *Archive) Mirror(ctx context.Context, runID uuid.UUID, items []domain.ProcessedItem) (int64, error) {
	var inserted int64

	for start := 0; start < len(items); start += insertBatchSize {
		end := min(start+insertBatchSize, len(items))

		query, args, err := buildInsert(runID, items[start:end])
		if err != nil {
			return inserted, err
		}

		tag, err := a.Pool.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert processed items: %w", err)
		}

		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

func buildInsert(runID uuid.UUID, items []domain.ProcessedItem) (string, []interface{}, error) {
	b := psql.Insert(tableItems).Columns(
		"id", "url", "title", "source", "published_at", "summary", "relevance_score",
		"tags", "solutions", "content_hash", "content_length", "run_id",
	)

	for _, it := range items {
		b = b.Values(
			it.ID,
			sanitizeUTF8(it.URL),
			sanitizeUTF8(it.Title),
			sanitizeUTF8(it.Source),
			toTimestamptz(it.Date),
			sanitizeUTF8(it.Summary),
			it.RelevanceScore,
			sanitizeAll(it.Tags),
			sanitizeAll(it.Solutions),
			it.ContentHash,
			it.ContentLength,
			toUUID(runID),
		)
	}

	query, args, err := b.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build insert: %w", err)
	}

	return query, args, nil
}

// RecordRun stores run bookkeeping.
func (a *Archive) RecordRun(ctx context.Context, rec RunRecord) error {
	query, args, err := psql.Insert(tableRuns).
		Columns("id", "started_at", "finished_at", "new_items", "total_items").
		Values(toUUID(rec.ID), rec.StartedAt.UTC(), rec.FinishedAt.UTC(), rec.NewItems, rec.TotalItems).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}

	if _, err := a.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// Count returns the number of archived items.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	query, args, err := psql.Select("count(*)").From(tableItems).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int64
	if err := a.Pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count processed items: %w", err)
	}

	return n, nil
}

// Helpers

func toUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}

	return pgtype.UUID{Bytes: id, Valid: true}
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t.UTC(), Valid: !t.IsZero()}
}

// sanitizeUTF8 removes invalid UTF-8 sequences, which Postgres rejects in TEXT.
func sanitizeUTF8(s string) string {
	if s == "" || utf8.ValidString(s) {
		return s
	}

	return strings.ToValidUTF8(s, "")
}

func sanitizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sanitizeUTF8(s)
	}

	return out
}
