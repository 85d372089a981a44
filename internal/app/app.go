// Package app provides the application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes two modes:
//
//   - Run mode: a single ingestion pass, optionally followed by the weekly report
//   - Scheduler mode: repeated passes, a weekly digest task and the health server
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/core/domain"
	"github.com/lueurxax/procurement-monitor/internal/core/links"
	"github.com/lueurxax/procurement-monitor/internal/core/llm"
	"github.com/lueurxax/procurement-monitor/internal/ingest/feeds"
	"github.com/lueurxax/procurement-monitor/internal/ingest/search"
	"github.com/lueurxax/procurement-monitor/internal/ingest/seeds"
	"github.com/lueurxax/procurement-monitor/internal/ingest/social"
	"github.com/lueurxax/procurement-monitor/internal/output/aggregate"
	"github.com/lueurxax/procurement-monitor/internal/output/digest"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/platform/observability"
	"github.com/lueurxax/procurement-monitor/internal/platform/worker"
	"github.com/lueurxax/procurement-monitor/internal/process/dedup"
	"github.com/lueurxax/procurement-monitor/internal/process/pipeline"
	"github.com/lueurxax/procurement-monitor/internal/process/summary"
	"github.com/lueurxax/procurement-monitor/internal/storage"
	"github.com/lueurxax/procurement-monitor/internal/storage/archive"
)

const (
	logFieldComponent = "component"
	logFieldRunID     = "run_id"
	logFieldPath      = "path"

	weeklyTaskName      = "weekly-digest"
	weeklyCheckInterval = time.Minute
	archiveTimeout      = 30 * time.Second

	statusOK     = "ok"
	statusFailed = "failed"
)

// Options select what a run does.
type Options struct {
	// Refresh pulls new candidates from the connectors. Without it the stored
	// items are only re-aggregated.
	Refresh bool

	// Summarise computes summaries for new items.
	Summarise bool

	// Weekly writes the weekly report after the store is saved.
	Weekly bool
}

// RunReport is what a run reports back to the caller.
type RunReport struct {
	RunID      uuid.UUID
	New        int
	Total      int
	ReportPath string
}

// Archiver mirrors the store into a secondary database.
type Archiver interface {
	Mirror(ctx context.Context, runID uuid.UUID, items []domain.ProcessedItem) (int64, error)
	RecordRun(ctx context.Context, rec archive.RunRecord) error
}

// SourceFactory builds the connectors for a topic.
type SourceFactory func(topic config.Topic, stopwords config.Stopwords) []pipeline.Source

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg       *config.Config
	store     *storage.Store
	archive   Archiver
	publisher digest.Publisher
	fetcher   pipeline.Fetcher
	sources   SourceFactory
	now       func() time.Time
	logger    *zerolog.Logger
}

// Option customises an App.
type Option func(*App)

// WithArchive enables mirroring to a secondary store.
func WithArchive(a Archiver) Option {
	return func(app *App) { app.archive = a }
}

// WithPublisher enables publishing of the weekly digest.
func WithPublisher(p digest.Publisher) Option {
	return func(app *App) { app.publisher = p }
}

// WithFetcher replaces the web fetcher.
func WithFetcher(f pipeline.Fetcher) Option {
	return func(app *App) { app.fetcher = f }
}

// WithSources replaces the connector set.
func WithSources(f SourceFactory) Option {
	return func(app *App) { app.sources = f }
}

// WithClock replaces the clock.
func WithClock(now func() time.Time) Option {
	return func(app *App) { app.now = now }
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, logger *zerolog.Logger, opts ...Option) *App {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	a := &App{
		cfg:    cfg,
		store:  storage.New(cfg.DataDir, logger),
		now:    time.Now,
		logger: logger,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.fetcher == nil {
		fc := cfg.FetchCfg()
		a.fetcher = links.NewWebFetcher(fc.RPS, fc.Timeout)
	}

	if a.sources == nil {
		a.sources = a.defaultSources
	}

	return a
}

// Store returns the file store.
func (a *App) Store() *storage.Store {
	return a.store
}

// RunOnce performs one ingestion pass. Store-level failures abort the run
// before anything is written.
func (a *App) RunOnce(ctx context.Context, opts Options) (RunReport, error) {
	started := a.now()

	topic, stopwords, err := a.loadTopic()
	if err != nil {
		return RunReport{}, err
	}

	existing, err := a.store.Load(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("load store: %w", err)
	}

	if compacted := dedup.Compact(existing, a.logger); compacted.DroppedCount > 0 {
		a.logger.Warn().Int("dropped", compacted.DroppedCount).Msg("store contained duplicates")
		existing = compacted.Items
	}

	var sources []pipeline.Source
	if opts.Refresh {
		sources = a.sources(topic, stopwords)
	}

	engine := pipeline.New(topic, pipeline.Deps{
		Fetcher:    a.fetcher,
		Extract:    links.ExtractText,
		Summarizer: a.newSummarizer(topic, stopwords),
		Logger:     a.logger,
	},
		pipeline.WithClock(a.now),
		pipeline.WithConcurrency(a.cfg.FetchConcurrency),
		pipeline.WithSummaries(opts.Summarise),
	)

	res, err := engine.Run(ctx, existing, sources)
	if err != nil {
		return RunReport{}, fmt.Errorf("pipeline: %w", err)
	}

	logger := a.logger.With().Str(logFieldRunID, res.RunID.String()).Logger()

	agg := aggregate.Build(res.Merged, a.now())

	// Once the write starts it must finish, so it is not tied to ctx.
	if err := a.store.Save(res.Merged, agg); err != nil {
		return RunReport{}, fmt.Errorf("save store: %w", err)
	}

	observability.StoreItems.Set(float64(len(res.Merged)))
	observability.RunDuration.Observe(a.now().Sub(started).Seconds())

	report := RunReport{RunID: res.RunID, New: len(res.New), Total: len(res.Merged)}

	a.mirror(context.WithoutCancel(ctx), res, started, &logger)

	if opts.Weekly {
		path, err := a.WriteWeekly(ctx, res.Merged)
		if err != nil {
			return report, err
		}

		report.ReportPath = path
	}

	return report, nil
}

// WriteWeekly writes the weekly report for items and publishes it when a
// publisher is configured. Publishing failures are logged only.
func (a *App) WriteWeekly(ctx context.Context, items []domain.ProcessedItem) (string, error) {
	d := aggregate.Weekly(items, a.now())

	path, err := digest.WriteReport(a.cfg.ReportsDir, d)
	if err != nil {
		return "", fmt.Errorf("weekly report: %w", err)
	}

	a.logger.Info().Str(logFieldPath, path).Int("items", d.ItemCount).Msg("weekly report written")

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, d); err != nil {
			a.logger.Error().Err(err).Msg("failed to publish weekly digest")
		}
	}

	return path, nil
}

// RunScheduler repeats RunOnce every interval, runs the weekly digest task
// and serves health and metrics until ctx is done.
func (a *App) RunScheduler(ctx context.Context, opts Options) error {
	sc := a.cfg.SchedulerCfg()

	checks := []observability.Check{{Name: "store", Checker: a.store}}
	if rc, ok := a.archive.(observability.ReadinessChecker); ok {
		checks = append(checks, observability.Check{Name: "archive", Checker: rc})
	}

	go func() {
		srv := observability.NewServer(sc.HealthPort, a.logger, checks...)
		if err := srv.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("health check server error")
		}
	}()

	weekly := worker.NewWeeklyScheduler(a.logger).WithClock(a.now)
	weekly.AddTask(a.weeklyTask(sc))

	if info, err := os.Stat(filepath.Join(a.cfg.ReportsDir, digest.ReportFile)); err == nil {
		weekly.Seed(weeklyTaskName, info.ModTime())
	}

	// The weekly report is owned by the weekly task in this mode.
	opts.Weekly = false

	err := worker.SingleTickerLoop(ctx, worker.SingleTickerConfig{
		Name:       "ingest",
		Interval:   sc.Interval,
		RunOnStart: true,
		OnTick: func(ctx context.Context) {
			report, err := a.RunOnce(ctx, opts)
			if err != nil {
				a.logger.Error().Err(err).Msg("ingestion run failed")
				return
			}

			a.logger.Info().Int("new", report.New).Int("total", report.Total).Msg("ingestion run finished")
		},
		SecondaryInterval: weeklyCheckInterval,
		OnSecondaryTick:   weekly.CheckAndRun,
		Logger:            a.logger,
	})
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return fmt.Errorf("scheduler: %w", err)
	}

	return nil
}

func (a *App) weeklyTask(sc config.SchedulerConfig) *worker.WeeklyTask {
	return &worker.WeeklyTask{
		Name: weeklyTaskName,
		Day:  sc.WeeklyDay,
		Hour: sc.WeeklyHour,
		Run: func(ctx context.Context, _ *zerolog.Logger) error {
			items, err := a.store.Load(ctx)
			if err != nil {
				return fmt.Errorf("load store: %w", err)
			}

			_, err = a.WriteWeekly(ctx, items)

			return err
		},
	}
}

func (a *App) loadTopic() (config.Topic, config.Stopwords, error) {
	topic, err := config.LoadTopic(a.cfg.TopicConfigPath)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return config.Topic{}, nil, fmt.Errorf("topic config: %w", err)
		}

		a.logger.Warn().Str(logFieldPath, a.cfg.TopicConfigPath).Msg("topic config not found, using defaults")
		topic = config.DefaultTopic()
	}

	stopwords, err := config.LoadStopwords(a.cfg.StopwordsPath)
	if err != nil {
		return config.Topic{}, nil, fmt.Errorf("stopwords: %w", err)
	}

	terms, err := seeds.New(a.cfg.DataDir, stopwords, a.logger).BiasTerms()
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to read seed texts")
	}

	return topic.WithSeedTerms(terms), stopwords, nil
}

func (a *App) newSummarizer(topic config.Topic, stopwords config.Stopwords) *summary.Summarizer {
	logger := a.logger.With().Str(logFieldComponent, "summary").Logger()

	var abstractive summary.Abstractive
	if a.cfg.SummariesEnabled() {
		abstractive = llm.NewOpenAI(a.cfg.LLMCfg(), topic.Topic, &logger)
	}

	return summary.New(topic.Summary.Sentences, stopwords, abstractive, &logger)
}

func (a *App) defaultSources(topic config.Topic, stopwords config.Stopwords) []pipeline.Source {
	fc := a.cfg.FetchCfg()

	return []pipeline.Source{
		feeds.New(topic.Feeds, fc.Timeout, a.logger),
		search.New(a.cfg.SearchCfg(), topic.Queries, a.logger),
		social.New(a.cfg.SocialCfg(), topic.Social, nil, a.logger),
		seeds.New(a.cfg.DataDir, stopwords, a.logger),
	}
}

func (a *App) mirror(ctx context.Context, res pipeline.Result, started time.Time, logger *zerolog.Logger) {
	if a.archive == nil {
		return
	}

	err := worker.RunWithTimeout(ctx, archiveTimeout, func(ctx context.Context) error {
		inserted, err := a.archive.Mirror(ctx, res.RunID, res.New)
		if err != nil {
			observability.ArchiveWrites.WithLabelValues(statusFailed).Add(float64(len(res.New)))
			return fmt.Errorf("mirror: %w", err)
		}

		observability.ArchiveWrites.WithLabelValues(statusOK).Add(float64(inserted))

		return a.archive.RecordRun(ctx, archive.RunRecord{
			ID:         res.RunID,
			StartedAt:  started,
			FinishedAt: a.now(),
			NewItems:   len(res.New),
			TotalItems: len(res.Merged),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("archive write failed")
	}
}
