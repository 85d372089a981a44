package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// errFmtSingleTickerLoop is the error format for single ticker loop context errors.
const errFmtSingleTickerLoop = "single ticker loop %s: %w"

// SingleTickerConfig configures a single-ticker loop with optional secondary ticker.
type SingleTickerConfig struct {
	// Name identifies the worker for logging.
	Name string

	// Interval is the main ticker interval.
	Interval time.Duration

	// OnTick is called when the main ticker fires.
	OnTick func(ctx context.Context)

	// RunOnStart runs OnTick immediately when starting.
	RunOnStart bool

	// SecondaryInterval is the interval for secondary periodic tasks (0 to disable).
	SecondaryInterval time.Duration

	// OnSecondaryTick is called when the secondary ticker fires.
	OnSecondaryTick func(ctx context.Context)

	// Logger for the worker.
	Logger *zerolog.Logger
}

// SingleTickerLoop runs OnTick every Interval and OnSecondaryTick every
// SecondaryInterval until ctx is canceled. Callbacks run on the loop goroutine,
// so a slow tick delays the next one rather than overlapping it.
func SingleTickerLoop(ctx context.Context, cfg SingleTickerConfig) error {
	logger := getLogger(cfg.Logger)
	logger.Info().Str(logFieldWorker, cfg.Name).Dur("interval", cfg.Interval).Msg("starting single ticker loop")

	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("single ticker loop stopped")

	if cfg.Interval <= 0 {
		return fmt.Errorf("single ticker loop %s: interval must be positive", cfg.Name)
	}

	if cfg.RunOnStart {
		safeTick(ctx, cfg.OnTick, logger, cfg.Name)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var secondary <-chan time.Time

	if cfg.SecondaryInterval > 0 {
		secondaryTicker := time.NewTicker(cfg.SecondaryInterval)
		defer secondaryTicker.Stop()

		secondary = secondaryTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf(errFmtSingleTickerLoop, cfg.Name, ctx.Err())
		case <-ticker.C:
			safeTick(ctx, cfg.OnTick, logger, cfg.Name)
		case <-secondary:
			safeTick(ctx, cfg.OnSecondaryTick, logger, cfg.Name+"-secondary")
		}
	}
}

func safeTick(ctx context.Context, fn func(ctx context.Context), logger *zerolog.Logger, name string) {
	if fn == nil {
		return
	}

	defer RecoverPanic(logger, name)

	fn(ctx)
}
