package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	// HoursPerDay is used for weekly slot arithmetic.
	HoursPerDay = 24

	// minWeeklyGap keeps a task from firing twice for the same slot.
	minWeeklyGap = 6 * HoursPerDay * time.Hour
)

// WeeklyTask fires once in the given hour of the given weekday.
type WeeklyTask struct {
	Name string
	Day  time.Weekday
	Hour int

	// Run executes the task. A failed run is retried on the next check
	// within the same slot.
	Run func(ctx context.Context, logger *zerolog.Logger) error

	lastRun time.Time
}

// Due reports whether the task should fire at now.
func (t *WeeklyTask) Due(now time.Time) bool {
	return ShouldRunWeekly(now, t.Day, t.Hour, t.lastRun)
}

// WeeklyScheduler checks its tasks against a clock.
type WeeklyScheduler struct {
	tasks  []*WeeklyTask
	logger *zerolog.Logger
	now    func() time.Time
}

func NewWeeklyScheduler(logger *zerolog.Logger) *WeeklyScheduler {
	return &WeeklyScheduler{
		logger: getLogger(logger),
		now:    time.Now,
	}
}

// WithClock replaces the scheduler clock.
func (ws *WeeklyScheduler) WithClock(now func() time.Time) *WeeklyScheduler {
	ws.now = now
	return ws
}

func (ws *WeeklyScheduler) AddTask(task *WeeklyTask) {
	ws.tasks = append(ws.tasks, task)
}

// Seed records an earlier run of the named task, typically recovered from an
// artifact the task wrote, so a restart inside the slot does not repeat it.
func (ws *WeeklyScheduler) Seed(name string, lastRun time.Time) {
	for _, task := range ws.tasks {
		if task.Name == name {
			task.lastRun = lastRun
			return
		}
	}
}

// LastRun returns when the named task last succeeded.
func (ws *WeeklyScheduler) LastRun(name string) (time.Time, bool) {
	for _, task := range ws.tasks {
		if task.Name == name {
			return task.lastRun, !task.lastRun.IsZero()
		}
	}

	return time.Time{}, false
}

// CheckAndRun runs every due task. Call it more often than once an hour.
func (ws *WeeklyScheduler) CheckAndRun(ctx context.Context) {
	now := ws.now()

	for _, task := range ws.tasks {
		if task.Due(now) {
			ws.run(ctx, task, now)
		}
	}
}

func (ws *WeeklyScheduler) run(ctx context.Context, task *WeeklyTask, now time.Time) {
	logger := ws.logger.With().Str(logFieldTask, task.Name).Logger()
	logger.Info().Msg("running weekly task")

	defer RecoverPanic(&logger, task.Name)

	if err := task.Run(ctx, &logger); err != nil {
		logger.Error().Err(err).Msg("weekly task failed")
		return
	}

	task.lastRun = now
}

// ShouldRunWeekly reports whether now falls in the day/hour slot and the
// previous run, if any, belongs to an earlier week.
func ShouldRunWeekly(now time.Time, day time.Weekday, hour int, lastRun time.Time) bool {
	if now.Weekday() != day || now.Hour() != hour {
		return false
	}

	return lastRun.IsZero() || now.Sub(lastRun) > minWeeklyGap
}
