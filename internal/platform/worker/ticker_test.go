package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleTickerLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var ticks, secondary atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- SingleTickerLoop(ctx, SingleTickerConfig{
			Name:       "ingest",
			Interval:   10 * time.Millisecond,
			RunOnStart: true,
			OnTick: func(context.Context) {
				if ticks.Add(1) == 2 {
					panic("tick panics are recovered")
				}
			},
			SecondaryInterval: 5 * time.Millisecond,
			OnSecondaryTick:   func(context.Context) { secondary.Add(1) },
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SingleTickerLoop() error = %v, want context.Canceled", err)
	}

	if ticks.Load() < 3 {
		t.Errorf("ticks = %d, want >= 3", ticks.Load())
	}

	if secondary.Load() == 0 {
		t.Error("secondary tick never fired")
	}
}

func TestSingleTickerLoop_InvalidInterval(t *testing.T) {
	if err := SingleTickerLoop(context.Background(), SingleTickerConfig{Name: "x"}); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait(canceled) error = %v", err)
	}
}
