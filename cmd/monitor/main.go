package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/procurement-monitor/internal/app"
	"github.com/lueurxax/procurement-monitor/internal/output/digest"
	"github.com/lueurxax/procurement-monitor/internal/platform/config"
	"github.com/lueurxax/procurement-monitor/internal/storage/archive"
)

func main() {
	mode := flag.String("mode", "run", "Service mode (run, scheduler)")
	refresh := flag.Bool("refresh", false, "Pull new candidates from all sources")
	summarise := flag.Bool("summarise", true, "Summarise new items")
	weekly := flag.Bool("weekly", false, "Write the weekly report after the run")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []app.Option

	if cfg.ArchiveEnabled() {
		arch, err := archive.New(ctx, cfg.PostgresDSN, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to archive")
		}
		defer arch.Close()

		if err := arch.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}

		opts = append(opts, app.WithArchive(arch))
	}

	if cfg.PublishEnabled() {
		pub, err := digest.NewTelegramPublisher(cfg.TelegramCfg(), &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create telegram publisher")
		}

		opts = append(opts, app.WithPublisher(pub))
	}

	application := app.New(cfg, &logger, opts...)

	runOpts := app.Options{Refresh: *refresh, Summarise: *summarise, Weekly: *weekly}

	if err := runMode(ctx, application, *mode, runOpts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(lvl).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string, opts app.Options) error {
	switch mode {
	case "run":
		report, err := application.RunOnce(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d new items. Total stored: %d\n", report.New, report.Total)

		if report.ReportPath != "" {
			fmt.Printf("Weekly report: %s\n", report.ReportPath)
		}

		return nil
	case "scheduler":
		return application.RunScheduler(ctx, opts)
	default:
		log.Fatalf("Usage: %s --mode=[run|scheduler] [--refresh] [--summarise] [--weekly]", os.Args[0])

		return nil
	}
}
