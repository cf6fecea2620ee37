package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velmie/cadence"
	"github.com/velmie/cadence/internal/config"
	"github.com/velmie/cadence/internal/logging"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Advance due enrollments until interrupted",
		Long: `Advance due enrollments until SIGINT or SIGTERM.

Without engine.schedule the scheduler polls every engine.poll_interval and
re-polls at once while full batches come back. With a cron schedule each tick
runs one batch; on MySQL ticks are serialized across processes by an advisory lock.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			serveErr := a.serve(ctx)

			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := a.close(closeCtx); err != nil {
				a.logger.Warn("shutdown incomplete", "err", err)
			}

			return serveErr
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Engine.Schedule == "" {
		a.logger.Info("cadence scheduler polling",
			"store", a.cfg.Store.Driver,
			"poll_interval", a.cfg.Engine.PollInterval,
		)
		g.Go(func() error {
			return a.engine.Run(ctx)
		})
	} else {
		g.Go(func() error {
			return a.runCron(ctx)
		})
	}

	err := g.Wait()
	a.logger.Info("cadence scheduler stopped")

	return err
}

func (a *app) runCron(ctx context.Context) error {
	loc, err := a.cfg.Engine.Location()
	if err != nil {
		return err
	}
	schedule, err := config.ScheduleParser.Parse(a.cfg.Engine.Schedule)
	if err != nil {
		return fmt.Errorf("parse schedule: %w", err)
	}

	logger := cronLogger{a.logger}
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(schedule, cron.FuncJob(func() {
		a.tick(ctx)
	}))

	a.logger.Info("cadence scheduler on schedule", "store", a.cfg.Store.Driver, "schedule", a.cfg.Engine.Schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

// tick runs one batch, under the tick lock when the store provides one.
func (a *app) tick(ctx context.Context) {
	run := func(ctx context.Context) error {
		result, err := a.engine.RunBatch(ctx, cadence.BatchRequest{})
		if err != nil {
			return err
		}
		if result.Processed > 0 {
			a.logger.Info("cadence tick processed", "processed", result.Processed, "failed", result.Failed())
		}
		return nil
	}

	var err error
	if a.lock != nil {
		var ran bool
		ran, err = a.lock.Do(ctx, run)
		if err == nil && !ran {
			a.logger.Debug("cadence tick skipped, lock held elsewhere")
		}
	} else {
		err = run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		a.logger.Warn("cadence tick failed", "err", err)
	}
}

// cronLogger adapts the cadence logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
