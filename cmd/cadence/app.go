package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/velmie/cadence"
	"github.com/velmie/cadence/dispatch"
	"github.com/velmie/cadence/internal/config"
	"github.com/velmie/cadence/internal/logging"
	"github.com/velmie/cadence/internal/telemetry"
	"github.com/velmie/cadence/memory"
	"github.com/velmie/cadence/mysql"
)

const pingTimeout = 5 * time.Second

// app owns the store, dispatcher and engine built from one configuration.
type app struct {
	cfg    config.Config
	logger *logging.Logger

	store  cadence.Store
	db     *sql.DB
	mysql  *mysql.Store
	lock   *mysql.TickLock
	queue  *dispatch.Queue
	redis  *redis.Client
	engine *cadence.Engine
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	logger, err := logging.New(logOut, cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	if err := a.build(ctx); err != nil {
		_ = a.close(context.Background())
		return nil, err
	}

	return a, nil
}

func (a *app) build(ctx context.Context) error {
	if err := a.openStore(ctx); err != nil {
		return err
	}
	dispatcher, err := a.dispatcher()
	if err != nil {
		return err
	}
	metrics, err := telemetry.New(nil)
	if err != nil {
		return err
	}
	opts, err := engineOptions(a.cfg.Engine)
	if err != nil {
		return err
	}
	opts = append(opts,
		cadence.WithLogger(a.logger),
		cadence.WithMetrics(metrics),
		cadence.WithDispatcher(dispatcher),
	)
	a.engine = cadence.New(a.store, opts...)

	return nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", a.cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		a.db = db
		if a.cfg.Store.MaxOpenConns > 0 {
			db.SetMaxOpenConns(a.cfg.Store.MaxOpenConns)
		}
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping db: %w", err)
		}

		store, err := mysql.NewStore(db,
			mysql.WithTables(a.cfg.Store.Tables),
			mysql.WithLogger(a.logger.With("component", "mysql")),
		)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		a.mysql = store
		a.store = store

		if a.cfg.Engine.Schedule != "" {
			lock, err := mysql.NewTickLock(db, a.cfg.Engine.TickLock, a.logger)
			if err != nil {
				return fmt.Errorf("init tick lock: %w", err)
			}
			a.lock = lock
		}
	default:
		store := memory.NewStore()
		a.store = store
		if _, err := seed(ctx, store, a.cfg.Seed); err != nil {
			return err
		}
	}

	return nil
}

func (a *app) dispatcher() (cadence.Dispatcher, error) {
	d := a.cfg.Dispatch

	var sender cadence.Dispatcher
	switch d.Kind {
	case config.DispatchNone:
		return cadence.NopDispatcher{}, nil
	case "", config.DispatchLog:
		return logDispatcher(a.logger), nil
	case config.DispatchWebhook:
		hook, err := dispatch.NewWebhook(d.Webhook.URL,
			dispatch.WithToken(d.Webhook.Token),
			dispatch.WithTimeout(d.Webhook.Timeout),
			dispatch.WithWebhookLogger(a.logger),
		)
		if err != nil {
			return nil, err
		}
		sender = hook
	case config.DispatchRedis:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     d.Redis.Addr,
			Password: d.Redis.Password,
			DB:       d.Redis.DB,
		})
		stream, err := dispatch.NewRedisStream(a.redis, d.Redis.Stream, d.Redis.MaxLen)
		if err != nil {
			return nil, err
		}
		sender = stream
	default:
		return nil, fmt.Errorf("dispatch kind %q is not supported", d.Kind)
	}

	queue, err := dispatch.NewQueue(sender, dispatch.QueueConfig{
		Size:       d.Queue.Size,
		Workers:    d.Queue.Workers,
		Rate:       d.Queue.RatePerSec,
		Burst:      d.Queue.Burst,
		Retries:    d.Queue.Retries,
		RetryDelay: d.Queue.RetryDelay,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.queue = queue

	return queue, nil
}

// close waits for background enrollment starts, then drains the dispatch queue.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close(ctx))
	}
	if a.queue != nil {
		errs = append(errs, a.queue.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}

	return errors.Join(errs...)
}

func engineOptions(e config.EngineConfig) ([]cadence.Option, error) {
	loc, err := e.Location()
	if err != nil {
		return nil, err
	}
	tod, err := e.TimeOfDay()
	if err != nil {
		return nil, err
	}

	return []cadence.Option{
		cadence.WithLocation(loc),
		cadence.WithDefaultTime(tod),
		cadence.WithBatchSize(e.BatchSize),
		cadence.WithPollInterval(e.PollInterval),
		cadence.WithClaimTTL(e.ClaimTTL),
		cadence.WithAdvanceTimeout(e.AdvanceTimeout),
		cadence.WithDueInterval(e.DueInterval),
		cadence.WithRetryPolicy(cadence.RetryPolicy{MaxAttempts: e.MaxAttempts, Backoff: e.Backoff}),
	}, nil
}

func logDispatcher(logger cadence.Logger) cadence.Dispatcher {
	return cadence.DispatcherFunc(func(_ context.Context, d cadence.StepDispatch) error {
		logger.Info("step dispatched",
			"enrollment", d.EnrollmentID,
			"lead", d.LeadID,
			"channel", string(d.Channel),
			"action", string(d.Action),
			"step", d.StepNumber,
			"total_steps", d.TotalSteps,
		)
		return nil
	})
}
