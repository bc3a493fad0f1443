package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/beatrank/ppcron/internal/infrastructure/persistence/postgres"
	"github.com/beatrank/ppcron/internal/infrastructure/scheduler"
	"github.com/beatrank/ppcron/internal/infrastructure/scheduler/jobs"
	ops "github.com/beatrank/ppcron/internal/interface/http"
	"github.com/beatrank/ppcron/internal/interface/http/handlers"
	"github.com/beatrank/ppcron/pkg/logger"
)

const version = "1.0.0"

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run the scheduler and the ops endpoint until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "skip-migrate", Usage: "do not apply pending migrations on start"},
		},
		Action: withApp(func(c *cli.Context, a *app) error {
			return serve(c.Context, a, !c.Bool("skip-migrate"))
		}),
	}
}

func serve(ctx context.Context, a *app, migrate bool) error {
	cfg, log := a.cfg, a.log
	log.Info("starting ppcron",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("timezone", cfg.App.Timezone),
	)

	if migrate {
		n, err := postgres.NewMigrator(a.db, log).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date", slog.Int("applied", n))
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Config{
		Logger:         log,
		Timezone:       loc,
		DefaultTimeout: cfg.Scheduler.JobTimeout,
		Metrics:        a.metrics,
	})
	if err := registerJobs(sched, a); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		log.Warn("scheduler disabled, jobs run only when triggered")
	}

	var (
		server    *ops.Server
		serverErr <-chan error
	)
	if cfg.Observability.HTTPAddr != "" {
		health := handlers.NewCompositeHealthChecker(version)
		health.AddCheck("database", handlers.NewPingCheck(a.db))
		if a.cache != nil {
			health.AddOptionalCheck("redis", handlers.NewPingCheck(a.cache))
		}

		httpCfg := ops.DefaultConfig()
		httpCfg.Addr = cfg.Observability.HTTPAddr
		server = ops.NewServer(httpCfg, ops.Dependencies{
			Health:  health,
			Metrics: a.metrics.Handler(),
			Jobs:    sched,
			Logger:  log,
		})
		serverErr = server.StartAsync()
	}

	log.Info("ppcron is running")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-serverErr:
		if ok {
			runErr = err
			log.Error("ops server stopped", logger.Err(err))
		}
	}

	return errors.Join(runErr, shutdown(a, sched, server))
}

// shutdown stops the ops server first so no new manual runs start, then
// cancels scheduled runs. Both are bounded by the shutdown timeout.
func shutdown(a *app, sched *scheduler.Scheduler, server *ops.Server) error {
	a.log.Info("starting graceful shutdown", slog.String("timeout", a.cfg.App.ShutdownTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.App.ShutdownTimeout)
	defer cancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("ops server: %w", err))
		}
	}

	if sched.IsRunning() {
		done := make(chan error, 1)
		go func() { done <- sched.Stop() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, fmt.Errorf("scheduler: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("scheduler: %w", ctx.Err()))
		}
	}

	if len(errs) == 0 {
		a.log.Info("shutdown completed")
	}
	return errors.Join(errs...)
}

// registerJobs registers every pipeline stage plus recompute_all. A job with
// an empty schedule is registered disabled and can still be run by hand.
func registerJobs(sched *scheduler.Scheduler, a *app) error {
	statuses, err := a.cfg.Pipeline.Statuses()
	if err != nil {
		return err
	}
	p := a.pipeline()

	all := []scheduler.Job{
		jobs.NewRefreshScoresJob(p.Scores, statuses, a.log),
		jobs.NewRefreshLeaderboardRanksJob(p.LeaderboardRanks, a.log),
		jobs.NewRefreshPlayersContextJob(p.PlayersContext, a.log),
		jobs.NewRefreshRanksJob(p.Ranks, a.log),
		jobs.NewRefreshAllContextsPpJob(p.AllContextsPp, a.log),
		jobs.NewRefreshPlayersStatsJob(p.PlayersStats, a.log),
		jobs.NewRecomputeAllJob(p, jobs.RecomputeAllConfig{Statuses: statuses}, a.log),
	}

	schedules := a.cfg.Scheduler.Schedules()
	for _, job := range all {
		spec := schedules[job.Name()]
		if spec == "" {
			if err := sched.Register(job, scheduler.NewIntervalSchedule(24*time.Hour), scheduler.Disabled()); err != nil {
				return err
			}
			continue
		}

		schedule, err := scheduler.ParseSchedule(spec)
		if err != nil {
			return fmt.Errorf("schedule for %s: %w", job.Name(), err)
		}
		if err := sched.Register(job, schedule); err != nil {
			return err
		}
	}
	return nil
}
