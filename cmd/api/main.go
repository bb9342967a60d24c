package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE on images without zoneinfo

	"golang.org/x/sync/errgroup"

	"pennywise/internal/app"
	"pennywise/internal/config"
	"pennywise/internal/jobs"
	"pennywise/internal/logger"
	"pennywise/internal/period"
	"pennywise/internal/scheduler"
)

// @title           Pennywise API
// @version         1.0
// @description     Pennywise tracks accounts, transactions, recurring subscriptions and category budgets that roll up spending into a main currency.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const shutdownTimeout = 15 * time.Second

type jobRunner interface {
	Run(ctx context.Context, name string, now time.Time) (jobs.RunResult, error)
}

func main() {
	cfg := config.Get()
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config) error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise application: %w", err)
	}
	defer application.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = newScheduler(cfg, application.Jobs, application.Clock)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Starting Pennywise server on port %s", cfg.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if sched != nil {
		sched.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if sched != nil {
			if err := sched.Stop(shutdownCtx); err != nil {
				log.Warnw("scheduler did not stop in time", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newScheduler registers both batch jobs on their configured cron specs.
// Cron specs are read in the clock's zone.
func newScheduler(cfg *config.Config, registry *jobs.Registry, clock period.Clock) (*scheduler.Scheduler, error) {
	sched := scheduler.New(clock.Location())
	specs := map[string]string{
		jobs.SubscriptionsJob: cfg.SubscriptionsCron,
		jobs.BudgetsJob:       cfg.BudgetsCron,
	}
	for name, spec := range specs {
		if err := sched.Register(name, spec, jobTask(registry, name, clock)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// jobTask adapts a registry job to a scheduler task. Item failures are
// already reported by the job itself and do not fail the task.
func jobTask(registry jobRunner, name string, clock period.Clock) scheduler.Task {
	return func(ctx context.Context) error {
		result, err := registry.Run(ctx, name, clock.Now())
		if err != nil {
			return err
		}
		logger.Get().Infow("scheduled job finished",
			"job", name,
			"processed", result.Processed,
			"failed", result.Failed,
		)
		return nil
	}
}
