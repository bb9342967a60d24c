// Command jobs runs one batch job and exits, for use from an external
// scheduler such as a Kubernetes CronJob.
//
// Usage:
//
//	jobs <subscriptions|budget-allocations> [YYYY-MM-DD]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata" // SCHEDULER_TIMEZONE on images without zoneinfo

	"pennywise/internal/app"
	"pennywise/internal/config"
	"pennywise/internal/logger"
	"pennywise/internal/period"
)

func main() {
	cfg := config.Get()
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := run(cfg, os.Args[1:]); err != nil {
		logger.Get().Errorf("Job error: %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: jobs <name> [YYYY-MM-DD]")
	}
	name := args[0]

	var date *time.Time
	if len(args) > 1 {
		d, err := period.ParseDate(args[1])
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", args[1], err)
		}
		date = &d
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise application: %w", err)
	}
	defer application.Close()

	now := application.Clock.Now()
	if date != nil {
		now = *date
	}
	result, err := application.Jobs.Run(ctx, name, now)
	if err != nil {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(application.Jobs.Names(), ", "))
	}

	logger.Get().Infow("job finished",
		"job", result.Job,
		"processed", result.Processed,
		"failed", result.Failed,
	)
	return result.Err()
}
