// Package app wires configuration, storage and services into the object
// graph shared by the API server and the one-shot job runner.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"pennywise/internal/config"
	"pennywise/internal/currency"
	"pennywise/internal/database"
	"pennywise/internal/jobs"
	"pennywise/internal/logger"
	"pennywise/internal/notifier"
	"pennywise/internal/period"
	"pennywise/internal/server"
	"pennywise/internal/services"
)

const notifyTimeout = 10 * time.Second

// App holds the wired dependencies.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Services server.Services
	Jobs     *jobs.Registry
	// Clock reads the time in the configured calendar zone. Every "today"
	// and "current month" in the API and jobs comes from it.
	Clock    period.Clock

	closers []func() error
	log     *zap.SugaredLogger
}

// New connects to the database, migrates it and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clock, err := period.LoadClock(cfg.SchedulerTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE: %w", err)
	}
	a := &App{Config: cfg, Clock: clock, log: logger.Named("app")}

	dbManager, err := database.NewManager(database.NewConfig(cfg), cfg.Env == "development")
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, dbManager.Close)

	if err := dbManager.RunMigrations(); err != nil {
		a.Close()
		return nil, err
	}

	converter := a.newConverter(ctx)
	a.wire(dbManager.DB(), converter, a.newNotifier())
	return a, nil
}

// NewWithDB builds the services on an existing connection. Used by tests.
// An unknown time zone falls back to UTC.
func NewWithDB(cfg *config.Config, db *gorm.DB, converter currency.Converter, n notifier.Notifier) *App {
	a := &App{Config: cfg, log: logger.Named("app")}
	clock, err := period.LoadClock(cfg.SchedulerTimezone)
	if err != nil {
		a.log.Warnw("falling back to UTC", "error", err)
		clock = period.ClockIn(time.UTC)
	}
	a.Clock = clock
	a.wire(db, converter, n)
	return a
}

func (a *App) wire(db *gorm.DB, converter currency.Converter, n notifier.Notifier) {
	a.DB = db

	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	transactionService := services.NewTransactionService(db, accountService, converter, a.Clock)
	engine := services.NewAllocationEngine(db, converter)

	a.Services = server.Services{
		Users:         userService,
		Accounts:      accountService,
		Categories:    services.NewCategoryService(db),
		Transactions:  transactionService,
		Budgets:       services.NewBudgetService(db, engine, a.Clock),
		Subscriptions: services.NewSubscriptionService(db, accountService),
		Stats:         services.NewStatsService(db, converter),
	}
	a.Jobs = jobs.NewRegistry(
		jobs.NewSubscriptionProcessor(db, transactionService, converter, n),
		jobs.NewBudgetProcessor(db, engine, n),
	)
}

// newConverter caches rates in Redis when configured, falling back to an
// in-process cache if Redis is unreachable.
func (a *App) newConverter(ctx context.Context) *currency.RateConverter {
	provider := currency.NewYahooProvider(&http.Client{Timeout: a.Config.FXTimeout}, a.Config.FXBaseURL)

	var cache currency.RateCache = currency.NewMemoryCache(a.Config.FXCacheTTL)
	if a.Config.RedisAddr != "" {
		client, err := currency.NewRedisClient(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
		if err != nil {
			a.log.Warnw("redis unavailable, using in-memory rate cache", "error", err)
		} else {
			cache = currency.NewRedisCache(client, a.Config.FXCacheTTL)
			a.closers = append(a.closers, client.Close)
		}
	}
	return currency.NewConverter(provider, cache)
}

// newNotifier combines the configured channels. Unreachable channels are
// logged and skipped.
func (a *App) newNotifier() notifier.Notifier {
	var channels []notifier.Notifier

	if t := notifier.NewTelegramNotifier(&http.Client{Timeout: notifyTimeout}, a.Config.TelegramBotToken, a.Config.TelegramChatID); t != nil {
		channels = append(channels, t)
	}
	if a.Config.AMQPURL != "" {
		q, err := notifier.NewAMQPNotifier(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue)
		if err != nil {
			a.log.Warnw("AMQP unavailable, job summaries will not be published", "error", err)
		} else {
			channels = append(channels, q)
			a.closers = append(a.closers, func() error { q.Close(); return nil })
		}
	}
	return notifier.Combine(channels...)
}

// Router builds the HTTP router for the wired services.
func (a *App) Router() http.Handler {
	return server.NewRouter(a.Services, server.Options{
		AllowedOrigins: a.Config.CORSAllowedOrigins,
		PipelineAPIKey: a.Config.PipelineAPIKey,
		Jobs:           a.Jobs,
		Clock:          a.Clock,
	})
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnw("close failed", "error", err)
		}
	}
	a.closers = nil
}
