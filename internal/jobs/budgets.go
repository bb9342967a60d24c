package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/notifier"
	"pennywise/internal/services"
)

// BudgetProcessor snapshots the current month for every active budget.
type BudgetProcessor struct {
	db       *gorm.DB
	engine   services.AllocationEngine
	notifier notifier.Notifier
}

// NewBudgetProcessor creates a BudgetProcessor. A nil notifier disables
// notifications.
func NewBudgetProcessor(db *gorm.DB, engine services.AllocationEngine, n notifier.Notifier) *BudgetProcessor {
	if n == nil {
		n = notifier.Nop{}
	}
	return &BudgetProcessor{db: db, engine: engine, notifier: n}
}

// Name implements Job.
func (p *BudgetProcessor) Name() string { return BudgetsJob }

// Run implements Job.
func (p *BudgetProcessor) Run(ctx context.Context, now time.Time) RunResult {
	return p.ProcessActiveBudgetAllocations(ctx, now)
}

// ProcessActiveBudgetAllocations allocates the month containing now for
// each active budget. Re-running within a month refreshes the snapshots.
func (p *BudgetProcessor) ProcessActiveBudgetAllocations(ctx context.Context, now time.Time) RunResult {
	log := logger.Named("jobs.budgets")
	result := RunResult{Job: BudgetsJob}

	var budgets []models.Budget
	if err := p.db.WithContext(ctx).Where("active = ?", true).Order("created_at ASC").Find(&budgets).Error; err != nil {
		log.Errorw("failed to load active budgets", "error", err)
		result.fail("query", err)
		p.notifier.Notify(ctx, result.Summary(now))
		return result
	}

	for i := range budgets {
		b := &budgets[i]
		if err := ctx.Err(); err != nil {
			result.fail(b.ID, err)
			continue
		}
		allocation, err := p.engine.AllocateForPeriod(ctx, b, now)
		if err != nil {
			log.Errorw("failed to allocate budget", "budget_id", b.ID, "user_id", b.UserID, "error", err)
			result.fail(b.ID, err)
			continue
		}
		log.Debugw("budget allocated", "budget_id", b.ID, "period", allocation.Period, "amount", allocation.Amount.String())
		result.Processed++
	}

	p.notifier.Notify(ctx, result.Summary(now))
	return result
}
