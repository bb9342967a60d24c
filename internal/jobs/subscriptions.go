package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pennywise/internal/currency"
	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/notifier"
	"pennywise/internal/period"
	"pennywise/internal/services"
)

// SubscriptionProcessor turns due subscriptions into expense transactions.
type SubscriptionProcessor struct {
	db           *gorm.DB
	transactions services.TransactionServicer
	converter    currency.Converter
	notifier     notifier.Notifier
}

// NewSubscriptionProcessor creates a SubscriptionProcessor. A nil notifier
// disables notifications.
func NewSubscriptionProcessor(db *gorm.DB, transactions services.TransactionServicer, converter currency.Converter, n notifier.Notifier) *SubscriptionProcessor {
	if n == nil {
		n = notifier.Nop{}
	}
	return &SubscriptionProcessor{db: db, transactions: transactions, converter: converter, notifier: n}
}

// Name implements Job.
func (p *SubscriptionProcessor) Name() string { return SubscriptionsJob }

// Run implements Job.
func (p *SubscriptionProcessor) Run(ctx context.Context, now time.Time) RunResult {
	return p.ProcessDueSubscriptions(ctx, now)
}

// ProcessDueSubscriptions charges every active subscription whose next run
// is on or before today. Each one is committed separately.
func (p *SubscriptionProcessor) ProcessDueSubscriptions(ctx context.Context, today time.Time) RunResult {
	log := logger.Named("jobs.subscriptions")
	today = period.Date(today)
	result := RunResult{Job: SubscriptionsJob}

	var due []models.Subscription
	if err := p.db.WithContext(ctx).
		Where("active = ? AND next_run_on <= ?", true, today).
		Order("next_run_on ASC").
		Find(&due).Error; err != nil {
		log.Errorw("failed to load due subscriptions", "error", err)
		result.fail("query", err)
		p.notifier.Notify(ctx, result.Summary(today))
		return result
	}
	log.Infow("processing due subscriptions", "count", len(due), "date", period.Format(today))

	for i := range due {
		sub := &due[i]
		if err := ctx.Err(); err != nil {
			result.fail(sub.ID, err)
			continue
		}
		if err := p.processOne(ctx, sub, today); err != nil {
			log.Errorw("failed to process subscription",
				"subscription_id", sub.ID,
				"user_id", sub.UserID,
				"vendor", sub.Vendor,
				"amount", sub.InputAmount.String()+" "+sub.InputCurrency,
				"error", err,
			)
			result.fail(sub.ID, err)
			continue
		}
		result.Processed++
	}

	p.notifier.Notify(ctx, result.Summary(today))
	return result
}

func (p *SubscriptionProcessor) processOne(ctx context.Context, sub *models.Subscription, today time.Time) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ? AND user_id = ?", sub.AccountID, sub.UserID).First(&account).Error; err != nil {
			return fmt.Errorf("load account: %w", err)
		}

		rate, err := p.converter.GetRate(ctx, sub.InputCurrency, account.Currency)
		if err != nil {
			return fmt.Errorf("convert %s to %s: %w", sub.InputCurrency, account.Currency, err)
		}

		categoryID := sub.CategoryID
		if _, err := p.transactions.CreateTransactionTx(tx, &account, services.TransactionInput{
			AccountID:       account.ID,
			CategoryID:      &categoryID,
			Type:            models.TransactionTypeExpense,
			InputAmount:     sub.InputAmount,
			InputCurrency:   sub.InputCurrency,
			Label:           sub.Vendor,
			Description:     sub.DefaultDescription(),
			TransactionDate: today,
		}, rate, false); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		sub.MarkProcessed(today)
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
			"last_run_on": sub.LastRunOn,
			"next_run_on": sub.NextRunOn,
		}).Error; err != nil {
			return fmt.Errorf("advance schedule: %w", err)
		}
		return nil
	})
}
