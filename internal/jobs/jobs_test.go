package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pennywise/internal/currency"
	"pennywise/internal/models"
	"pennywise/internal/services"
	"pennywise/internal/testutil"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func testConverter() currency.Converter {
	return currency.NewStaticConverter(map[string]decimal.Decimal{
		"EUR:USD": testutil.Dec("1.1"),
	})
}

func newSubscriptionProcessorForTest(db *gorm.DB, n *recordingNotifier) *SubscriptionProcessor {
	converter := testConverter()
	txSvc := services.NewTransactionService(db, services.NewAccountService(db), converter, nil)
	return NewSubscriptionProcessor(db, txSvc, converter, n)
}

func reloadSubscription(t *testing.T, db *gorm.DB, id string) models.Subscription {
	t.Helper()
	var sub models.Subscription
	testutil.AssertNoError(t, db.Where("id = ?", id).First(&sub).Error)
	return sub
}

func TestProcessDueSubscriptions(t *testing.T) {
	ctx := context.Background()
	today := time.Date(2025, 3, 15, 6, 0, 0, 0, time.UTC)

	t.Run("charges_due_and_advances", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		n := &recordingNotifier{}
		p := newSubscriptionProcessorForTest(db, n)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "USD", testutil.Dec("100"))
		category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		due := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("10"), "EUR", testutil.Date(2025, 3, 15), models.IntervalMonthly)
		future := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("5"), "USD", testutil.Date(2025, 3, 16), models.IntervalMonthly)
		paused := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("5"), "USD", testutil.Date(2025, 3, 1), models.IntervalMonthly)
		db.Model(paused).Update("active", false)

		result := p.ProcessDueSubscriptions(ctx, today)
		if result.Processed != 1 || result.Failed != 0 {
			t.Fatalf("expected 1 processed and 0 failed, got %+v", result)
		}
		testutil.AssertNoError(t, result.Err())

		var txns []models.Transaction
		db.Where("account_id = ?", account.ID).Find(&txns)
		if len(txns) != 1 {
			t.Fatalf("expected one generated transaction, got %d", len(txns))
		}
		got := txns[0]
		if got.Type != models.TransactionTypeExpense || got.Label != due.Vendor {
			t.Errorf("unexpected transaction %+v", got)
		}
		if got.Description != "Subscription payment for "+due.Vendor {
			t.Errorf("expected default description, got %q", got.Description)
		}
		if !got.TransactionDate.Equal(testutil.Date(2025, 3, 15)) {
			t.Errorf("expected transaction dated today, got %s", got.TransactionDate)
		}
		testutil.AssertDecimal(t, got.Amount, "11")
		testutil.AssertDecimal(t, got.Rate, "1.1")

		var acct models.Account
		db.First(&acct, "id = ?", account.ID)
		testutil.AssertDecimal(t, acct.Balance, "89")

		stored := reloadSubscription(t, db, due.ID)
		if stored.LastRunOn == nil || !stored.LastRunOn.Equal(testutil.Date(2025, 3, 15)) {
			t.Errorf("expected last run today, got %v", stored.LastRunOn)
		}
		if !stored.NextRunOn.Equal(testutil.Date(2025, 4, 15)) {
			t.Errorf("expected next run 2025-04-15, got %s", stored.NextRunOn)
		}
		if untouched := reloadSubscription(t, db, future.ID); untouched.LastRunOn != nil {
			t.Error("future subscription must not run")
		}

		if len(n.messages) != 1 || !strings.Contains(n.messages[0], "1 processed, 0 failed") {
			t.Errorf("unexpected notifications %v", n.messages)
		}
	})

	t.Run("overdue_runs_once_without_backfill", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		p := newSubscriptionProcessorForTest(db, &recordingNotifier{})
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID, "USD")
		category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
		sub := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("3"), "USD", testutil.Date(2025, 3, 1), models.IntervalWeekly)

		result := p.ProcessDueSubscriptions(ctx, today)
		if result.Processed != 1 {
			t.Fatalf("expected 1 processed, got %+v", result)
		}

		var count int64
		db.Model(&models.Transaction{}).Where("account_id = ?", account.ID).Count(&count)
		if count != 1 {
			t.Errorf("expected a single charge, got %d", count)
		}
		stored := reloadSubscription(t, db, sub.ID)
		if !stored.NextRunOn.Equal(testutil.Date(2025, 3, 22)) {
			t.Errorf("expected next run after today, got %s", stored.NextRunOn)
		}

		again := p.ProcessDueSubscriptions(ctx, today)
		if again.Processed != 0 {
			t.Errorf("expected nothing due on a second run, got %+v", again)
		}
	})

	t.Run("conversion_failure_isolated", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		n := &recordingNotifier{}
		p := newSubscriptionProcessorForTest(db, n)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "USD", testutil.Dec("50"))
		category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		broken := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("8"), "CHF", testutil.Date(2025, 3, 10), models.IntervalMonthly)
		fine := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("8"), "USD", testutil.Date(2025, 3, 12), models.IntervalMonthly)

		result := p.ProcessDueSubscriptions(ctx, today)
		if result.Processed != 1 || result.Failed != 1 {
			t.Fatalf("expected 1 processed and 1 failed, got %+v", result)
		}
		if result.Failures[0].ID != broken.ID {
			t.Errorf("expected failure for %s, got %+v", broken.ID, result.Failures)
		}
		if result.Err() == nil {
			t.Error("expected Err to report the failure")
		}

		if stored := reloadSubscription(t, db, broken.ID); stored.LastRunOn != nil || !stored.NextRunOn.Equal(testutil.Date(2025, 3, 10)) {
			t.Error("failed subscription must be left unchanged")
		}
		if stored := reloadSubscription(t, db, fine.ID); stored.LastRunOn == nil {
			t.Error("healthy subscription must still run")
		}

		var acct models.Account
		db.First(&acct, "id = ?", account.ID)
		testutil.AssertDecimal(t, acct.Balance, "42")

		if len(n.messages) != 1 || !strings.Contains(n.messages[0], broken.ID) {
			t.Errorf("expected failure to be listed in the notification, got %v", n.messages)
		}
	})
}

type stubEngine struct {
	services.AllocationEngine
	allocate func(ctx context.Context, budget *models.Budget, periodDate time.Time) (*models.BudgetAllocation, error)
}

func (s stubEngine) AllocateForPeriod(ctx context.Context, budget *models.Budget, periodDate time.Time) (*models.BudgetAllocation, error) {
	return s.allocate(ctx, budget, periodDate)
}

func TestProcessActiveBudgetAllocations(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("snapshots_active_budgets", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		n := &recordingNotifier{}
		p := NewBudgetProcessor(db, services.NewAllocationEngine(db, testConverter()), n)
		user := testutil.CreateTestUser(t, db)
		active := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("250"))
		inactive := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("90"))
		db.Model(inactive).Update("active", false)

		result := p.ProcessActiveBudgetAllocations(ctx, now)
		if result.Processed != 1 || result.Failed != 0 {
			t.Fatalf("expected 1 processed, got %+v", result)
		}

		var allocations []models.BudgetAllocation
		db.Find(&allocations)
		if len(allocations) != 1 || allocations[0].BudgetID != active.ID {
			t.Fatalf("expected one snapshot for the active budget, got %+v", allocations)
		}
		testutil.AssertDecimal(t, allocations[0].Amount, "250")
		if !allocations[0].Period.Equal(testutil.Date(2025, 4, 1)) {
			t.Errorf("expected April period, got %s", allocations[0].Period)
		}

		rerun := p.ProcessActiveBudgetAllocations(ctx, now.AddDate(0, 0, 3))
		if rerun.Processed != 1 {
			t.Errorf("expected rerun to succeed, got %+v", rerun)
		}
		var count int64
		db.Model(&models.BudgetAllocation{}).Count(&count)
		if count != 1 {
			t.Errorf("expected rerun in the same month to update in place, got %d rows", count)
		}
		if len(n.messages) != 2 {
			t.Errorf("expected a notification per run, got %d", len(n.messages))
		}
	})

	t.Run("failure_does_not_stop_batch", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		user := testutil.CreateTestUser(t, db)
		first := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("1"))
		testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("2"))

		calls := 0
		engine := stubEngine{allocate: func(_ context.Context, b *models.Budget, p time.Time) (*models.BudgetAllocation, error) {
			calls++
			if b.ID == first.ID {
				return nil, errors.New("boom")
			}
			return &models.BudgetAllocation{BudgetID: b.ID, Period: p, Amount: b.AmountValue}, nil
		}}

		result := NewBudgetProcessor(db, engine, nil).ProcessActiveBudgetAllocations(ctx, now)
		if calls != 2 {
			t.Errorf("expected both budgets to be attempted, got %d", calls)
		}
		if result.Processed != 1 || result.Failed != 1 || result.Failures[0].ID != first.ID {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("month_follows_the_run_location", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		p := NewBudgetProcessor(db, services.NewAllocationEngine(db, testConverter()), nil)
		user := testutil.CreateTestUser(t, db)
		budget := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("40"))

		tokyo := time.FixedZone("JST", 9*60*60)
		result := p.ProcessActiveBudgetAllocations(ctx, time.Date(2025, 4, 1, 0, 0, 0, 0, tokyo))
		if result.Processed != 1 {
			t.Fatalf("expected 1 processed, got %+v", result)
		}

		var allocation models.BudgetAllocation
		testutil.AssertNoError(t, db.Where("budget_id = ?", budget.ID).First(&allocation).Error)
		if !allocation.Period.Equal(testutil.Date(2025, 4, 1)) {
			t.Errorf("expected 2025-04-01, got %s", allocation.Period)
		}
	})

	t.Run("income_without_rate_fails_and_retries", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		user := testutil.CreateTestUser(t, db)
		eur := testutil.CreateTestAccount(t, db, user.ID, "EUR")
		budget := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypePercentage, testutil.Dec("10"))
		testutil.CreateTestTransaction(t, db, eur, nil, models.TransactionTypeIncome, testutil.Dec("5000"), testutil.Date(2025, 3, 10))

		offline := NewBudgetProcessor(db, services.NewAllocationEngine(db, currency.NewStaticConverter(nil)), nil)
		result := offline.ProcessActiveBudgetAllocations(ctx, now)
		if result.Processed != 0 || result.Failed != 1 || result.Failures[0].ID != budget.ID {
			t.Fatalf("expected the budget to fail, got %+v", result)
		}
		var count int64
		db.Model(&models.BudgetAllocation{}).Count(&count)
		if count != 0 {
			t.Fatalf("expected no snapshot, got %d", count)
		}

		online := NewBudgetProcessor(db, services.NewAllocationEngine(db, testConverter()), nil)
		if retry := online.ProcessActiveBudgetAllocations(ctx, now); retry.Processed != 1 {
			t.Fatalf("expected retry to succeed, got %+v", retry)
		}
		var allocation models.BudgetAllocation
		testutil.AssertNoError(t, db.Where("budget_id = ?", budget.ID).First(&allocation).Error)
		testutil.AssertDecimal(t, allocation.Amount, "550")
	})
}

func TestRegistry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	registry := NewRegistry(
		newSubscriptionProcessorForTest(db, &recordingNotifier{}),
		NewBudgetProcessor(db, services.NewAllocationEngine(db, testConverter()), nil),
	)

	names := registry.Names()
	if len(names) != 2 || names[0] != BudgetsJob || names[1] != SubscriptionsJob {
		t.Errorf("unexpected names %v", names)
	}

	result, err := registry.Run(context.Background(), SubscriptionsJob, time.Now())
	testutil.AssertNoError(t, err)
	if result.Job != SubscriptionsJob {
		t.Errorf("expected job name in result, got %q", result.Job)
	}

	_, err = registry.Run(context.Background(), "backups", time.Now())
	testutil.AssertAppError(t, err, "UNKNOWN_JOB")
}

func TestRunResultSummary(t *testing.T) {
	result := RunResult{Job: BudgetsJob}
	for i := 0; i < maxListedFailures+2; i++ {
		result.fail("b", errors.New("x"))
	}
	summary := result.Summary(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if !strings.HasPrefix(summary, "*budget-allocations* (2025-04-01): 0 processed, 12 failed") {
		t.Errorf("unexpected summary header: %q", summary)
	}
	if !strings.Contains(summary, "... and 2 more") {
		t.Errorf("expected truncated failure list, got %q", summary)
	}
}
