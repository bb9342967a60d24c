package testutil_test

import (
	"testing"

	"pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Verify all tables exist by doing a simple count query on each.
	var count int64
	for _, table := range []string{"users", "accounts", "categories", "transactions", "budgets", "budget_categories", "budget_allocations", "subscriptions"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDB_Isolated(t *testing.T) {
	first := testutil.SetupTestDB(t)
	testutil.CreateTestUser(t, first)

	second := testutil.SetupTestDB(t)
	var count int64
	second.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Errorf("second database should be empty, found %d users", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}

	account := testutil.CreateTestAccountWithBalance(t, db, user.ID, "eur", testutil.Dec("50"))
	if account.Currency != "EUR" {
		t.Errorf("currency should be upper-cased, got %s", account.Currency)
	}

	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	tx := testutil.CreateTestTransaction(t, db, account, &category.ID, models.TransactionTypeExpense, testutil.Dec("12.5"), testutil.Date(2025, 3, 4))
	if !tx.Amount.Equal(testutil.Dec("12.5")) {
		t.Errorf("expected amount 12.5, got %s", tx.Amount)
	}

	budget := testutil.CreateTestBudget(t, db, user.ID, models.AmountTypeFixed, testutil.Dec("100"), category)
	var links int64
	db.Table("budget_categories").Where("budget_id = ?", budget.ID).Count(&links)
	if links != 1 {
		t.Errorf("expected 1 budget category link, got %d", links)
	}

	sub := testutil.CreateTestSubscription(t, db, account, category, testutil.Dec("9.99"), "EUR", testutil.Date(2025, 1, 31), models.IntervalMonthly)
	if sub.LastRunOn != nil || !sub.NextRunOn.Equal(sub.StartsOn) {
		t.Errorf("new subscription should be due on its start date: %+v", sub)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrAccountNotFound, "custom message")
	testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
