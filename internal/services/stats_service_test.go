package services

import (
	"context"
	"testing"

	"pennywise/internal/models"
	"pennywise/internal/testutil"
)

func TestGetDashboard(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := NewStatsService(db, newTestConverter())
	user := testutil.CreateTestUser(t, db)
	usd := testutil.CreateTestAccount(t, db, user.ID, "USD")
	eur := testutil.CreateTestAccount(t, db, user.ID, "EUR")
	chf := testutil.CreateTestAccount(t, db, user.ID, "CHF")

	testutil.CreateTestTransaction(t, db, usd, nil, models.TransactionTypeIncome, testutil.Dec("1000"), testutil.Date(2024, 11, 1))
	testutil.CreateTestTransaction(t, db, eur, nil, models.TransactionTypeIncome, testutil.Dec("100"), testutil.Date(2025, 1, 1))
	testutil.CreateTestTransaction(t, db, usd, nil, models.TransactionTypeExpense, testutil.Dec("250"), testutil.Date(2025, 2, 1))
	testutil.CreateTestTransaction(t, db, chf, nil, models.TransactionTypeExpense, testutil.Dec("40"), testutil.Date(2025, 2, 2))
	cancelled := testutil.CreateTestTransaction(t, db, usd, nil, models.TransactionTypeExpense, testutil.Dec("999"), testutil.Date(2025, 2, 3))
	db.Model(cancelled).Update("status", models.TransactionStatusCancelled)

	summary, err := svc.GetDashboard(ctx, user.ID)
	testutil.AssertNoError(t, err)

	if summary.MainCurrency != "USD" {
		t.Errorf("expected USD, got %s", summary.MainCurrency)
	}
	testutil.AssertDecimal(t, summary.Income, "1110")
	testutil.AssertDecimal(t, summary.Expense, "250")
	testutil.AssertDecimal(t, summary.Total, "860")
	if len(summary.UnconvertedCurrencies) != 1 || summary.UnconvertedCurrencies[0] != "CHF" {
		t.Errorf("expected CHF to be flagged, got %v", summary.UnconvertedCurrencies)
	}
	if len(summary.RecentTransactions) != 5 {
		t.Fatalf("expected 5 recent transactions, got %d", len(summary.RecentTransactions))
	}
	if summary.RecentTransactions[0].ID != cancelled.ID {
		t.Error("expected newest transaction first")
	}
}

func TestGetDashboard_RecentLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewStatsService(db, newTestConverter())
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestAccount(t, db, user.ID, "USD")
	for i := 1; i <= RecentTransactionsLimit+5; i++ {
		testutil.CreateTestTransaction(t, db, account, nil, models.TransactionTypeExpense, testutil.Dec("1"), testutil.Date(2025, 1, 1).AddDate(0, 0, i))
	}

	summary, err := svc.GetDashboard(context.Background(), user.ID)
	testutil.AssertNoError(t, err)
	if len(summary.RecentTransactions) != RecentTransactionsLimit {
		t.Errorf("expected %d transactions, got %d", RecentTransactionsLimit, len(summary.RecentTransactions))
	}
	testutil.AssertDecimal(t, summary.Expense, "25")
}

func TestGetMonthlyStats(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := NewStatsService(db, newTestConverter())
	user := testutil.CreateTestUser(t, db)
	usd := testutil.CreateTestAccount(t, db, user.ID, "USD")
	eur := testutil.CreateTestAccount(t, db, user.ID, "EUR")
	chf := testutil.CreateTestAccount(t, db, user.ID, "CHF")
	food := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	rent := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	testutil.CreateTestTransaction(t, db, usd, &food.ID, models.TransactionTypeExpense, testutil.Dec("30"), testutil.Date(2025, 2, 3))
	testutil.CreateTestTransaction(t, db, eur, &food.ID, models.TransactionTypeExpense, testutil.Dec("10"), testutil.Date(2025, 2, 3))
	testutil.CreateTestTransaction(t, db, usd, &rent.ID, models.TransactionTypeExpense, testutil.Dec("900"), testutil.Date(2025, 2, 1))
	testutil.CreateTestTransaction(t, db, usd, nil, models.TransactionTypeExpense, testutil.Dec("5"), testutil.Date(2025, 2, 28))
	testutil.CreateTestTransaction(t, db, chf, &food.ID, models.TransactionTypeExpense, testutil.Dec("7"), testutil.Date(2025, 2, 10))
	// Outside the month or the type.
	testutil.CreateTestTransaction(t, db, usd, &food.ID, models.TransactionTypeExpense, testutil.Dec("500"), testutil.Date(2025, 3, 1))
	testutil.CreateTestTransaction(t, db, usd, nil, models.TransactionTypeIncome, testutil.Dec("4000"), testutil.Date(2025, 2, 1))

	stats, err := svc.GetMonthlyStats(ctx, user.ID, models.TransactionTypeExpense, testutil.Date(2025, 2, 14))
	testutil.AssertNoError(t, err)

	if stats.Date != "2025-02-01" {
		t.Errorf("expected month start date, got %s", stats.Date)
	}
	if len(stats.Categories) != 3 {
		t.Fatalf("expected 3 category rows, got %d", len(stats.Categories))
	}
	if stats.Categories[0].CategoryID != rent.ID {
		t.Errorf("expected rent first, got %s", stats.Categories[0].Name)
	}
	testutil.AssertDecimal(t, stats.Categories[0].Value, "900")
	if stats.Categories[1].CategoryID != food.ID {
		t.Errorf("expected food second, got %s", stats.Categories[1].Name)
	}
	testutil.AssertDecimal(t, stats.Categories[1].Value, "41")
	if stats.Categories[2].Name != "Uncategorized" {
		t.Errorf("expected uncategorized last, got %s", stats.Categories[2].Name)
	}

	if len(stats.Daily) != 28 {
		t.Fatalf("expected 28 days in February 2025, got %d", len(stats.Daily))
	}
	testutil.AssertDecimal(t, stats.Daily[0].Amount, "900")
	testutil.AssertDecimal(t, stats.Daily[1].Amount, "0")
	testutil.AssertDecimal(t, stats.Daily[2].Amount, "41")
	testutil.AssertDecimal(t, stats.Daily[27].Amount, "5")
	if stats.Daily[27].Date != "2025-02-28" || stats.Daily[27].Day != 28 {
		t.Errorf("unexpected last day %+v", stats.Daily[27])
	}
	if len(stats.UnconvertedCurrencies) != 1 || stats.UnconvertedCurrencies[0] != "CHF" {
		t.Errorf("expected CHF to be flagged, got %v", stats.UnconvertedCurrencies)
	}

	_, err = svc.GetMonthlyStats(ctx, user.ID, "transfer", testutil.Date(2025, 2, 14))
	testutil.AssertAppError(t, err, "INVALID_TRANSACTION_TYPE")
}

func TestGetMonthlyStats_DeletedCategoryKeepsName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := NewStatsService(db, newTestConverter())
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestAccount(t, db, user.ID, "USD")
	old := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeIncome)
	testutil.CreateTestTransaction(t, db, account, &old.ID, models.TransactionTypeIncome, testutil.Dec("12"), testutil.Date(2024, 2, 29))
	db.Delete(old)

	stats, err := svc.GetMonthlyStats(context.Background(), user.ID, models.TransactionTypeIncome, testutil.Date(2024, 2, 1))
	testutil.AssertNoError(t, err)
	if len(stats.Daily) != 29 {
		t.Errorf("expected 29 days in a leap February, got %d", len(stats.Daily))
	}
	if len(stats.Categories) != 1 || stats.Categories[0].Name != old.Name {
		t.Errorf("expected deleted category to keep its name, got %+v", stats.Categories)
	}
}
