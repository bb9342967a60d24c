package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"pennywise/internal/models"
	"pennywise/internal/period"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// Dec parses a decimal literal and panics on malformed input.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date builds a UTC calendar date.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateTestUser creates a user with a unique email and USD as main currency.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	return CreateTestUserWithCurrency(t, db, "USD")
}

// CreateTestUserWithCurrency creates a user with the given main currency.
func CreateTestUserWithCurrency(t *testing.T, db *gorm.DB, mainCurrency string) *models.User {
	t.Helper()

	n := nextID()
	user := &models.User{
		Email:        fmt.Sprintf("user%d@test.com", n),
		Name:         fmt.Sprintf("Test User %d", n),
		MainCurrency: mainCurrency,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates an account in the given currency with zero balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID, currency string) *models.Account {
	t.Helper()
	return CreateTestAccountWithBalance(t, db, userID, currency, decimal.Zero)
}

// CreateTestAccountWithBalance creates an account with the given balance.
func CreateTestAccountWithBalance(t *testing.T, db *gorm.DB, userID, currency string, balance decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", nextID()),
		Currency: currency,
		Balance:  balance,
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestCategory creates a category of the given type.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID string, categoryType models.CategoryType) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   fmt.Sprintf("Test Category %d", nextID()),
		Type:   categoryType,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction inserts a transaction directly, bypassing balance
// bookkeeping. The amount is stored as both input and converted amount.
func CreateTestTransaction(
	t *testing.T,
	db *gorm.DB,
	account *models.Account,
	categoryID *string,
	txType models.TransactionType,
	amount decimal.Decimal,
	date time.Time,
) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:          account.UserID,
		AccountID:       account.ID,
		CategoryID:      categoryID,
		Type:            txType,
		InputAmount:     amount,
		InputCurrency:   account.Currency,
		Amount:          amount,
		Rate:            decimal.NewFromInt(1),
		TransactionDate: period.Date(date),
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestBudget creates an active budget attached to the given categories.
// No allocation snapshot is written.
func CreateTestBudget(
	t *testing.T,
	db *gorm.DB,
	userID string,
	amountType models.AmountType,
	amountValue decimal.Decimal,
	categories ...*models.Category,
) *models.Budget {
	t.Helper()

	budget := &models.Budget{
		UserID:      userID,
		Name:        fmt.Sprintf("Test Budget %d", nextID()),
		AmountType:  amountType,
		AmountValue: amountValue,
		Active:      true,
	}
	for _, c := range categories {
		budget.Categories = append(budget.Categories, *c)
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// CreateTestSubscription creates an active subscription that has never run.
func CreateTestSubscription(
	t *testing.T,
	db *gorm.DB,
	account *models.Account,
	category *models.Category,
	amount decimal.Decimal,
	currency string,
	startsOn time.Time,
	unit models.IntervalUnit,
) *models.Subscription {
	t.Helper()

	startsOn = period.Date(startsOn)
	sub := &models.Subscription{
		UserID:        account.UserID,
		AccountID:     account.ID,
		CategoryID:    category.ID,
		Vendor:        fmt.Sprintf("Vendor %d", nextID()),
		InputAmount:   amount,
		InputCurrency: currency,
		StartsOn:      startsOn,
		NextRunOn:     startsOn,
		IntervalUnit:  unit,
		Active:        true,
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("failed to create test subscription: %v", err)
	}
	return sub
}
