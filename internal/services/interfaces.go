package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pennywise/internal/currency"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	EnsureUser(ctx context.Context, userID, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, name, mainCurrency *string) (*models.User, error)
}

// AccountUpdateFields holds optional fields for updating an account.
type AccountUpdateFields struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(ctx context.Context, userID, name, description, currency string, initialBalance decimal.Decimal) (*models.Account, error)
	GetUserAccounts(ctx context.Context, userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(ctx context.Context, userID, accountID string) (*models.Account, error)
	UpdateAccount(ctx context.Context, userID, accountID string, fields AccountUpdateFields) (*models.Account, error)
	UpdateAccountBalance(tx *gorm.DB, account *models.Account, transactionType models.TransactionType, amount decimal.Decimal) error
}

// CategoryInput holds the fields for creating a category.
type CategoryInput struct {
	Name        string
	Type        models.CategoryType
	Description string
	Icon        string
	Color       string
	ParentID    *string
	SortOrder   *int
}

// CategoryUpdateFields holds optional fields for updating a category.
type CategoryUpdateFields struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	ParentID    *string
	SortOrder   *int
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(ctx context.Context, userID string, input CategoryInput) (*models.Category, error)
	GetUserCategories(ctx context.Context, userID string, categoryType *models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error)
	UpdateCategory(ctx context.Context, userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error)
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}

// TransactionInput holds the fields for recording a transaction. An empty
// InputCurrency means the account's currency; a zero TransactionDate means today.
type TransactionInput struct {
	AccountID       string
	CategoryID      *string
	Type            models.TransactionType
	InputAmount     decimal.Decimal
	InputCurrency   string
	Label           string
	Description     string
	TransactionDate time.Time
	Status          *models.TransactionStatus
}

// TransactionUpdateFields holds optional fields for editing a transaction.
type TransactionUpdateFields struct {
	AccountID       *string
	CategoryID      *string
	Type            *models.TransactionType
	InputAmount     *decimal.Decimal
	InputCurrency   *string
	Label           *string
	Description     *string
	TransactionDate *time.Time
	Status          *models.TransactionStatus
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *string
	AccountID  *string
	MinAmount  *decimal.Decimal
	MaxAmount  *decimal.Decimal
	Status     *models.TransactionStatus
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(ctx context.Context, userID string, input TransactionInput) (*models.Transaction, error)
	// CreateTransactionTx records a transaction inside tx with a rate the
	// caller already resolved, and applies it to the account balance.
	CreateTransactionTx(tx *gorm.DB, account *models.Account, input TransactionInput, rate decimal.Decimal, rateMissing bool) (*models.Transaction, error)
	GetUserTransactions(ctx context.Context, userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetAccountTransactions(ctx context.Context, userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(ctx context.Context, userID, transactionID string) (*models.Transaction, error)
	UpdateTransaction(ctx context.Context, userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, transactionID string) error
}

// AllocationEngine computes how much a budget may spend in a month, how much
// it spent and what remains. Every method takes the date it is evaluated at.
type AllocationEngine interface {
	// CurrentAllocation returns the stored snapshot for asOf's month, or the
	// calculated amount when none exists. It never writes.
	CurrentAllocation(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error)
	// CalculateAllocation applies the allocation rule without consulting snapshots.
	CalculateAllocation(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error)
	SpentAmount(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error)
	// SpentTotal is SpentAmount with the currencies that could not be converted.
	SpentTotal(ctx context.Context, budget *models.Budget, asOf time.Time) (currency.Total, error)
	RemainingAmount(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error)
	// AllocateForPeriod upserts the snapshot for the month containing period.
	// Income without an exchange rate fails it with ErrIncomeNotConvertible.
	AllocateForPeriod(ctx context.Context, budget *models.Budget, period time.Time) (*models.BudgetAllocation, error)
	// ResolveAllocation and SaveAllocationTx split AllocateForPeriod so the
	// rate lookups run before the caller's transaction opens.
	ResolveAllocation(ctx context.Context, budget *models.Budget, period time.Time) (decimal.Decimal, error)
	SaveAllocationTx(tx *gorm.DB, budget *models.Budget, period time.Time, amount decimal.Decimal) (*models.BudgetAllocation, error)
	// PreviousMonthIncome sums the user's income in the month before asOf's
	// month, in the user's main currency.
	PreviousMonthIncome(ctx context.Context, userID string, asOf time.Time) (currency.Total, error)
}

// BudgetInput holds the fields for creating a budget.
type BudgetInput struct {
	Name        string
	AmountType  models.AmountType
	AmountValue *decimal.Decimal
	Active      *bool
	CategoryIDs []string
}

// BudgetUpdateFields holds optional fields for updating a budget. A nil
// CategoryIDs keeps the current set; an empty non-nil one is rejected.
type BudgetUpdateFields struct {
	Name        *string
	AmountType  *models.AmountType
	AmountValue *decimal.Decimal
	Active      *bool
	CategoryIDs []string
}

// BudgetProgress contains allocation vs spending data for one budget month.
type BudgetProgress struct {
	BudgetID    string          `json:"budget_id"`
	Period      time.Time       `json:"period"`
	Allocated   decimal.Decimal `json:"allocated" swaggertype:"string"`
	Snapshotted bool            `json:"snapshotted"`
	Spent       decimal.Decimal `json:"spent" swaggertype:"string"`
	Remaining   decimal.Decimal `json:"remaining" swaggertype:"string"`
	Percentage  float64         `json:"percentage"`
	// UnconvertedCurrencies lists account currencies whose spending could not
	// be converted and is missing from Spent.
	UnconvertedCurrencies []string `json:"unconverted_currencies,omitempty"`
}

// BudgetSummary is a budget with its figures for one month.
type BudgetSummary struct {
	models.Budget
	Allocated decimal.Decimal `json:"allocated" swaggertype:"string"`
	Spent     decimal.Decimal `json:"spent" swaggertype:"string"`
	Remaining decimal.Decimal `json:"remaining" swaggertype:"string"`
	// UnconvertedCurrencies lists account currencies whose spending is
	// missing from Spent.
	UnconvertedCurrencies []string `json:"unconverted_currencies,omitempty"`
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	CreateBudget(ctx context.Context, userID string, input BudgetInput) (*models.Budget, error)
	GetUserBudgets(ctx context.Context, userID string, page pagination.PageRequest, active *bool, asOf time.Time) (*pagination.PageResponse[BudgetSummary], error)
	GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error)
	UpdateBudget(ctx context.Context, userID, budgetID string, fields BudgetUpdateFields) (*models.Budget, error)
	DeleteBudget(ctx context.Context, userID, budgetID string) error
	GetBudgetProgress(ctx context.Context, userID, budgetID string, asOf time.Time) (*BudgetProgress, error)
	AllocateBudget(ctx context.Context, userID, budgetID string, period time.Time) (*models.BudgetAllocation, error)
	GetBudgetAllocations(ctx context.Context, userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAllocation], error)
}

// SubscriptionInput holds the fields for creating a subscription.
type SubscriptionInput struct {
	AccountID     string
	CategoryID    string
	Vendor        string
	Description   string
	InputAmount   decimal.Decimal
	InputCurrency string
	StartsOn      time.Time
	IntervalUnit  models.IntervalUnit
	Active        *bool
}

// SubscriptionUpdateFields holds optional fields for updating a subscription.
type SubscriptionUpdateFields struct {
	AccountID     *string
	CategoryID    *string
	Vendor        *string
	Description   *string
	InputAmount   *decimal.Decimal
	InputCurrency *string
	StartsOn      *time.Time
	IntervalUnit  *models.IntervalUnit
	Active        *bool
}

// SubscriptionServicer defines the contract for subscription-related business logic.
type SubscriptionServicer interface {
	CreateSubscription(ctx context.Context, userID string, input SubscriptionInput) (*models.Subscription, error)
	GetUserSubscriptions(ctx context.Context, userID string, page pagination.PageRequest, active *bool) (*pagination.PageResponse[models.Subscription], error)
	GetSubscriptionByID(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error)
	UpdateSubscription(ctx context.Context, userID, subscriptionID string, fields SubscriptionUpdateFields) (*models.Subscription, error)
	DeleteSubscription(ctx context.Context, userID, subscriptionID string) error
}

// DashboardSummary is the all-time income/expense overview in the user's
// main currency.
type DashboardSummary struct {
	MainCurrency          string               `json:"main_currency"`
	Income                decimal.Decimal      `json:"income" swaggertype:"string"`
	Expense               decimal.Decimal      `json:"expense" swaggertype:"string"`
	Total                 decimal.Decimal      `json:"total" swaggertype:"string"`
	UnconvertedCurrencies []string             `json:"unconverted_currencies,omitempty"`
	RecentTransactions    []models.Transaction `json:"recent_transactions"`
}

// CategoryStat is one category's total for a month.
type CategoryStat struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value" swaggertype:"string"`
}

// DailyStat is one day's total for a month.
type DailyStat struct {
	Date   string          `json:"date"`
	Day    int             `json:"day"`
	Amount decimal.Decimal `json:"amount" swaggertype:"string"`
}

// MonthlyStats breaks one month of income or expense down by category and day.
type MonthlyStats struct {
	Type                  models.TransactionType `json:"type"`
	Date                  string                 `json:"date"`
	MainCurrency          string                 `json:"main_currency"`
	Categories            []CategoryStat         `json:"categories"`
	Daily                 []DailyStat            `json:"daily"`
	UnconvertedCurrencies []string               `json:"unconverted_currencies,omitempty"`
}

// StatsServicer defines the contract for reporting.
type StatsServicer interface {
	GetDashboard(ctx context.Context, userID string) (*DashboardSummary, error)
	GetMonthlyStats(ctx context.Context, userID string, txType models.TransactionType, asOf time.Time) (*MonthlyStats, error)
}
