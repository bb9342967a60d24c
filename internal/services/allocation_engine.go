package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pennywise/internal/currency"
	apperrors "pennywise/internal/errors"
	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/period"
)

var hundred = decimal.NewFromInt(100)

// allocationEngine derives allocated, spent and remaining figures for a
// budget month. Amounts are expressed in the owner's main currency.
type allocationEngine struct {
	db        *gorm.DB
	converter currency.Converter
}

// NewAllocationEngine creates a new AllocationEngine.
func NewAllocationEngine(db *gorm.DB, converter currency.Converter) AllocationEngine {
	return &allocationEngine{db: db, converter: converter}
}

// CurrentAllocation returns the snapshot for asOf's month when one exists.
// Stored snapshots are authoritative even if the budget changed since.
func (e *allocationEngine) CurrentAllocation(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	amount, _, err := e.currentAllocation(ctx, e.db.WithContext(ctx), budget, asOf)
	return amount, err
}

// currentAllocation also reports whether the amount came from a snapshot.
func (e *allocationEngine) currentAllocation(ctx context.Context, db *gorm.DB, budget *models.Budget, asOf time.Time) (decimal.Decimal, bool, error) {
	snapshot, err := findAllocation(db, budget.ID, period.MonthStart(asOf))
	if err != nil {
		return decimal.Zero, false, err
	}
	if snapshot != nil {
		return snapshot.Amount, true, nil
	}
	amount, err := e.calculate(ctx, db, budget, asOf)
	return amount, false, err
}

// CalculateAllocation applies the budget's allocation rule for asOf's month.
func (e *allocationEngine) CalculateAllocation(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	return e.calculate(ctx, e.db.WithContext(ctx), budget, asOf)
}

// calculate is the read-side rule: income without a rate is left out and
// logged, so a figure is always shown.
func (e *allocationEngine) calculate(ctx context.Context, db *gorm.DB, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	amount, unconverted, err := e.applyRule(ctx, db, budget, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if len(unconverted) > 0 {
		logger.Get().Warnw("income left out of percentage allocation",
			"budget_id", budget.ID,
			"user_id", budget.UserID,
			"currencies", unconverted,
		)
	}
	return amount, nil
}

// resolve is the write-side rule. A snapshot is frozen for the month, so a
// percentage amount missing part of the income is refused instead.
func (e *allocationEngine) resolve(ctx context.Context, db *gorm.DB, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	amount, unconverted, err := e.applyRule(ctx, db, budget, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if len(unconverted) > 0 {
		return decimal.Zero, apperrors.WithMessage(apperrors.ErrIncomeNotConvertible,
			"no exchange rate for income in "+strings.Join(unconverted, ", "))
	}
	return amount, nil
}

// applyRule returns the allocation for asOf's month and the income
// currencies that could not be converted into it.
func (e *allocationEngine) applyRule(ctx context.Context, db *gorm.DB, budget *models.Budget, asOf time.Time) (decimal.Decimal, []string, error) {
	switch budget.AmountType {
	case models.AmountTypeFixed:
		return budget.AmountValue, nil, nil
	case models.AmountTypePercentage:
		if budget.AmountValue.IsZero() {
			return decimal.Zero, nil, nil
		}
		income, err := e.previousMonthIncome(ctx, db, budget.UserID, asOf)
		if err != nil {
			return decimal.Zero, nil, err
		}
		return budget.AmountValue.Mul(income.Amount).Div(hundred).Round(4), income.Unconverted, nil
	default:
		return decimal.Zero, nil, apperrors.WithMessage(apperrors.ErrInternalServer, "unknown budget amount type "+string(budget.AmountType))
	}
}

// PreviousMonthIncome sums the user's income dated in the calendar month
// before asOf's month, converted into the user's main currency.
func (e *allocationEngine) PreviousMonthIncome(ctx context.Context, userID string, asOf time.Time) (currency.Total, error) {
	return e.previousMonthIncome(ctx, e.db.WithContext(ctx), userID, asOf)
}

func (e *allocationEngine) previousMonthIncome(ctx context.Context, db *gorm.DB, userID string, asOf time.Time) (currency.Total, error) {
	start := period.PreviousMonthStart(asOf)
	query := ledgerQuery(db, userID, models.TransactionTypeIncome, start, period.MonthStart(asOf))
	return e.sumInMainCurrency(ctx, db, userID, query)
}

// SpentAmount sums the expenses in the budget's categories during asOf's month.
func (e *allocationEngine) SpentAmount(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	total, err := e.SpentTotal(ctx, budget, asOf)
	return total.Amount, err
}

// SpentTotal is SpentAmount with the account currencies that could not be
// converted listed separately.
func (e *allocationEngine) SpentTotal(ctx context.Context, budget *models.Budget, asOf time.Time) (currency.Total, error) {
	return e.spent(ctx, e.db.WithContext(ctx), budget, asOf)
}

func (e *allocationEngine) spent(ctx context.Context, db *gorm.DB, budget *models.Budget, asOf time.Time) (currency.Total, error) {
	var categoryIDs []string
	if err := db.Table("budget_categories").
		Where("budget_id = ?", budget.ID).
		Pluck("category_id", &categoryIDs).Error; err != nil {
		return currency.Total{}, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(categoryIDs) == 0 {
		return currency.Total{Amount: decimal.Zero}, nil
	}

	query := ledgerQuery(db, budget.UserID, models.TransactionTypeExpense, period.MonthStart(asOf), period.NextMonthStart(asOf)).
		Where("transactions.category_id IN ?", categoryIDs)
	return e.sumInMainCurrency(ctx, db, budget.UserID, query)
}

// RemainingAmount is the current allocation minus what was spent. Overspend
// yields a negative value.
func (e *allocationEngine) RemainingAmount(ctx context.Context, budget *models.Budget, asOf time.Time) (decimal.Decimal, error) {
	allocated, err := e.CurrentAllocation(ctx, budget, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	spent, err := e.SpentAmount(ctx, budget, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return allocated.Sub(spent), nil
}

// AllocateForPeriod computes the allocation for the month containing
// periodDate and stores it, replacing the amount of an existing snapshot.
// It fails with ErrIncomeNotConvertible rather than store an amount that
// leaves out income it had no exchange rate for.
func (e *allocationEngine) AllocateForPeriod(ctx context.Context, budget *models.Budget, periodDate time.Time) (*models.BudgetAllocation, error) {
	amount, err := e.ResolveAllocation(ctx, budget, periodDate)
	if err != nil {
		return nil, err
	}

	var allocation *models.BudgetAllocation
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		allocation, err = e.SaveAllocationTx(tx, budget, periodDate, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return allocation, nil
}

// ResolveAllocation computes the amount AllocateForPeriod would store.
// Rate lookups happen here, so callers can resolve before opening a
// transaction.
func (e *allocationEngine) ResolveAllocation(ctx context.Context, budget *models.Budget, periodDate time.Time) (decimal.Decimal, error) {
	return e.resolve(ctx, e.db.WithContext(ctx), budget, period.MonthStart(periodDate))
}

// SaveAllocationTx upserts a resolved amount inside the caller's
// transaction. The snapshot keeps its id and created_at across
// recomputations.
func (e *allocationEngine) SaveAllocationTx(tx *gorm.DB, budget *models.Budget, periodDate time.Time, amount decimal.Decimal) (*models.BudgetAllocation, error) {
	start := period.MonthStart(periodDate)
	allocation := &models.BudgetAllocation{
		BudgetID: budget.ID,
		Period:   start,
		Amount:   amount,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "budget_id"}, {Name: "period"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount"}),
	}).Create(allocation).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	stored, err := findAllocation(tx, budget.ID, start)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInternalServer, "allocation missing after upsert")
	}
	return stored, nil
}

// findAllocation returns the snapshot for (budgetID, start) or nil.
func findAllocation(db *gorm.DB, budgetID string, start time.Time) (*models.BudgetAllocation, error) {
	var allocation models.BudgetAllocation
	err := db.Where("budget_id = ? AND period = ?", budgetID, start).First(&allocation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &allocation, nil
}

// ledgerQuery selects the user's non-cancelled transactions of one type
// dated in [from, to).
func ledgerQuery(db *gorm.DB, userID string, txType models.TransactionType, from, to time.Time) *gorm.DB {
	return db.Model(&models.Transaction{}).
		Joins("JOIN accounts ON accounts.id = transactions.account_id").
		Where("transactions.user_id = ? AND transactions.type = ?", userID, txType).
		Where("transactions.transaction_date >= ? AND transactions.transaction_date < ?", from, to).
		Where("(transactions.status IS NULL OR transactions.status <> ?)", models.TransactionStatusCancelled)
}

type currencySum struct {
	Currency string
	Total    decimal.Decimal
}

// sumByCurrency totals the matched transactions per account currency.
func sumByCurrency(query *gorm.DB) ([]currencySum, error) {
	var rows []currencySum
	if err := query.
		Select("accounts.currency AS currency, COALESCE(SUM(transactions.amount), 0) AS total").
		Group("accounts.currency").
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return rows, nil
}

// sumInMainCurrency converts each currency group into the user's main
// currency. Groups without a rate are left out and reported.
func (e *allocationEngine) sumInMainCurrency(ctx context.Context, db *gorm.DB, userID string, query *gorm.DB) (currency.Total, error) {
	mainCurrency, err := userMainCurrency(db, userID)
	if err != nil {
		return currency.Total{}, err
	}
	rows, err := sumByCurrency(query)
	if err != nil {
		return currency.Total{}, err
	}
	return convertSums(ctx, e.converter, rows, mainCurrency), nil
}

func convertSums(ctx context.Context, converter currency.Converter, rows []currencySum, to string) currency.Total {
	conversions := make([]currency.Conversion, 0, len(rows))
	for _, row := range rows {
		c := converter.TryConvert(ctx, row.Currency, to, row.Total)
		if !c.Converted {
			logger.Get().Warnw("could not convert to main currency",
				"from", row.Currency, "to", to, "amount", row.Total.String(), "error", c.Err)
		}
		conversions = append(conversions, c)
	}
	total := currency.Sum(conversions)
	total.Amount = total.Amount.Round(4)
	return total
}

func userMainCurrency(db *gorm.DB, userID string) (string, error) {
	var user models.User
	if err := db.Select("id", "main_currency").Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrUserNotFound
		}
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return user.MainCurrency, nil
}
