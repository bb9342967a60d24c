package services

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pennywise/internal/currency"
	apperrors "pennywise/internal/errors"
	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/period"
)

// RecentTransactionsLimit caps the dashboard's transaction list.
const RecentTransactionsLimit = 20

const uncategorizedName = "Uncategorized"

// statsService builds read-only reports over the ledger.
type statsService struct {
	db        *gorm.DB
	converter currency.Converter
}

// NewStatsService creates a new StatsServicer.
func NewStatsService(db *gorm.DB, converter currency.Converter) StatsServicer {
	return &statsService{db: db, converter: converter}
}

// GetDashboard returns all-time income and expense in the user's main
// currency together with the latest transactions.
func (s *statsService) GetDashboard(ctx context.Context, userID string) (*DashboardSummary, error) {
	db := s.db.WithContext(ctx)
	mainCurrency, err := userMainCurrency(db, userID)
	if err != nil {
		return nil, err
	}

	income, err := s.allTime(ctx, db, userID, models.TransactionTypeIncome, mainCurrency)
	if err != nil {
		return nil, err
	}
	expense, err := s.allTime(ctx, db, userID, models.TransactionTypeExpense, mainCurrency)
	if err != nil {
		return nil, err
	}

	var recent []models.Transaction
	if err := db.Where("user_id = ?", userID).
		Preload("Account").
		Preload("Category", func(tx *gorm.DB) *gorm.DB { return tx.Unscoped() }).
		Order("transaction_date DESC, created_at DESC").
		Limit(RecentTransactionsLimit).
		Find(&recent).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &DashboardSummary{
		MainCurrency:          mainCurrency,
		Income:                income.Amount,
		Expense:               expense.Amount,
		Total:                 income.Amount.Sub(expense.Amount),
		UnconvertedCurrencies: mergeCurrencies(income.Unconverted, expense.Unconverted),
		RecentTransactions:    recent,
	}, nil
}

func (s *statsService) allTime(ctx context.Context, db *gorm.DB, userID string, txType models.TransactionType, mainCurrency string) (currency.Total, error) {
	query := db.Model(&models.Transaction{}).
		Joins("JOIN accounts ON accounts.id = transactions.account_id").
		Where("transactions.user_id = ? AND transactions.type = ?", userID, txType).
		Where("(transactions.status IS NULL OR transactions.status <> ?)", models.TransactionStatusCancelled)
	rows, err := sumByCurrency(query)
	if err != nil {
		return currency.Total{}, err
	}
	return convertSums(ctx, s.converter, rows, mainCurrency), nil
}

type categoryCurrencySum struct {
	CategoryID *string
	Currency   string
	Total      decimal.Decimal
}

type ledgerEntry struct {
	TransactionDate time.Time
	Currency        string
	Amount          decimal.Decimal
}

// GetMonthlyStats breaks asOf's month down by category and by day. Every
// day of the month is present, zero when nothing was recorded.
func (s *statsService) GetMonthlyStats(ctx context.Context, userID string, txType models.TransactionType, asOf time.Time) (*MonthlyStats, error) {
	if txType != models.TransactionTypeIncome && txType != models.TransactionTypeExpense {
		return nil, apperrors.ErrInvalidTransactionType
	}
	db := s.db.WithContext(ctx)
	mainCurrency, err := userMainCurrency(db, userID)
	if err != nil {
		return nil, err
	}

	start := period.MonthStart(asOf)
	end := period.NextMonthStart(asOf)
	unconverted := make(map[string]bool)

	var byCategory []categoryCurrencySum
	if err := ledgerQuery(db, userID, txType, start, end).
		Select("transactions.category_id AS category_id, accounts.currency AS currency, COALESCE(SUM(transactions.amount), 0) AS total").
		Group("transactions.category_id, accounts.currency").
		Scan(&byCategory).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	categoryTotals := make(map[string]decimal.Decimal)
	for _, row := range byCategory {
		amount, ok := s.convert(ctx, row.Currency, mainCurrency, row.Total)
		if !ok {
			unconverted[row.Currency] = true
			continue
		}
		key := ""
		if row.CategoryID != nil {
			key = *row.CategoryID
		}
		categoryTotals[key] = categoryTotals[key].Add(amount)
	}

	categories, err := s.categoryStats(db, categoryTotals)
	if err != nil {
		return nil, err
	}

	var entries []ledgerEntry
	if err := ledgerQuery(db, userID, txType, start, end).
		Select("transactions.transaction_date AS transaction_date, accounts.currency AS currency, transactions.amount AS amount").
		Scan(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	days := period.DaysIn(start)
	perDay := make(map[int]map[string]decimal.Decimal)
	for _, e := range entries {
		idx := e.TransactionDate.UTC().Day() - 1
		if perDay[idx] == nil {
			perDay[idx] = make(map[string]decimal.Decimal)
		}
		perDay[idx][e.Currency] = perDay[idx][e.Currency].Add(e.Amount)
	}

	daily := make([]DailyStat, days)
	for i := range daily {
		daily[i] = DailyStat{Date: period.Format(start.AddDate(0, 0, i)), Day: i + 1, Amount: decimal.Zero}
		for code, total := range perDay[i] {
			amount, ok := s.convert(ctx, code, mainCurrency, total)
			if !ok {
				unconverted[code] = true
				continue
			}
			daily[i].Amount = daily[i].Amount.Add(amount)
		}
	}

	return &MonthlyStats{
		Type:                  txType,
		Date:                  period.Format(start),
		MainCurrency:          mainCurrency,
		Categories:            categories,
		Daily:                 daily,
		UnconvertedCurrencies: sortedKeys(unconverted),
	}, nil
}

func (s *statsService) convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, bool) {
	c := s.converter.TryConvert(ctx, from, to, amount)
	if !c.Converted {
		logger.Get().Warnw("could not convert to main currency",
			"from", from, "to", to, "amount", amount.String(), "error", c.Err)
		return decimal.Zero, false
	}
	return c.Amount.Round(4), true
}

// categoryStats names each total and sorts by value, largest first. Deleted
// categories keep their name.
func (s *statsService) categoryStats(db *gorm.DB, totals map[string]decimal.Decimal) ([]CategoryStat, error) {
	ids := make([]string, 0, len(totals))
	for id := range totals {
		if id != "" {
			ids = append(ids, id)
		}
	}

	names := make(map[string]string, len(ids))
	if len(ids) > 0 {
		var categories []models.Category
		if err := db.Unscoped().Select("id", "name").Where("id IN ?", ids).Find(&categories).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for _, c := range categories {
			names[c.ID] = c.Name
		}
	}

	stats := make([]CategoryStat, 0, len(totals))
	for id, value := range totals {
		name := uncategorizedName
		if id != "" {
			name = names[id]
		}
		stats = append(stats, CategoryStat{CategoryID: id, Name: name, Value: value})
	}
	sort.Slice(stats, func(i, j int) bool {
		if c := stats[i].Value.Cmp(stats[j].Value); c != 0 {
			return c > 0
		}
		return stats[i].Name < stats[j].Name
	})
	return stats, nil
}

func mergeCurrencies(lists ...[]string) []string {
	set := make(map[string]bool)
	for _, l := range lists {
		for _, c := range l {
			set[c] = true
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
