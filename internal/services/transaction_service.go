package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pennywise/internal/currency"
	apperrors "pennywise/internal/errors"
	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
	"pennywise/internal/period"
)

// transactionService handles transaction-related business logic.
type transactionService struct {
	db             *gorm.DB
	accountService AccountServicer
	converter      currency.Converter
	clock          period.Clock
}

// NewTransactionService creates a new TransactionServicer. Transactions
// entered without a date are dated on the clock's today.
func NewTransactionService(db *gorm.DB, accountService AccountServicer, converter currency.Converter, clock period.Clock) TransactionServicer {
	return &transactionService{
		db:             db,
		accountService: accountService,
		converter:      converter,
		clock:          clock,
	}
}

// CreateTransaction records a transaction against one of the user's
// accounts. The input amount is converted into the account currency at
// today's rate; when no rate is available the amount is kept as entered and
// the transaction is flagged.
func (s *transactionService) CreateTransaction(ctx context.Context, userID string, input TransactionInput) (*models.Transaction, error) {
	input.InputCurrency = strings.ToUpper(strings.TrimSpace(input.InputCurrency))

	var fields apperrors.FieldErrors
	if input.AccountID == "" {
		fields.Add("account_id", "account is required")
	}
	validateMoney(&fields, input.Type, input.InputAmount, input.InputCurrency, input.Status)
	if err := fields.Err(); err != nil {
		return nil, err
	}

	account, err := s.accountService.GetAccountByID(ctx, userID, input.AccountID)
	if err != nil {
		return nil, err
	}
	if input.InputCurrency == "" {
		input.InputCurrency = account.Currency
	}
	if input.CategoryID != nil && *input.CategoryID == "" {
		input.CategoryID = nil
	}
	if err := s.checkCategory(ctx, userID, input.CategoryID, input.Type); err != nil {
		return nil, err
	}
	if input.TransactionDate.IsZero() {
		input.TransactionDate = s.clock.Today()
	}

	rate, rateMissing := s.lookupRate(ctx, input.InputCurrency, account.Currency)

	var result *models.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.CreateTransactionTx(tx, account, input, rate, rateMissing)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreateTransactionTx inserts the transaction and moves the account balance
// using tx. Validation and rate lookup are the caller's job.
func (s *transactionService) CreateTransactionTx(tx *gorm.DB, account *models.Account, input TransactionInput, rate decimal.Decimal, rateMissing bool) (*models.Transaction, error) {
	transaction := &models.Transaction{
		UserID:          account.UserID,
		AccountID:       account.ID,
		CategoryID:      input.CategoryID,
		Type:            input.Type,
		InputAmount:     input.InputAmount,
		InputCurrency:   input.InputCurrency,
		Amount:          input.InputAmount.Mul(rate).Round(4),
		Rate:            rate,
		RateMissing:     rateMissing,
		Label:           input.Label,
		Description:     input.Description,
		TransactionDate: period.Date(input.TransactionDate),
		Status:          input.Status,
	}

	if err := tx.Create(transaction).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := s.applyBalance(tx, account, transaction, false); err != nil {
		return nil, err
	}
	return transaction, nil
}

// GetUserTransactions retrieves a paginated, filtered list of the user's transactions.
func (s *transactionService) GetUserTransactions(ctx context.Context, userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	base := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	base = applyTransactionFilters(base, filter)

	result, err := pagination.Fetch[models.Transaction](base, page, "transaction_date DESC, created_at DESC", "Category")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetAccountTransactions retrieves a paginated, filtered list of transactions for a specific account.
func (s *transactionService) GetAccountTransactions(ctx context.Context, userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	// First verify the account belongs to the user
	if _, err := s.accountService.GetAccountByID(ctx, userID, accountID); err != nil {
		return nil, err
	}
	filter.AccountID = &accountID
	return s.GetUserTransactions(ctx, userID, page, filter)
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("transaction_date >= ?", period.Date(*f.FromDate))
	}
	if f.ToDate != nil {
		q = q.Where("transaction_date <= ?", period.Date(*f.ToDate))
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.CategoryID != nil {
		q = q.Where("category_id = ?", *f.CategoryID)
	}
	if f.AccountID != nil {
		q = q.Where("account_id = ?", *f.AccountID)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(ctx context.Context, userID, transactionID string) (*models.Transaction, error) {
	db := s.db.WithContext(ctx)
	var transaction models.Transaction
	if err := findOwned(db, &transaction, transactionID, userID, apperrors.ErrTransactionNotFound); err != nil {
		return nil, err
	}

	// Deleted categories still label the transactions that used them.
	if transaction.CategoryID != nil {
		var category models.Category
		err := db.Unscoped().Where("id = ?", *transaction.CategoryID).Limit(1).Find(&category).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if category.ID != "" {
			transaction.Category = &category
		}
	}
	return &transaction, nil
}

// UpdateTransaction edits a transaction and keeps account balances in step.
// The stored rate is reused unless the account or the entered money changed.
func (s *transactionService) UpdateTransaction(ctx context.Context, userID, transactionID string, fields TransactionUpdateFields) (*models.Transaction, error) {
	existing, err := s.GetTransactionByID(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}

	next := *existing
	next.Category = nil
	moneyChanged := false

	if fields.AccountID != nil && *fields.AccountID != existing.AccountID {
		next.AccountID = *fields.AccountID
		moneyChanged = true
	}
	if fields.Type != nil {
		next.Type = *fields.Type
	}
	if fields.InputAmount != nil && !fields.InputAmount.Equal(existing.InputAmount) {
		next.InputAmount = *fields.InputAmount
		moneyChanged = true
	}
	if fields.InputCurrency != nil {
		code := strings.ToUpper(strings.TrimSpace(*fields.InputCurrency))
		if code != existing.InputCurrency {
			next.InputCurrency = code
			moneyChanged = true
		}
	}
	if fields.CategoryID != nil {
		if *fields.CategoryID == "" {
			next.CategoryID = nil
		} else {
			id := *fields.CategoryID
			next.CategoryID = &id
		}
	}
	if fields.Label != nil {
		next.Label = *fields.Label
	}
	if fields.Description != nil {
		next.Description = *fields.Description
	}
	if fields.TransactionDate != nil {
		next.TransactionDate = period.Date(*fields.TransactionDate)
	}
	if fields.Status != nil {
		status := *fields.Status
		next.Status = &status
		if status == "" {
			next.Status = nil
		}
	}

	var fe apperrors.FieldErrors
	validateMoney(&fe, next.Type, next.InputAmount, next.InputCurrency, next.Status)
	if err := fe.Err(); err != nil {
		return nil, err
	}

	oldAccount, err := s.accountService.GetAccountByID(ctx, userID, existing.AccountID)
	if err != nil {
		return nil, err
	}
	newAccount := oldAccount
	if next.AccountID != existing.AccountID {
		if newAccount, err = s.accountService.GetAccountByID(ctx, userID, next.AccountID); err != nil {
			return nil, err
		}
	}
	if err := s.checkCategory(ctx, userID, next.CategoryID, next.Type); err != nil {
		return nil, err
	}

	if next.InputCurrency == "" {
		next.InputCurrency = newAccount.Currency
	}
	if moneyChanged {
		next.Rate, next.RateMissing = s.lookupRate(ctx, next.InputCurrency, newAccount.Currency)
	}
	next.Amount = next.InputAmount.Mul(next.Rate).Round(4)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.applyBalance(tx, oldAccount, existing, true); err != nil {
			return err
		}
		if err := tx.Model(&models.Transaction{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"account_id":       next.AccountID,
			"category_id":      next.CategoryID,
			"type":             next.Type,
			"input_amount":     next.InputAmount,
			"input_currency":   next.InputCurrency,
			"amount":           next.Amount,
			"rate":             next.Rate,
			"rate_missing":     next.RateMissing,
			"label":            next.Label,
			"description":      next.Description,
			"transaction_date": next.TransactionDate,
			"status":           next.Status,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.applyBalance(tx, newAccount, &next, false)
	})
	if err != nil {
		return nil, err
	}

	return s.GetTransactionByID(ctx, userID, transactionID)
}

// DeleteTransaction deletes a transaction and updates the account balance
func (s *transactionService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	transaction, err := s.GetTransactionByID(ctx, userID, transactionID)
	if err != nil {
		return err
	}

	account, err := s.accountService.GetAccountByID(ctx, userID, transaction.AccountID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Transaction{}, "id = ?", transaction.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.applyBalance(tx, account, transaction, true)
	})
}

// applyBalance moves the account balance by the transaction's amount, or
// reverses that move. Cancelled transactions never touch the balance.
func (s *transactionService) applyBalance(tx *gorm.DB, account *models.Account, t *models.Transaction, reverse bool) error {
	if t.Status != nil && *t.Status == models.TransactionStatusCancelled {
		return nil
	}
	txType := t.Type
	if reverse {
		switch t.Type {
		case models.TransactionTypeIncome:
			txType = models.TransactionTypeExpense
		case models.TransactionTypeExpense:
			txType = models.TransactionTypeIncome
		default:
			return apperrors.ErrInvalidTransactionType
		}
	}
	return s.accountService.UpdateAccountBalance(tx, account, txType, t.Amount)
}

// lookupRate returns the rate from the input currency into the account
// currency, or 1 flagged as missing when the lookup fails.
func (s *transactionService) lookupRate(ctx context.Context, from, to string) (decimal.Decimal, bool) {
	rate, err := s.converter.GetRate(ctx, from, to)
	if err != nil {
		logger.Get().Warnw("exchange rate unavailable, storing amount unconverted",
			"from", from, "to", to, "error", err)
		return decimal.NewFromInt(1), true
	}
	return rate, false
}

// checkCategory verifies an optional category belongs to the user and
// matches the transaction type.
func (s *transactionService) checkCategory(ctx context.Context, userID string, categoryID *string, txType models.TransactionType) error {
	if categoryID == nil {
		return nil
	}
	var category models.Category
	if err := findOwned(s.db.WithContext(ctx), &category, *categoryID, userID, apperrors.ErrCategoryNotFound); err != nil {
		return err
	}
	if string(category.Type) != string(txType) {
		return apperrors.ErrCategoryTypeMismatch
	}
	return nil
}

func validateMoney(fields *apperrors.FieldErrors, txType models.TransactionType, amount decimal.Decimal, code string, status *models.TransactionStatus) {
	if txType != models.TransactionTypeIncome && txType != models.TransactionTypeExpense {
		fields.Add("type", "must be income or expense")
	}
	if !amount.IsPositive() {
		fields.Add("input_amount", "must be greater than zero")
	}
	if code != "" && len(code) != 3 {
		fields.Add("input_currency", "must be a 3-letter ISO 4217 code")
	}
	if status != nil {
		switch *status {
		case models.TransactionStatusPending, models.TransactionStatusCompleted, models.TransactionStatusCancelled:
		default:
			fields.Add("status", "must be pending, completed or cancelled")
		}
	}
}
