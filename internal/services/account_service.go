package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount creates a new account for a user. The initial balance is
// recorded on the account only and does not count as income.
func (s *accountService) CreateAccount(ctx context.Context, userID, name, description, currency string, initialBalance decimal.Decimal) (*models.Account, error) {
	var fields apperrors.FieldErrors
	name = strings.TrimSpace(name)
	if name == "" {
		fields.Add("name", "account name is required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		fields.Add("currency", "must be a 3-letter ISO 4217 code")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	account := &models.Account{
		UserID:      userID,
		Name:        name,
		Description: description,
		Balance:     initialBalance,
		Currency:    currency,
		IsActive:    true,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return account, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(ctx context.Context, userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	query := s.db.WithContext(ctx).Model(&models.Account{}).Where("user_id = ?", userID)
	result, err := pagination.Fetch[models.Account](query, page, "is_active DESC, name ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(ctx context.Context, userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := findOwned(s.db.WithContext(ctx), &account, accountID, userID, apperrors.ErrAccountNotFound); err != nil {
		return nil, err
	}
	return &account, nil
}

// UpdateAccount updates the descriptive fields of an account. Currency and
// balance are not editable; the balance only moves with transactions.
func (s *accountService) UpdateAccount(ctx context.Context, userID, accountID string, fields AccountUpdateFields) (*models.Account, error) {
	account, err := s.GetAccountByID(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, apperrors.WithFields(apperrors.ErrInvalidInput, map[string]string{"name": "account name is required"})
		}
		updates["name"] = name
	}
	if fields.Description != nil {
		updates["description"] = *fields.Description
	}
	if fields.IsActive != nil {
		updates["is_active"] = *fields.IsActive
	}

	if len(updates) > 0 {
		db := s.db.WithContext(ctx)
		if err := db.Model(account).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		// Reload to get fresh data
		if err := db.Where("id = ?", account.ID).First(account).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return account, nil
}

// UpdateAccountBalance applies a transaction to the account balance inside
// tx: income adds, expense subtracts. The update is done in SQL so
// concurrent writers do not lose each other's changes; account.Balance is
// refreshed afterwards.
func (s *accountService) UpdateAccountBalance(tx *gorm.DB, account *models.Account, transactionType models.TransactionType, amount decimal.Decimal) error {
	var delta decimal.Decimal
	switch transactionType {
	case models.TransactionTypeIncome:
		delta = amount
	case models.TransactionTypeExpense:
		delta = amount.Neg()
	default:
		return apperrors.ErrInvalidTransactionType
	}

	if err := tx.Model(&models.Account{}).
		Where("id = ?", account.ID).
		Update("balance", gorm.Expr("balance + ?", delta)).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var fresh models.Account
	if err := tx.Select("balance").Where("id = ?", account.ID).First(&fresh).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.Balance = fresh.Balance
	return nil
}
