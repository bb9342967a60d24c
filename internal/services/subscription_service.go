package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
	"pennywise/internal/period"
)

// subscriptionService handles subscription-related business logic.
type subscriptionService struct {
	db             *gorm.DB
	accountService AccountServicer
}

// NewSubscriptionService creates a new SubscriptionServicer.
func NewSubscriptionService(db *gorm.DB, accountService AccountServicer) SubscriptionServicer {
	return &subscriptionService{db: db, accountService: accountService}
}

// CreateSubscription registers a recurring expense. The first run is due on
// StartsOn.
func (s *subscriptionService) CreateSubscription(ctx context.Context, userID string, input SubscriptionInput) (*models.Subscription, error) {
	input.Vendor = strings.TrimSpace(input.Vendor)
	input.InputCurrency = strings.ToUpper(strings.TrimSpace(input.InputCurrency))

	var fields apperrors.FieldErrors
	if input.AccountID == "" {
		fields.Add("account_id", "account is required")
	}
	if input.CategoryID == "" {
		fields.Add("category_id", "category is required")
	}
	validateSubscription(&fields, input.Vendor, input.InputAmount, input.InputCurrency, input.IntervalUnit)
	if input.StartsOn.IsZero() {
		fields.Add("starts_on", "start date is required")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	account, err := s.accountService.GetAccountByID(ctx, userID, input.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.checkExpenseCategory(ctx, userID, input.CategoryID); err != nil {
		return nil, err
	}
	if input.InputCurrency == "" {
		input.InputCurrency = account.Currency
	}

	startsOn := period.Date(input.StartsOn)
	sub := &models.Subscription{
		UserID:        userID,
		AccountID:     account.ID,
		CategoryID:    input.CategoryID,
		Vendor:        input.Vendor,
		Description:   input.Description,
		InputAmount:   input.InputAmount,
		InputCurrency: input.InputCurrency,
		StartsOn:      startsOn,
		NextRunOn:     startsOn,
		IntervalUnit:  input.IntervalUnit,
		Active:        true,
	}
	if input.Active != nil {
		sub.Active = *input.Active
	}

	if err := s.db.WithContext(ctx).Omit("Account", "Category").Create(sub).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return sub, nil
}

// GetUserSubscriptions lists the user's subscriptions, soonest run first.
func (s *subscriptionService) GetUserSubscriptions(ctx context.Context, userID string, page pagination.PageRequest, active *bool) (*pagination.PageResponse[models.Subscription], error) {
	query := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("user_id = ?", userID)
	if active != nil {
		query = query.Where("active = ?", *active)
	}
	result, err := pagination.Fetch[models.Subscription](query, page, "next_run_on ASC, vendor ASC", "Category")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetSubscriptionByID returns a subscription if it belongs to the user.
func (s *subscriptionService) GetSubscriptionByID(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := findOwned(s.db.WithContext(ctx), &sub, subscriptionID, userID, apperrors.ErrSubscriptionNotFound); err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubscription applies a partial update. Before the first run a new
// StartsOn also moves NextRunOn; after a run, a new interval is applied
// from LastRunOn.
func (s *subscriptionService) UpdateSubscription(ctx context.Context, userID, subscriptionID string, fields SubscriptionUpdateFields) (*models.Subscription, error) {
	sub, err := s.GetSubscriptionByID(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}

	next := *sub
	if fields.Vendor != nil {
		next.Vendor = strings.TrimSpace(*fields.Vendor)
	}
	if fields.Description != nil {
		next.Description = *fields.Description
	}
	if fields.InputAmount != nil {
		next.InputAmount = *fields.InputAmount
	}
	if fields.InputCurrency != nil {
		next.InputCurrency = strings.ToUpper(strings.TrimSpace(*fields.InputCurrency))
	}
	if fields.IntervalUnit != nil {
		next.IntervalUnit = *fields.IntervalUnit
	}
	if fields.Active != nil {
		next.Active = *fields.Active
	}

	var fe apperrors.FieldErrors
	validateSubscription(&fe, next.Vendor, next.InputAmount, next.InputCurrency, next.IntervalUnit)
	if fields.StartsOn != nil && fields.StartsOn.IsZero() {
		fe.Add("starts_on", "start date is required")
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	if fields.AccountID != nil && *fields.AccountID != sub.AccountID {
		account, err := s.accountService.GetAccountByID(ctx, userID, *fields.AccountID)
		if err != nil {
			return nil, err
		}
		next.AccountID = account.ID
		if next.InputCurrency == "" {
			next.InputCurrency = account.Currency
		}
	}
	if fields.CategoryID != nil && *fields.CategoryID != sub.CategoryID {
		if err := s.checkExpenseCategory(ctx, userID, *fields.CategoryID); err != nil {
			return nil, err
		}
		next.CategoryID = *fields.CategoryID
	}

	if fields.StartsOn != nil {
		next.StartsOn = period.Date(*fields.StartsOn)
		if sub.LastRunOn == nil {
			next.NextRunOn = next.StartsOn
		}
	}
	if sub.LastRunOn != nil && next.IntervalUnit != sub.IntervalUnit {
		next.NextRunOn = next.IntervalUnit.Advance(*sub.LastRunOn, next.StartsOn.Day())
	}

	updates := map[string]interface{}{
		"account_id":     next.AccountID,
		"category_id":    next.CategoryID,
		"vendor":         next.Vendor,
		"description":    next.Description,
		"input_amount":   next.InputAmount,
		"input_currency": next.InputCurrency,
		"starts_on":      next.StartsOn,
		"next_run_on":    next.NextRunOn,
		"interval_unit":  next.IntervalUnit,
		"active":         next.Active,
	}
	if err := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.GetSubscriptionByID(ctx, userID, subscriptionID)
}

// DeleteSubscription soft-deletes a subscription. Transactions it already
// generated are kept.
func (s *subscriptionService) DeleteSubscription(ctx context.Context, userID, subscriptionID string) error {
	sub, err := s.GetSubscriptionByID(ctx, userID, subscriptionID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(sub).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func (s *subscriptionService) checkExpenseCategory(ctx context.Context, userID, categoryID string) error {
	var category models.Category
	if err := findOwned(s.db.WithContext(ctx), &category, categoryID, userID, apperrors.ErrCategoryNotFound); err != nil {
		return err
	}
	if category.Type != models.CategoryTypeExpense {
		return apperrors.ErrCategoryTypeMismatch
	}
	return nil
}

func validateSubscription(fields *apperrors.FieldErrors, vendor string, amount decimal.Decimal, code string, unit models.IntervalUnit) {
	if vendor == "" {
		fields.Add("vendor", "vendor is required")
	} else if len(vendor) > 255 {
		fields.Add("vendor", "vendor cannot exceed 255 characters")
	}
	if !amount.IsPositive() {
		fields.Add("input_amount", "must be greater than zero")
	}
	if code != "" && len(code) != 3 {
		fields.Add("input_currency", "must be a 3-letter ISO 4217 code")
	}
	if !unit.Valid() {
		fields.Add("interval_unit", "must be daily, weekly, monthly or yearly")
	}
}
