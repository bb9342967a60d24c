package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/logger"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
	"pennywise/internal/period"
)

// budgetService handles budget-related business logic.
type budgetService struct {
	db     *gorm.DB
	engine AllocationEngine
	clock  period.Clock
}

// NewBudgetService creates a new BudgetServicer. The clock decides which
// month create and update snapshot.
func NewBudgetService(db *gorm.DB, engine AllocationEngine, clock period.Clock) BudgetServicer {
	return &budgetService{db: db, engine: engine, clock: clock}
}

// budgetDraft is the validated state a budget is about to be written with.
type budgetDraft struct {
	name        string
	amountType  models.AmountType
	amountValue decimal.Decimal
	active      bool
	categories  []models.Category
}

// CreateBudget validates the input, then in one transaction creates the
// budget, links its categories and snapshots the current month.
func (s *budgetService) CreateBudget(ctx context.Context, userID string, input BudgetInput) (*models.Budget, error) {
	db := s.db.WithContext(ctx)

	var fields apperrors.FieldErrors
	draft := budgetDraft{
		name:       strings.TrimSpace(input.Name),
		amountType: input.AmountType,
		active:     true,
	}
	if input.AmountValue == nil {
		fields.Add("amount_value", "amount value is required")
	} else {
		draft.amountValue = *input.AmountValue
	}
	if input.Active != nil {
		draft.active = *input.Active
	}
	validateBudget(&fields, draft, input.AmountValue != nil)

	categories, err := s.loadBudgetCategories(db, userID, input.CategoryIDs, &fields)
	if err != nil {
		return nil, err
	}
	draft.categories = categories
	if err := fields.Err(); err != nil {
		return nil, err
	}

	budget := &models.Budget{
		UserID:      userID,
		Name:        draft.name,
		AmountType:  draft.amountType,
		AmountValue: draft.amountValue,
		Active:      draft.active,
	}
	now := s.clock.Now()
	amount, err := s.resolveCurrent(ctx, budget, now)
	if err != nil {
		return nil, err
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Categories", "Allocations").Create(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Model(budget).Association("Categories").Replace(draft.categories); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.storeCurrent(tx, budget, now, amount)
	})
	if err != nil {
		return nil, err
	}

	return s.GetBudgetByID(ctx, userID, budget.ID)
}

// GetUserBudgets lists the user's budgets with their figures for asOf's month.
func (s *budgetService) GetUserBudgets(ctx context.Context, userID string, page pagination.PageRequest, active *bool, asOf time.Time) (*pagination.PageResponse[BudgetSummary], error) {
	query := s.db.WithContext(ctx).Model(&models.Budget{}).Where("user_id = ?", userID)
	if active != nil {
		query = query.Where("active = ?", *active)
	}

	budgets, err := pagination.Fetch[models.Budget](query, page, "name ASC", "Categories")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summaries := make([]BudgetSummary, 0, len(budgets.Data))
	for i := range budgets.Data {
		b := &budgets.Data[i]
		allocated, err := s.engine.CurrentAllocation(ctx, b, asOf)
		if err != nil {
			return nil, err
		}
		spent, err := s.engine.SpentTotal(ctx, b, asOf)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, BudgetSummary{
			Budget:                *b,
			Allocated:             allocated,
			Spent:                 spent.Amount,
			Remaining:             allocated.Sub(spent.Amount),
			UnconvertedCurrencies: spent.Unconverted,
		})
	}

	result := pagination.NewPageResponse(summaries, budgets.Page, budgets.PageSize, budgets.TotalItems)
	return &result, nil
}

// GetBudgetByID returns a budget with its categories if it belongs to the user.
func (s *budgetService) GetBudgetByID(ctx context.Context, userID, budgetID string) (*models.Budget, error) {
	db := s.db.WithContext(ctx)
	var budget models.Budget
	if err := findOwned(db, &budget, budgetID, userID, apperrors.ErrBudgetNotFound); err != nil {
		return nil, err
	}
	if err := db.Model(&budget).Order("sort_order ASC").Association("Categories").Find(&budget.Categories); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// UpdateBudget applies a partial update. Every field is validated against
// the merged result before anything is written; the category set is only
// replaced when CategoryIDs is non-nil. The current month is re-snapshotted.
func (s *budgetService) UpdateBudget(ctx context.Context, userID, budgetID string, fields BudgetUpdateFields) (*models.Budget, error) {
	budget, err := s.GetBudgetByID(ctx, userID, budgetID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	draft := budgetDraft{
		name:        budget.Name,
		amountType:  budget.AmountType,
		amountValue: budget.AmountValue,
		active:      budget.Active,
		categories:  budget.Categories,
	}
	if fields.Name != nil {
		draft.name = strings.TrimSpace(*fields.Name)
	}
	if fields.AmountType != nil {
		draft.amountType = *fields.AmountType
	}
	if fields.AmountValue != nil {
		draft.amountValue = *fields.AmountValue
	}
	if fields.Active != nil {
		draft.active = *fields.Active
	}

	var fe apperrors.FieldErrors
	validateBudget(&fe, draft, true)
	if fields.CategoryIDs != nil {
		categories, err := s.loadBudgetCategories(db, userID, fields.CategoryIDs, &fe)
		if err != nil {
			return nil, err
		}
		draft.categories = categories
	}
	if err := fe.Err(); err != nil {
		return nil, err
	}

	budget.Name = draft.name
	budget.AmountType = draft.amountType
	budget.AmountValue = draft.amountValue
	budget.Active = draft.active
	now := s.clock.Now()
	amount, err := s.resolveCurrent(ctx, budget, now)
	if err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Budget{}).Where("id = ?", budget.ID).Updates(map[string]interface{}{
			"name":         draft.name,
			"amount_type":  draft.amountType,
			"amount_value": draft.amountValue,
			"active":       draft.active,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if fields.CategoryIDs != nil {
			if err := tx.Model(budget).Association("Categories").Replace(draft.categories); err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return s.storeCurrent(tx, budget, now, amount)
	})
	if err != nil {
		return nil, err
	}

	return s.GetBudgetByID(ctx, userID, budgetID)
}

// DeleteBudget soft-deletes a budget, removes its allocation history and
// unlinks its categories.
func (s *budgetService) DeleteBudget(ctx context.Context, userID, budgetID string) error {
	budget, err := s.GetBudgetByID(ctx, userID, budgetID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("budget_id = ?", budget.ID).Delete(&models.BudgetAllocation{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Model(budget).Association("Categories").Clear(); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(budget).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

// GetBudgetProgress reports allocation vs spending for asOf's month.
func (s *budgetService) GetBudgetProgress(ctx context.Context, userID, budgetID string, asOf time.Time) (*BudgetProgress, error) {
	budget, err := s.GetBudgetByID(ctx, userID, budgetID)
	if err != nil {
		return nil, err
	}

	start := period.MonthStart(asOf)
	progress := &BudgetProgress{BudgetID: budget.ID, Period: start}

	snapshot, err := findAllocation(s.db.WithContext(ctx), budget.ID, start)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		progress.Allocated = snapshot.Amount
		progress.Snapshotted = true
	} else if progress.Allocated, err = s.engine.CalculateAllocation(ctx, budget, asOf); err != nil {
		return nil, err
	}

	spent, err := s.engine.SpentTotal(ctx, budget, asOf)
	if err != nil {
		return nil, err
	}
	progress.Spent = spent.Amount
	progress.UnconvertedCurrencies = spent.Unconverted
	progress.Remaining = progress.Allocated.Sub(spent.Amount)
	if progress.Allocated.IsPositive() {
		progress.Percentage = spent.Amount.Div(progress.Allocated).Mul(hundred).Round(2).InexactFloat64()
	}
	return progress, nil
}

// AllocateBudget snapshots the allocation for the month containing periodDate.
func (s *budgetService) AllocateBudget(ctx context.Context, userID, budgetID string, periodDate time.Time) (*models.BudgetAllocation, error) {
	budget, err := s.GetBudgetByID(ctx, userID, budgetID)
	if err != nil {
		return nil, err
	}
	return s.engine.AllocateForPeriod(ctx, budget, periodDate)
}

// GetBudgetAllocations returns the snapshot history, newest period first.
func (s *budgetService) GetBudgetAllocations(ctx context.Context, userID, budgetID string, page pagination.PageRequest) (*pagination.PageResponse[models.BudgetAllocation], error) {
	if _, err := s.GetBudgetByID(ctx, userID, budgetID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.BudgetAllocation{}).Where("budget_id = ?", budgetID)
	result, err := pagination.Fetch[models.BudgetAllocation](query, page, "period DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// resolveCurrent computes the snapshot for now's month ahead of a write.
// A nil amount means some income had no exchange rate; the write still
// goes ahead.
func (s *budgetService) resolveCurrent(ctx context.Context, budget *models.Budget, now time.Time) (*decimal.Decimal, error) {
	amount, err := s.engine.ResolveAllocation(ctx, budget, now)
	if errors.Is(err, apperrors.ErrIncomeNotConvertible) {
		logger.Get().Warnw("current month left unsnapshotted",
			"budget_id", budget.ID,
			"user_id", budget.UserID,
			"error", err,
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

// storeCurrent writes the resolved snapshot. Without an amount it removes
// any snapshot for the month, which is then calculated on read until the
// monthly job stores it.
func (s *budgetService) storeCurrent(tx *gorm.DB, budget *models.Budget, now time.Time, amount *decimal.Decimal) error {
	if amount == nil {
		if err := tx.Where("budget_id = ? AND period = ?", budget.ID, period.MonthStart(now)).
			Delete(&models.BudgetAllocation{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	}
	_, err := s.engine.SaveAllocationTx(tx, budget, now, *amount)
	return err
}

func validateBudget(fields *apperrors.FieldErrors, d budgetDraft, hasValue bool) {
	if d.name == "" {
		fields.Add("name", "budget name is required")
	} else if utf8.RuneCountInString(d.name) > models.MaxBudgetNameLength {
		fields.Add("name", fmt.Sprintf("budget name cannot exceed %d characters", models.MaxBudgetNameLength))
	}

	switch d.amountType {
	case models.AmountTypeFixed, models.AmountTypePercentage:
	default:
		fields.Add("amount_type", "amount type must be either fixed or percentage")
	}

	if !hasValue {
		return
	}
	if d.amountValue.IsNegative() {
		fields.Add("amount_value", "amount value must be at least 0")
	} else if d.amountType == models.AmountTypePercentage && d.amountValue.GreaterThan(hundred) {
		fields.Add("amount_value", "the percentage value cannot exceed 100")
	}
}

// loadBudgetCategories resolves ids to the user's expense categories. Any
// problem is recorded as a category_ids field error.
func (s *budgetService) loadBudgetCategories(db *gorm.DB, userID string, ids []string, fields *apperrors.FieldErrors) ([]models.Category, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		fields.Add("category_ids", "at least one category must be selected")
		return nil, nil
	}
	for _, id := range unique {
		if !models.IsValidID(id) {
			fields.Add("category_ids", "one or more selected categories do not exist or do not belong to you")
			return nil, nil
		}
	}

	var categories []models.Category
	if err := db.Where("id IN ? AND user_id = ? AND type = ?", unique, userID, models.CategoryTypeExpense).
		Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(categories) != len(unique) {
		fields.Add("category_ids", "one or more selected categories do not exist, are not expense categories or do not belong to you")
		return nil, nil
	}
	return categories, nil
}
