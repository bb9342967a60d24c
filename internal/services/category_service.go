package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
	"pennywise/internal/pagination"
)

// categoryService handles category-related business logic.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

// CreateCategory creates a new category
func (s *categoryService) CreateCategory(ctx context.Context, userID string, input CategoryInput) (*models.Category, error) {
	db := s.db.WithContext(ctx)

	var fields apperrors.FieldErrors
	name := strings.TrimSpace(input.Name)
	if name == "" {
		fields.Add("name", "category name is required")
	}
	if input.Type != models.CategoryTypeIncome && input.Type != models.CategoryTypeExpense {
		fields.Add("type", "must be income or expense")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if err := s.checkDuplicate(db, userID, input.Type, name, ""); err != nil {
		return nil, err
	}

	parentID := input.ParentID
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		if err := s.checkParent(db, userID, *parentID, input.Type); err != nil {
			return nil, err
		}
	}

	category := &models.Category{
		UserID:      userID,
		Name:        name,
		Type:        input.Type,
		Description: input.Description,
		Icon:        input.Icon,
		Color:       input.Color,
		ParentID:    parentID,
	}
	if input.SortOrder != nil {
		category.SortOrder = *input.SortOrder
	} else {
		var maxOrder int
		if err := db.Model(&models.Category{}).
			Where("user_id = ?", userID).
			Select("COALESCE(MAX(sort_order), 0)").
			Scan(&maxOrder).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		category.SortOrder = maxOrder + 1
	}

	if err := db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return category, nil
}

// GetUserCategories retrieves a paginated list of categories for a user,
// optionally restricted to one type.
func (s *categoryService) GetUserCategories(ctx context.Context, userID string, categoryType *models.CategoryType, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error) {
	query := s.db.WithContext(ctx).Model(&models.Category{}).Where("user_id = ?", userID)
	if categoryType != nil {
		query = query.Where("type = ?", *categoryType)
	}

	result, err := pagination.Fetch[models.Category](query, page, "sort_order ASC, name ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// GetCategoryByID retrieves a category by ID for a specific user
func (s *categoryService) GetCategoryByID(ctx context.Context, userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := findOwned(s.db.WithContext(ctx), &category, categoryID, userID, apperrors.ErrCategoryNotFound); err != nil {
		return nil, err
	}
	return &category, nil
}

// UpdateCategory updates an existing category. An empty ParentID detaches
// the category from its parent. The type cannot change.
func (s *categoryService) UpdateCategory(ctx context.Context, userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error) {
	category, err := s.GetCategoryByID(ctx, userID, categoryID)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	updates := make(map[string]interface{})
	if fields.Name != nil {
		name := strings.TrimSpace(*fields.Name)
		if name == "" {
			return nil, apperrors.WithFields(apperrors.ErrInvalidInput, map[string]string{"name": "category name is required"})
		}
		if name != category.Name {
			if err := s.checkDuplicate(db, userID, category.Type, name, category.ID); err != nil {
				return nil, err
			}
		}
		updates["name"] = name
	}
	if fields.ParentID != nil {
		if *fields.ParentID == "" {
			updates["parent_id"] = nil
		} else {
			if *fields.ParentID == categoryID {
				return nil, apperrors.ErrSelfParentCategory
			}
			if err := s.checkParent(db, userID, *fields.ParentID, category.Type); err != nil {
				return nil, err
			}
			updates["parent_id"] = *fields.ParentID
		}
	}
	if fields.Description != nil {
		updates["description"] = *fields.Description
	}
	if fields.Icon != nil {
		updates["icon"] = *fields.Icon
	}
	if fields.Color != nil {
		updates["color"] = *fields.Color
	}
	if fields.SortOrder != nil {
		updates["sort_order"] = *fields.SortOrder
	}

	if len(updates) > 0 {
		if err := db.Model(category).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return s.GetCategoryByID(ctx, userID, categoryID)
}

// DeleteCategory soft-deletes a category and detaches it from budgets.
// Existing transactions keep their category_id reference for history.
func (s *categoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	category, err := s.GetCategoryByID(ctx, userID, categoryID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var childCount int64
		if err := tx.Model(&models.Category{}).Where("parent_id = ?", categoryID).Count(&childCount).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if childCount > 0 {
			return apperrors.ErrCategoryHasChildren
		}

		if err := tx.Model(category).Association("Budgets").Clear(); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := tx.Delete(category).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
}

func (s *categoryService) checkDuplicate(db *gorm.DB, userID string, categoryType models.CategoryType, name, exceptID string) error {
	query := db.Model(&models.Category{}).
		Where("user_id = ? AND type = ? AND LOWER(name) = LOWER(?)", userID, categoryType, name)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrDuplicateCategory
	}
	return nil
}

// checkParent verifies the parent exists, belongs to the user and has the same type.
func (s *categoryService) checkParent(db *gorm.DB, userID, parentID string, categoryType models.CategoryType) error {
	var parent models.Category
	if err := findOwned(db, &parent, parentID, userID, apperrors.ErrCategoryNotFound); err != nil {
		if errors.Is(err, apperrors.ErrCategoryNotFound) {
			return apperrors.WithMessage(apperrors.ErrCategoryNotFound, "parent category not found")
		}
		return err
	}
	if parent.Type != categoryType {
		return apperrors.WithFields(apperrors.ErrInvalidInput, map[string]string{
			"parent_id": "parent category must have the same type",
		})
	}
	return nil
}
