package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "pennywise/internal/errors"
	"pennywise/internal/models"
)

type defaultCategory struct {
	icon string
	name string
	typ  models.CategoryType
}

// defaultCategories are seeded for every new user, in display order.
var defaultCategories = []defaultCategory{
	{"🍽️", "Food", models.CategoryTypeExpense},
	{"🚗", "Transport", models.CategoryTypeExpense},
	{"🛍️", "Shopping", models.CategoryTypeExpense},
	{"💡", "Bills", models.CategoryTypeExpense},
	{"🎬", "Entertainment", models.CategoryTypeExpense},
	{"🏥", "Healthcare", models.CategoryTypeExpense},
	{"📚", "Education", models.CategoryTypeExpense},
	{"✈️", "Travel", models.CategoryTypeExpense},
	{"🛡️", "Insurance", models.CategoryTypeExpense},
	{"💸", "Other", models.CategoryTypeExpense},
	{"💰", "Salary", models.CategoryTypeIncome},
	{"💼", "Freelance", models.CategoryTypeIncome},
	{"📈", "Investment", models.CategoryTypeIncome},
	{"🏢", "Business", models.CategoryTypeIncome},
	{"🎁", "Gift", models.CategoryTypeIncome},
	{"↩️", "Refund", models.CategoryTypeIncome},
	{"💵", "Other", models.CategoryTypeIncome},
}

// userService handles user-related business logic.
type userService struct {
	db *gorm.DB
}

// NewUserService creates a new UserServicer.
func NewUserService(db *gorm.DB) UserServicer {
	return &userService{db: db}
}

// EnsureUser returns the user with the given id, creating it together with
// the default categories the first time the id is seen.
func (s *userService) EnsureUser(ctx context.Context, userID, email string) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrUserNotFound) {
		return nil, err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "token has no email claim")
	}

	created := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user = &models.User{
			Base:         models.Base{ID: userID},
			Email:        email,
			MainCurrency: "USD",
		}
		res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).Create(user)
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		// Another request provisioned the same user first.
		if res.RowsAffected == 0 {
			return nil
		}
		created = true

		categories := make([]models.Category, 0, len(defaultCategories))
		for i, d := range defaultCategories {
			categories = append(categories, models.Category{
				UserID:    userID,
				Name:      d.name,
				Type:      d.typ,
				Icon:      d.icon,
				SortOrder: i + 1,
			})
		}
		if err := tx.Create(&categories).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return s.GetUserByID(ctx, userID)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// UpdateProfile changes the display name and/or main currency.
func (s *userService) UpdateProfile(ctx context.Context, userID string, name, mainCurrency *string) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if name != nil {
		updates["name"] = strings.TrimSpace(*name)
	}
	if mainCurrency != nil {
		code := strings.ToUpper(strings.TrimSpace(*mainCurrency))
		if len(code) != 3 {
			return nil, apperrors.WithFields(apperrors.ErrInvalidInput, map[string]string{
				"main_currency": "must be a 3-letter ISO 4217 code",
			})
		}
		updates["main_currency"] = code
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return s.GetUserByID(ctx, userID)
}
