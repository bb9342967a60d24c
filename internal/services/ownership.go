package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "pennywise/internal/errors"
)

// findOwned loads the row with the given id into dest when it belongs to
// userID. A row owned by someone else yields ErrForbidden; a missing row
// yields notFound. dest must be a pointer to a model with a user_id column.
func findOwned(db *gorm.DB, dest interface{}, id, userID string, notFound *apperrors.AppError) error {
	err := db.Where("id = ? AND user_id = ?", id, userID).First(dest).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var count int64
	if err := db.Model(dest).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return apperrors.ErrForbidden
	}
	return notFound
}
