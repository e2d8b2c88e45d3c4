package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrStatusMismatch is returned by compare-and-set updates when the row is
	// missing or no longer in one of the expected states.
	ErrStatusMismatch = errors.New("row not in expected status")
	// ErrInsufficientUnits is returned when a counter would exceed its bound.
	ErrInsufficientUnits = errors.New("insufficient units")
)

// ensureExists returns gorm.ErrRecordNotFound when no row of model has the id.
func ensureExists(db *gorm.DB, model interface{}, id interface{}) error {
	var n int64
	if err := db.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
