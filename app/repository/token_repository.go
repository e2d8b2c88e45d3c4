package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// tokenRepository implements the TokenRepository interface
type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository instance
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

// Save stores a new access token row
func (r *tokenRepository) Save(token *models.PaypalAccessToken) error {
	return r.db.Create(token).Error
}

// GetLatestUsable retrieves the longest-lived token that is still outside the refresh buffer
func (r *tokenRepository) GetLatestUsable(environment string, now time.Time) (*models.PaypalAccessToken, error) {
	var token models.PaypalAccessToken
	err := r.db.Where("environment = ? AND expires_at > ?", environment, now.Add(models.TokenRefreshBuffer)).
		Order("expires_at DESC").
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteExpired removes tokens that expired at or before now
func (r *tokenRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&models.PaypalAccessToken{})
	return res.RowsAffected, res.Error
}
