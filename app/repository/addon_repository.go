package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// addonRepository implements the AddonRepository interface
type addonRepository struct {
	db *gorm.DB
}

// NewAddonRepository creates a new add-on repository instance
func NewAddonRepository(db *gorm.DB) AddonRepository {
	return &addonRepository{db: db}
}

// Create inserts a new add-on
func (r *addonRepository) Create(addon *models.ResourceAddon) error {
	return r.db.Omit(clause.Associations).Create(addon).Error
}

// GetByID retrieves an add-on by its id
func (r *addonRepository) GetByID(id string) (*models.ResourceAddon, error) {
	var addon models.ResourceAddon
	err := r.db.Where("id = ?", id).First(&addon).Error
	if err != nil {
		return nil, err
	}
	return &addon, nil
}

// ListActive retrieves the active add-ons of a user for an app, oldest purchase first.
// An empty addonType matches every type.
func (r *addonRepository) ListActive(userID, appID, addonType string) ([]models.ResourceAddon, error) {
	q := r.db.Where("user_id = ? AND app_id = ? AND status = ?", userID, appID, models.AddonStatusActive)
	if addonType != "" {
		q = q.Where("addon_type = ?", addonType)
	}
	var addons []models.ResourceAddon
	err := q.Order("purchased_at ASC").Order("id ASC").Find(&addons).Error
	return addons, err
}

// ListBySubscription retrieves all add-ons bought for a subscription
func (r *addonRepository) ListBySubscription(subscriptionID string) ([]models.ResourceAddon, error) {
	var addons []models.ResourceAddon
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("purchased_at DESC").
		Find(&addons).Error
	return addons, err
}

// Consume adds quantity to consumed_quantity unless that would exceed the add-on's quantity
func (r *addonRepository) Consume(id string, quantity int) error {
	res := r.db.Model(&models.ResourceAddon{}).
		Where("id = ? AND status = ? AND consumed_quantity + ? <= quantity", id, models.AddonStatusActive, quantity).
		Update("consumed_quantity", gorm.Expr("consumed_quantity + ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := ensureExists(r.db, &models.ResourceAddon{}, id); err != nil {
		return err
	}
	return ErrInsufficientUnits
}

// ExpireEndedBefore marks active add-ons whose period ended at or before cutoff as expired
func (r *addonRepository) ExpireEndedBefore(subscriptionID string, cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.ResourceAddon{}).
		Where("subscription_id = ? AND status = ? AND billing_period_end <= ?", subscriptionID, models.AddonStatusActive, cutoff).
		Update("status", models.AddonStatusExpired)
	return res.RowsAffected, res.Error
}
