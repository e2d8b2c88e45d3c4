package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// offerRepository implements the OfferRepository interface
type offerRepository struct {
	db *gorm.DB
}

// NewOfferRepository creates a new offer repository instance
func NewOfferRepository(db *gorm.DB) OfferRepository {
	return &offerRepository{db: db}
}

// Create inserts a new offer
func (r *offerRepository) Create(offer *models.RazorpayOffer) error {
	return r.db.Omit(clause.Associations).Create(offer).Error
}

// ListBySubscription retrieves the offers applied to a subscription
func (r *offerRepository) ListBySubscription(subscriptionID string) ([]models.RazorpayOffer, error) {
	var offers []models.RazorpayOffer
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&offers).Error
	return offers, err
}

// UpdateStatus sets the status of an offer
func (r *offerRepository) UpdateStatus(id, status string) error {
	res := r.db.Model(&models.RazorpayOffer{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ensureExists(r.db, &models.RazorpayOffer{}, id)
	}
	return nil
}
