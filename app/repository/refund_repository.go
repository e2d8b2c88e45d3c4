package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// refundRepository implements the RefundRepository interface
type refundRepository struct {
	db *gorm.DB
}

// NewRefundRepository creates a new refund repository instance
func NewRefundRepository(db *gorm.DB) RefundRepository {
	return &refundRepository{db: db}
}

// Create inserts a new refund
func (r *refundRepository) Create(refund *models.ManualRefund) error {
	return r.db.Create(refund).Error
}

// GetByID retrieves a refund by its id
func (r *refundRepository) GetByID(id string) (*models.ManualRefund, error) {
	var refund models.ManualRefund
	err := r.db.Where("id = ?", id).First(&refund).Error
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// ListByStatus retrieves refunds in a status, oldest schedule first
func (r *refundRepository) ListByStatus(status string) ([]models.ManualRefund, error) {
	var refunds []models.ManualRefund
	err := r.db.Where("status = ?", status).
		Order("scheduled_at ASC").
		Find(&refunds).Error
	return refunds, err
}

// ListBySubscription retrieves the refunds of a subscription
func (r *refundRepository) ListBySubscription(subscriptionID string) ([]models.ManualRefund, error) {
	var refunds []models.ManualRefund
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("scheduled_at DESC").
		Find(&refunds).Error
	return refunds, err
}

// TransitionStatus applies updates only while the refund is in one of the from statuses
func (r *refundRepository) TransitionStatus(id string, from []string, updates map[string]interface{}) error {
	return transition(r.db, &models.ManualRefund{}, id, from, updates)
}
