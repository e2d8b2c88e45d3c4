package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create inserts a subscription; the plan foreign key is enforced by the database
func (r *subscriptionRepository) Create(sub *models.UserSubscription) error {
	return r.db.Omit(clause.Associations).Create(sub).Error
}

// GetByID retrieves a subscription by its id
func (r *subscriptionRepository) GetByID(id string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByIDForUser retrieves a subscription only if it is owned by the user
func (r *subscriptionRepository) GetByIDForUser(id, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByGatewayID resolves a subscription from the gateway's subscription id
func (r *subscriptionRepository) GetByGatewayID(gateway, gatewaySubscriptionID string) (*models.UserSubscription, error) {
	column, err := gatewayIDColumn(gateway)
	if err != nil {
		return nil, err
	}
	var sub models.UserSubscription
	err = r.db.Where(column+" = ?", gatewaySubscriptionID).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetLatestByStatus retrieves the newest subscription of a user and app in one of the statuses
func (r *subscriptionRepository) GetLatestByStatus(userID, appID string, statuses ...string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.Where("user_id = ? AND app_id = ? AND status IN ?", userID, appID, statuses).
		Order("created_at DESC").Order("id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByUser retrieves all subscriptions of a user for an app, newest first
func (r *subscriptionRepository) ListByUser(userID, appID string) ([]models.UserSubscription, error) {
	var subs []models.UserSubscription
	err := r.db.Where("user_id = ? AND app_id = ?", userID, appID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

// UpdateStatus sets the lifecycle status of a subscription
func (r *subscriptionRepository) UpdateStatus(id, status string) error {
	return r.updateColumns(id, map[string]interface{}{"status": status})
}

// UpdatePeriod moves the current billing period of a subscription
func (r *subscriptionRepository) UpdatePeriod(id string, start, end time.Time) error {
	return r.updateColumns(id, map[string]interface{}{
		"current_period_start": start,
		"current_period_end":   end,
	})
}

// ChangePlan points a subscription at another plan
func (r *subscriptionRepository) ChangePlan(id, planID string) error {
	return r.updateColumns(id, map[string]interface{}{"plan_id": planID})
}

// Save writes all columns of a subscription
func (r *subscriptionRepository) Save(sub *models.UserSubscription) error {
	return r.db.Omit(clause.Associations).Save(sub).Error
}

func (r *subscriptionRepository) updateColumns(id string, updates map[string]interface{}) error {
	res := r.db.Model(&models.UserSubscription{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports unchanged rows as unaffected.
		return ensureExists(r.db, &models.UserSubscription{}, id)
	}
	return nil
}

func gatewayIDColumn(gateway string) (string, error) {
	switch gateway {
	case models.GatewayRazorpay:
		return "razorpay_subscription_id", nil
	case models.GatewayPaypal:
		return "paypal_subscription_id", nil
	}
	return "", fmt.Errorf("unknown gateway %q", gateway)
}
