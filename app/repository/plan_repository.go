package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// Create inserts a new plan
func (r *planRepository) Create(plan *models.SubscriptionPlan) error {
	return r.db.Create(plan).Error
}

// Upsert inserts a plan or refreshes the catalogue fields of an existing one
func (r *planRepository) Upsert(plan *models.SubscriptionPlan) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"description",
			"amount",
			"currency",
			"interval",
			"interval_count",
			"app_id",
			"plan_type",
			"payment_gateways",
			"razorpay_plan_id",
			"paypal_plan_id",
			"features",
			"is_active",
			"updated_at",
		}),
	}).Create(plan).Error
}

// GetByID retrieves a plan by its id
func (r *planRepository) GetByID(id string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByIDAndApp retrieves a plan only if it belongs to the app
func (r *planRepository) GetByIDAndApp(id, appID string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("id = ? AND app_id = ?", id, appID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByGatewayPlanID resolves the plan registered under a gateway's plan id
func (r *planRepository) GetByGatewayPlanID(gateway, gatewayPlanID string) (*models.SubscriptionPlan, error) {
	var column string
	switch gateway {
	case models.GatewayRazorpay:
		column = "razorpay_plan_id"
	case models.GatewayPaypal:
		column = "paypal_plan_id"
	default:
		return nil, fmt.Errorf("unknown gateway %q", gateway)
	}
	var plan models.SubscriptionPlan
	err := r.db.Where(column+" = ?", gatewayPlanID).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetFreePlan retrieves the active zero-amount plan of an app
func (r *planRepository) GetFreePlan(appID string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Where("app_id = ? AND amount = ? AND is_active = ?", appID, 0, true).
		Order("id").
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActiveByApp retrieves the active plans of an app, cheapest first
func (r *planRepository) ListActiveByApp(appID string) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.Where("app_id = ? AND is_active = ?", appID, true).
		Order("amount ASC").Order("id ASC").
		Find(&plans).Error
	return plans, err
}

// Deactivate hides a plan from the catalogue without deleting it
func (r *planRepository) Deactivate(id string) error {
	res := r.db.Model(&models.SubscriptionPlan{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ensureExists(r.db, &models.SubscriptionPlan{}, id)
	}
	return nil
}
