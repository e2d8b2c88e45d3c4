package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
)

const defaultAuditLimit = 50

// eventRepository implements the EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// AppendAudit appends an audit log entry
func (r *eventRepository) AppendAudit(entry *models.SubscriptionAuditLog) error {
	return r.db.Create(entry).Error
}

// ListAudit retrieves the newest audit entries of a subscription
func (r *eventRepository) ListAudit(subscriptionID string, limit int) ([]models.SubscriptionAuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	var entries []models.SubscriptionAuditLog
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// AppendEvent appends a gateway event log entry
func (r *eventRepository) AppendEvent(entry *models.SubscriptionEventLog) error {
	return r.db.Create(entry).Error
}

// MarkEventProcessed flags an event log entry as handled
func (r *eventRepository) MarkEventProcessed(id uint) error {
	res := r.db.Model(&models.SubscriptionEventLog{}).Where("id = ?", id).Update("processed", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ensureExists(r.db, &models.SubscriptionEventLog{}, id)
	}
	return nil
}

// ListEventsByEntity retrieves the events logged for a gateway entity, oldest first
func (r *eventRepository) ListEventsByEntity(gateway, entityID string) ([]models.SubscriptionEventLog, error) {
	var column string
	switch gateway {
	case models.GatewayRazorpay:
		column = "razorpay_entity_id"
	case models.GatewayPaypal:
		column = "paypal_entity_id"
	default:
		return nil, fmt.Errorf("unknown gateway %q", gateway)
	}
	var entries []models.SubscriptionEventLog
	err := r.db.Where(column+" = ?", entityID).
		Order("created_at ASC").Order("id ASC").
		Find(&entries).Error
	return entries, err
}
