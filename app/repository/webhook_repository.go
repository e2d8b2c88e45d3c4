package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// webhookRepository implements the WebhookRepository interface
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// MarkProcessedIfNotExists records (eventID, provider) and reports whether this call created the record
func (r *webhookRepository) MarkProcessedIfNotExists(eventID, provider string, at time.Time) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_id"},
			{Name: "provider"},
		},
		DoNothing: true,
	}).Create(&models.WebhookEventProcessed{
		EventID:     eventID,
		Provider:    provider,
		ProcessedAt: at,
	})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// IsProcessed reports whether (eventID, provider) was recorded
func (r *webhookRepository) IsProcessed(eventID, provider string) (bool, error) {
	var n int64
	err := r.db.Model(&models.WebhookEventProcessed{}).
		Where("event_id = ? AND provider = ?", eventID, provider).
		Count(&n).Error
	return n > 0, err
}

// Unmark removes the (eventID, provider) record so that a redelivery is processed again
func (r *webhookRepository) Unmark(eventID, provider string) error {
	return r.db.Where("event_id = ? AND provider = ?", eventID, provider).
		Delete(&models.WebhookEventProcessed{}).Error
}

// RecordPaypalEventIfNotExists stores a PayPal delivery once per event id and returns the stored row
func (r *webhookRepository) RecordPaypalEventIfNotExists(event *models.PaypalWebhookEvent) (bool, *models.PaypalWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaypalWebhookEvent
	if err := r.db.Where("event_id = ?", event.EventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkPaypalEventProcessed flags a stored PayPal delivery as handled, keeping an optional error
func (r *webhookRepository) MarkPaypalEventProcessed(eventID, processingError string, at time.Time) error {
	res := r.db.Model(&models.PaypalWebhookEvent{}).Where("event_id = ?", eventID).Updates(map[string]interface{}{
		"processed":        processingError == "",
		"processed_at":     at,
		"processing_error": processingError,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
