package models

import "time"

// PaypalWebhookEvent stores PayPal webhook deliveries keyed by PayPal's event id.
type PaypalWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventID         string     `gorm:"type:varchar(191);not null;index:ux_paypal_webhook_events_event_id,unique" json:"event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ResourceType    string     `gorm:"type:varchar(100)" json:"resource_type"`
	ResourceID      string     `gorm:"type:varchar(100);index" json:"resource_id"`
	Payload         JSON       `gorm:"type:json" json:"payload"`
	Processed       bool       `gorm:"not null;default:false" json:"processed"`
	ProcessedAt     *time.Time `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (PaypalWebhookEvent) TableName() string {
	return "paypal_webhook_events"
}

// WebhookEventProcessed marks a gateway event id as handled. The
// (event_id, provider) key is the idempotency gate for webhook deliveries.
type WebhookEventProcessed struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(191);not null;index:ux_webhook_events_processed_event_provider,unique,priority:1" json:"event_id"`
	Provider    string    `gorm:"type:varchar(20);not null;index:ux_webhook_events_processed_event_provider,unique,priority:2" json:"provider"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
}

func (WebhookEventProcessed) TableName() string {
	return "webhook_events_processed"
}
