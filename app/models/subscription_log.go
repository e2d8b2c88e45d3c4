package models

import "time"

// SubscriptionEventLog is an append-only record of gateway events as received.
type SubscriptionEventLog struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	EventType        string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	RazorpayEntityID *string   `gorm:"type:varchar(100);index" json:"razorpay_entity_id,omitempty"`
	PaypalEntityID   *string   `gorm:"type:varchar(100);index" json:"paypal_entity_id,omitempty"`
	UserID           *string   `gorm:"type:varchar(100);index" json:"user_id,omitempty"`
	Data             JSON      `gorm:"type:json" json:"data"`
	Processed        bool      `gorm:"not null;default:false" json:"processed"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SubscriptionEventLog) TableName() string {
	return "subscription_events_log"
}

// SubscriptionAuditLog is an append-only record of actions taken on a
// subscription. subscription_id is not a foreign key so that entries outlive
// the rows they describe.
type SubscriptionAuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID string    `gorm:"type:varchar(50);not null;index" json:"subscription_id"`
	ActionType     string    `gorm:"type:varchar(50);not null;index" json:"action_type"`
	Details        JSON      `gorm:"type:json" json:"details"`
	InitiatedBy    string    `gorm:"type:varchar(100);not null;default:'system'" json:"initiated_by"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (SubscriptionAuditLog) TableName() string {
	return "subscription_audit_log"
}
