package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ManualRefund is a refund scheduled for manual processing by an operator.
// It references the subscription loosely; there is no foreign key.
type ManualRefund struct {
	ID             string          `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	SubscriptionID string          `gorm:"type:varchar(50);not null;index" json:"subscription_id" validate:"required,max=50"`
	UserID         string          `gorm:"type:varchar(100);not null;index" json:"user_id" validate:"required,max=100"`
	AppID          string          `gorm:"type:varchar(50);not null;default:'marketfit'" json:"app_id" validate:"required,max=50"`
	PaymentID      *string         `gorm:"type:varchar(100)" json:"payment_id,omitempty"`
	RefundAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"refund_amount"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency" validate:"required,len=3"`
	Reason         string          `gorm:"type:text" json:"reason"`
	Status         string          `gorm:"type:varchar(20);not null;default:'scheduled';index;check:chk_manual_refunds_status,status IN ('scheduled','processing','completed','failed')" json:"status" validate:"oneof=scheduled processing completed failed"`
	ScheduledAt    time.Time       `gorm:"not null" json:"scheduled_at"`
	ProcessedAt    *time.Time      `gorm:"default:null" json:"processed_at,omitempty"`
	ProcessedBy    *string         `gorm:"type:varchar(100)" json:"processed_by,omitempty"`
	AdminNotes     *string         `gorm:"type:text" json:"admin_notes,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ManualRefund) TableName() string {
	return "manual_refunds"
}

func (r *ManualRefund) Validate() error {
	v := validator.New()
	if err := v.Struct(r); err != nil {
		return err
	}
	if !r.RefundAmount.IsPositive() {
		return errors.New("refund_amount must be positive")
	}
	return nil
}

// RefundTransitionAllowed reports whether a refund may move from one status to another.
func RefundTransitionAllowed(from, to string) bool {
	switch from {
	case RefundStatusScheduled:
		return to == RefundStatusProcessing || to == RefundStatusCompleted || to == RefundStatusFailed
	case RefundStatusProcessing:
		return to == RefundStatusCompleted || to == RefundStatusFailed
	default:
		return false
	}
}

// RefundSourceStatuses lists the statuses a refund may leave to reach to.
func RefundSourceStatuses(to string) []string {
	var out []string
	for _, from := range []string{RefundStatusScheduled, RefundStatusProcessing, RefundStatusCompleted, RefundStatusFailed} {
		if RefundTransitionAllowed(from, to) {
			out = append(out, from)
		}
	}
	return out
}
