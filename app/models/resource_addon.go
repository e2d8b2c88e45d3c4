package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ResourceAddon is a block of extra resource units bought for the current
// billing period of a subscription.
type ResourceAddon struct {
	ID                 string            `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	SubscriptionID     string            `gorm:"type:varchar(50);not null;index" json:"subscription_id" validate:"required,max=50"`
	Subscription       *UserSubscription `gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-" validate:"-"`
	UserID             string            `gorm:"type:varchar(100);not null;index:idx_resource_addons_user_app_status,priority:1" json:"user_id" validate:"required,max=100"`
	AppID              string            `gorm:"type:varchar(50);not null;index:idx_resource_addons_user_app_status,priority:2" json:"app_id" validate:"required,max=50"`
	AddonType          string            `gorm:"type:varchar(50);not null" json:"addon_type" validate:"required,oneof=document_pages perplexity_requests requests"`
	Quantity           int               `gorm:"not null" json:"quantity" validate:"gt=0"`
	ConsumedQuantity   int               `gorm:"not null;default:0" json:"consumed_quantity" validate:"min=0"`
	AmountPaid         decimal.Decimal   `gorm:"type:decimal(10,2);not null;default:0" json:"amount_paid"`
	Currency           string            `gorm:"type:varchar(3);not null;default:'INR'" json:"currency" validate:"required,len=3"`
	PaymentID          *string           `gorm:"type:varchar(100)" json:"payment_id,omitempty"`
	BillingPeriodStart time.Time         `gorm:"not null" json:"billing_period_start"`
	BillingPeriodEnd   time.Time         `gorm:"not null" json:"billing_period_end"`
	Status             string            `gorm:"type:varchar(20);not null;default:'active';index:idx_resource_addons_user_app_status,priority:3" json:"status" validate:"oneof=active expired"`
	PurchasedAt        time.Time         `gorm:"not null" json:"purchased_at"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ResourceAddon) TableName() string {
	return "resource_addons"
}

// Available returns the number of units not yet consumed.
func (a *ResourceAddon) Available() int {
	if a.ConsumedQuantity >= a.Quantity {
		return 0
	}
	return a.Quantity - a.ConsumedQuantity
}

func (a *ResourceAddon) Validate() error {
	v := validator.New()
	if err := v.Struct(a); err != nil {
		return err
	}
	if a.ConsumedQuantity > a.Quantity {
		return errors.New("consumed_quantity exceeds quantity")
	}
	if a.AmountPaid.IsNegative() {
		return errors.New("amount_paid must not be negative")
	}
	return nil
}
