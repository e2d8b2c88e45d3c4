package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// RazorpayOffer records a discount offer applied to a Razorpay subscription.
type RazorpayOffer struct {
	ID                 string            `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	SubscriptionID     string            `gorm:"type:varchar(50);not null;index" json:"subscription_id" validate:"required,max=50"`
	Subscription       *UserSubscription `gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-" validate:"-"`
	UserID             string            `gorm:"type:varchar(100);not null;index" json:"user_id" validate:"required,max=100"`
	OfferID            string            `gorm:"type:varchar(100);not null;index" json:"offer_id" validate:"required,max=100"`
	DiscountPercentage decimal.Decimal   `gorm:"type:decimal(5,2);not null" json:"discount_percentage"`
	OriginalAmount     decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"original_amount"`
	DiscountedAmount   decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"discounted_amount"`
	Status             string            `gorm:"type:varchar(20);not null;default:'applied'" json:"status" validate:"oneof=applied removed expired"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RazorpayOffer) TableName() string {
	return "razorpay_offers"
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies pct percent off amount, rounded to two places.
func DiscountedPrice(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Sub(amount.Mul(pct).Div(hundred)).Round(2)
}

func (o *RazorpayOffer) Validate() error {
	v := validator.New()
	if err := v.Struct(o); err != nil {
		return err
	}
	if !o.DiscountPercentage.IsPositive() || o.DiscountPercentage.GreaterThan(hundred) {
		return errors.New("discount_percentage must be in (0, 100]")
	}
	if o.DiscountedAmount.GreaterThan(o.OriginalAmount) || o.DiscountedAmount.IsNegative() {
		return errors.New("discounted_amount must be between 0 and original_amount")
	}
	return nil
}
