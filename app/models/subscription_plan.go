package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SubscriptionPlan is a billable product tier of one app in one region/currency.
type SubscriptionPlan struct {
	ID              string          `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	Name            string          `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	Description     string          `gorm:"type:text" json:"description"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0;index:idx_subscription_plans_app_amount,priority:2" json:"amount"`
	Currency        string          `gorm:"type:varchar(3);not null;default:'INR'" json:"currency" validate:"required,len=3"`
	Interval        string          `gorm:"column:interval;type:varchar(20);not null;default:'month'" json:"interval" validate:"oneof=month year"`
	IntervalCount   int             `gorm:"not null;default:1;check:chk_subscription_plans_interval_count,interval_count >= 1" json:"interval_count" validate:"min=1"`
	AppID           string          `gorm:"type:varchar(50);not null;default:'marketfit';index:idx_subscription_plans_app_amount,priority:1" json:"app_id" validate:"required,max=50"`
	PlanType        string          `gorm:"type:varchar(20);not null;default:'domestic';check:chk_subscription_plans_plan_type,plan_type IN ('domestic','international')" json:"plan_type" validate:"oneof=domestic international"`
	PaymentGateways StringList      `gorm:"type:json" json:"payment_gateways" validate:"dive,oneof=razorpay paypal"`
	RazorpayPlanID  *string         `gorm:"type:varchar(100);index:idx_subscription_plans_razorpay_plan" json:"razorpay_plan_id,omitempty"`
	PaypalPlanID    *string         `gorm:"type:varchar(100);index:idx_subscription_plans_paypal_plan" json:"paypal_plan_id,omitempty"`
	Features        JSON            `gorm:"type:json" json:"features"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubscriptionPlan) TableName() string {
	return "subscription_plans"
}

// IsPaid reports whether the plan charges anything.
func (p *SubscriptionPlan) IsPaid() bool {
	return p.Amount.IsPositive()
}

// GatewayPlanID returns the plan reference registered with the given gateway.
func (p *SubscriptionPlan) GatewayPlanID(gateway string) string {
	switch gateway {
	case GatewayRazorpay:
		if p.RazorpayPlanID != nil {
			return *p.RazorpayPlanID
		}
	case GatewayPaypal:
		if p.PaypalPlanID != nil {
			return *p.PaypalPlanID
		}
	}
	return ""
}

// SupportsGateway reports whether subscriptions to this plan may be billed via gateway.
// Plans without an explicit gateway list fall back to the region default.
func (p *SubscriptionPlan) SupportsGateway(gateway string) bool {
	if len(p.PaymentGateways) > 0 {
		return p.PaymentGateways.Contains(gateway)
	}
	switch p.PlanType {
	case PlanTypeInternational:
		return gateway == GatewayPaypal
	default:
		return gateway == GatewayRazorpay
	}
}

// FeatureInt reads an integer feature value, falling back to def.
func (p *SubscriptionPlan) FeatureInt(name string, def int) int {
	features, err := p.Features.Map()
	if err != nil {
		return def
	}
	switch v := features[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func (p *SubscriptionPlan) Validate() error {
	v := validator.New()
	if err := v.Struct(p); err != nil {
		return err
	}
	if p.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	if !p.IsPaid() {
		return nil
	}
	switch p.PlanType {
	case PlanTypeDomestic:
		if p.GatewayPlanID(GatewayRazorpay) == "" {
			return errors.New("paid domestic plans require razorpay_plan_id")
		}
	case PlanTypeInternational:
		if p.GatewayPlanID(GatewayPaypal) == "" {
			return errors.New("paid international plans require paypal_plan_id")
		}
	}
	return nil
}

func FindPlanByID(db *gorm.DB, id string) (*SubscriptionPlan, error) {
	var plan SubscriptionPlan
	err := db.Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
