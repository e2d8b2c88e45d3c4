package models

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// UserSubscription binds a user to a plan of one app, optionally through a
// payment gateway. Free subscriptions carry no gateway.
type UserSubscription struct {
	ID                     string            `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	UserID                 string            `gorm:"type:varchar(100);not null;index:idx_user_subscriptions_user_app_status,priority:1" json:"user_id" validate:"required,max=100"`
	PlanID                 string            `gorm:"type:varchar(50);not null;index" json:"plan_id" validate:"required,max=50"`
	Plan                   *SubscriptionPlan `gorm:"foreignKey:PlanID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"plan,omitempty" validate:"-"`
	AppID                  string            `gorm:"type:varchar(50);not null;default:'marketfit';index:idx_user_subscriptions_user_app_status,priority:2" json:"app_id" validate:"required,max=50"`
	PaymentGateway         *string           `gorm:"type:varchar(20)" json:"payment_gateway,omitempty" validate:"omitempty,oneof=razorpay paypal"`
	RazorpaySubscriptionID *string           `gorm:"type:varchar(100);index:ux_user_subscriptions_razorpay_sub,unique" json:"razorpay_subscription_id,omitempty"`
	PaypalSubscriptionID   *string           `gorm:"type:varchar(100);index:ux_user_subscriptions_paypal_sub,unique" json:"paypal_subscription_id,omitempty"`
	Status                 string            `gorm:"type:varchar(30);not null;default:'created';index:idx_user_subscriptions_user_app_status,priority:3" json:"status" validate:"required,max=30"`
	CurrentPeriodStart     *time.Time        `gorm:"default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time        `gorm:"default:null;index" json:"current_period_end,omitempty"`
	Metadata               JSON              `gorm:"type:json" json:"metadata"`
	CreatedAt              time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserSubscription) TableName() string {
	return "user_subscriptions"
}

// Gateway returns the payment gateway or "" for gateway-less subscriptions.
func (s *UserSubscription) Gateway() string {
	if s.PaymentGateway == nil {
		return ""
	}
	return *s.PaymentGateway
}

// GatewaySubscriptionID returns the subscription reference held by the bound gateway.
func (s *UserSubscription) GatewaySubscriptionID() string {
	switch s.Gateway() {
	case GatewayRazorpay:
		return deref(s.RazorpaySubscriptionID)
	case GatewayPaypal:
		return deref(s.PaypalSubscriptionID)
	}
	return ""
}

// CheckGatewayIDs verifies that exactly the gateway id matching PaymentGateway
// is set, or none at all for gateway-less subscriptions.
func (s *UserSubscription) CheckGatewayIDs() error {
	rz := deref(s.RazorpaySubscriptionID) != ""
	pp := deref(s.PaypalSubscriptionID) != ""
	switch s.Gateway() {
	case "":
		if rz || pp {
			return errors.New("gateway subscription id set without payment_gateway")
		}
	case GatewayRazorpay:
		if !rz || pp {
			return errors.New("razorpay subscriptions require exactly razorpay_subscription_id")
		}
	case GatewayPaypal:
		if !pp || rz {
			return errors.New("paypal subscriptions require exactly paypal_subscription_id")
		}
	}
	return nil
}

// IsBlocking reports whether the subscription is in a state that prevents
// starting another subscription for the same app.
func (s *UserSubscription) IsBlocking() bool {
	status := strings.ToLower(s.Status)
	for _, b := range BlockingSubscriptionStatuses {
		if status == b {
			return true
		}
	}
	return false
}

func (s *UserSubscription) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return err
	}
	if s.CurrentPeriodStart != nil && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(*s.CurrentPeriodStart) {
		return errors.New("current_period_end must not precede current_period_start")
	}
	return s.CheckGatewayIDs()
}

func FindSubscriptionByID(db *gorm.DB, id string) (*UserSubscription, error) {
	var sub UserSubscription
	err := db.Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
