package models

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SubscriptionInvoice records one charge attempt against a subscription.
type SubscriptionInvoice struct {
	ID                string            `gorm:"type:varchar(50);primaryKey" json:"id" validate:"required,max=50"`
	SubscriptionID    string            `gorm:"type:varchar(50);not null;index" json:"subscription_id" validate:"required,max=50"`
	Subscription      *UserSubscription `gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-" validate:"-"`
	UserID            string            `gorm:"type:varchar(100);not null;index:idx_subscription_invoices_user_app,priority:1" json:"user_id" validate:"required,max=100"`
	AppID             string            `gorm:"type:varchar(50);not null;default:'marketfit';index:idx_subscription_invoices_user_app,priority:2" json:"app_id" validate:"required,max=50"`
	RazorpayInvoiceID *string           `gorm:"type:varchar(100);index" json:"razorpay_invoice_id,omitempty"`
	PaypalPaymentID   *string           `gorm:"type:varchar(100);index" json:"paypal_payment_id,omitempty"`
	PaymentID         *string           `gorm:"type:varchar(100)" json:"payment_id,omitempty"`
	Amount            decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency          string            `gorm:"type:varchar(3);not null;default:'INR'" json:"currency" validate:"required,len=3"`
	Status            string            `gorm:"type:varchar(20);not null;default:'created';check:chk_subscription_invoices_status,status IN ('created','paid','failed')" json:"status" validate:"oneof=created paid failed"`
	PaymentMethod     *string           `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	InvoiceDate       time.Time         `gorm:"not null;index" json:"invoice_date"`
	PaidAt            *time.Time        `gorm:"default:null" json:"paid_at,omitempty"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubscriptionInvoice) TableName() string {
	return "subscription_invoices"
}

func (i *SubscriptionInvoice) Validate() error {
	v := validator.New()
	if err := v.Struct(i); err != nil {
		return err
	}
	if i.Amount.IsNegative() {
		return errors.New("amount must not be negative")
	}
	if i.Status == InvoiceStatusPaid && i.PaidAt == nil {
		return errors.New("paid invoices require paid_at")
	}
	return nil
}

// InvoiceTransitionAllowed reports whether an invoice may move from one status to another.
func InvoiceTransitionAllowed(from, to string) bool {
	return from == InvoiceStatusCreated && (to == InvoiceStatusPaid || to == InvoiceStatusFailed)
}
