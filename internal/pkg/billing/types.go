package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// CreateSubscriptionInput describes a new subscription. Gateway is empty for
// free plans; GatewaySubscriptionID is the reference held by that gateway.
type CreateSubscriptionInput struct {
	UserID                string
	AppID                 string
	PlanID                string
	Gateway               string
	GatewaySubscriptionID string
	Status                string
	Metadata              map[string]interface{}
	InitiatedBy           string
}

// RenewalInput describes a successful renewal charge.
type RenewalInput struct {
	SubscriptionID    string
	PeriodStart       time.Time
	RazorpayInvoiceID string
	PaypalPaymentID   string
	PaymentID         string
	PaymentMethod     string
}

// InvoiceInput describes a charge attempt to record.
type InvoiceInput struct {
	SubscriptionID    string
	RazorpayInvoiceID string
	PaypalPaymentID   string
	PaymentID         string
	PaymentMethod     string
	Amount            decimal.Decimal
	Currency          string
	Status            string
	InvoiceDate       time.Time
}

// PaymentDetails carries the gateway references of a settled charge.
type PaymentDetails struct {
	PaymentID     string
	PaymentMethod string
}

// RefundInput describes a refund to schedule for manual processing.
type RefundInput struct {
	SubscriptionID string
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	Reason         string
	ScheduledAt    time.Time
}

// RefundUpdate is the result an operator records on a refund.
type RefundUpdate struct {
	Status      string
	ProcessedBy string
	AdminNotes  string
}

// OfferInput describes a Razorpay discount offer applied to a subscription.
type OfferInput struct {
	SubscriptionID     string
	OfferID            string
	DiscountPercentage decimal.Decimal
	OriginalAmount     decimal.Decimal
}

// AddonInput describes a purchase of extra resource units.
type AddonInput struct {
	UserID         string
	SubscriptionID string
	AppID          string
	AddonType      string
	Quantity       int
	AmountPaid     decimal.Decimal
	Currency       string
	PaymentID      string
}

// QuotaStatus is the remaining quota of a subscription's current period.
type QuotaStatus struct {
	Usage    *models.ResourceUsage
	Resource map[string]int
}

// ConsumeResult reports how a consumption was split between the plan grant
// and add-on units. Overflow counts units requested beyond what was left.
type ConsumeResult struct {
	FromBase  int
	FromAddon int
	Overflow  int
	Remaining int
}

// WebhookDelivery is one inbound webhook as received from a gateway.
type WebhookDelivery struct {
	Provider     string
	EventID      string
	EventType    string
	ResourceType string
	ResourceID   string
	Payload      []byte
}
