package models

const (
	AppMarketFit = "marketfit"
	AppSalesWit  = "saleswit"
)

const (
	GatewayRazorpay = "razorpay"
	GatewayPaypal   = "paypal"
)

const (
	PlanTypeDomestic      = "domestic"
	PlanTypeInternational = "international"
)

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Subscription lifecycle states as reported by the gateways plus the local
// states used for free and cancelled subscriptions.
const (
	SubscriptionStatusCreated       = "created"
	SubscriptionStatusAuthenticated = "authenticated"
	SubscriptionStatusPending       = "pending"
	SubscriptionStatusActive        = "active"
	SubscriptionStatusHalted        = "halted"
	SubscriptionStatusPaymentFailed = "payment_failed"
	SubscriptionStatusSuspended     = "suspended"
	SubscriptionStatusCancelled     = "cancelled"
	SubscriptionStatusCompleted     = "completed"
	SubscriptionStatusExpired       = "expired"
)

const (
	InvoiceStatusCreated = "created"
	InvoiceStatusPaid    = "paid"
	InvoiceStatusFailed  = "failed"
)

const (
	RefundStatusScheduled  = "scheduled"
	RefundStatusProcessing = "processing"
	RefundStatusCompleted  = "completed"
	RefundStatusFailed     = "failed"
)

const (
	OfferStatusApplied = "applied"
	OfferStatusRemoved = "removed"
	OfferStatusExpired = "expired"
)

const (
	AddonStatusActive  = "active"
	AddonStatusExpired = "expired"
)

const (
	ResourceDocumentPages      = "document_pages"
	ResourcePerplexityRequests = "perplexity_requests"
	ResourceRequests           = "requests"
)

// BlockingSubscriptionStatuses are states in which a user already has a
// subscription in flight and must not start another one for the same app.
var BlockingSubscriptionStatuses = []string{
	SubscriptionStatusCreated,
	SubscriptionStatusPending,
	SubscriptionStatusHalted,
	SubscriptionStatusAuthenticated,
	SubscriptionStatusPaymentFailed,
	SubscriptionStatusSuspended,
}

var subscriptionStatuses = map[string]bool{
	SubscriptionStatusCreated:       true,
	SubscriptionStatusAuthenticated: true,
	SubscriptionStatusPending:       true,
	SubscriptionStatusActive:        true,
	SubscriptionStatusHalted:        true,
	SubscriptionStatusPaymentFailed: true,
	SubscriptionStatusSuspended:     true,
	SubscriptionStatusCancelled:     true,
	SubscriptionStatusCompleted:     true,
	SubscriptionStatusExpired:       true,
}

// IsSubscriptionStatus reports whether status is a known lifecycle state.
func IsSubscriptionStatus(status string) bool {
	return subscriptionStatuses[status]
}
