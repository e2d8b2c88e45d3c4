package billing

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanInactive         = errors.New("plan is not active")
	ErrGatewayNotSupported  = errors.New("payment gateway not supported by plan")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionInFlight = errors.New("a subscription for this app is already in progress")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrRefundNotFound       = errors.New("refund not found")
	ErrOfferNotFound        = errors.New("offer not found")
	ErrAddonNotFound        = errors.New("add-on not found")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrInvalidAddonType     = errors.New("add-on type not available for app")
	ErrQuotaNotFound        = errors.New("no quota record for subscription")
	ErrQuotaExhausted       = errors.New("not enough add-on units left")
	ErrUnknownResource      = errors.New("resource type not metered for app")
	ErrTokenNotCached       = errors.New("no usable access token cached")
)
