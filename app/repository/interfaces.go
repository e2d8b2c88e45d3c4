package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// PlanRepository defines the interface for plan catalogue operations
type PlanRepository interface {
	Create(plan *models.SubscriptionPlan) error
	Upsert(plan *models.SubscriptionPlan) error
	GetByID(id string) (*models.SubscriptionPlan, error)
	GetByIDAndApp(id, appID string) (*models.SubscriptionPlan, error)
	GetByGatewayPlanID(gateway, gatewayPlanID string) (*models.SubscriptionPlan, error)
	GetFreePlan(appID string) (*models.SubscriptionPlan, error)
	ListActiveByApp(appID string) ([]models.SubscriptionPlan, error)
	Deactivate(id string) error
}

// SubscriptionRepository defines the interface for subscription ledger operations
type SubscriptionRepository interface {
	Create(sub *models.UserSubscription) error
	GetByID(id string) (*models.UserSubscription, error)
	GetByIDForUser(id, userID string) (*models.UserSubscription, error)
	GetByGatewayID(gateway, gatewaySubscriptionID string) (*models.UserSubscription, error)
	GetLatestByStatus(userID, appID string, statuses ...string) (*models.UserSubscription, error)
	ListByUser(userID, appID string) ([]models.UserSubscription, error)
	UpdateStatus(id, status string) error
	UpdatePeriod(id string, start, end time.Time) error
	ChangePlan(id, planID string) error
	Save(sub *models.UserSubscription) error
}

// InvoiceRepository defines the interface for invoice operations
type InvoiceRepository interface {
	Create(invoice *models.SubscriptionInvoice) error
	GetByID(id string) (*models.SubscriptionInvoice, error)
	ListByUserAndApp(userID, appID string) ([]models.SubscriptionInvoice, error)
	ListBySubscription(subscriptionID string) ([]models.SubscriptionInvoice, error)
	TransitionStatus(id string, from []string, updates map[string]interface{}) error
}

// RefundRepository defines the interface for manual refund operations
type RefundRepository interface {
	Create(refund *models.ManualRefund) error
	GetByID(id string) (*models.ManualRefund, error)
	ListByStatus(status string) ([]models.ManualRefund, error)
	ListBySubscription(subscriptionID string) ([]models.ManualRefund, error)
	TransitionStatus(id string, from []string, updates map[string]interface{}) error
}

// OfferRepository defines the interface for Razorpay offer operations
type OfferRepository interface {
	Create(offer *models.RazorpayOffer) error
	ListBySubscription(subscriptionID string) ([]models.RazorpayOffer, error)
	UpdateStatus(id, status string) error
}

// UsageRepository defines the interface for quota and usage counter operations
type UsageRepository interface {
	CreateQuota(usage *models.ResourceUsage) error
	GetLatestQuota(userID, subscriptionID, appID string) (*models.ResourceUsage, error)
	ResetQuota(id uint, start, end time.Time, grant QuotaValues) error
	AddToQuota(id uint, resource string, quantity int, addon bool) error
	DecrementQuota(id uint, resource string, quantity int) error
	IncrementUsage(usage *models.SubscriptionUsage, resource string, quantity int, addon bool) error
	GetUsage(userID, appID string, periodStart, periodEnd time.Time) (*models.SubscriptionUsage, error)
}

// AddonRepository defines the interface for resource add-on operations
type AddonRepository interface {
	Create(addon *models.ResourceAddon) error
	GetByID(id string) (*models.ResourceAddon, error)
	ListActive(userID, appID, addonType string) ([]models.ResourceAddon, error)
	ListBySubscription(subscriptionID string) ([]models.ResourceAddon, error)
	Consume(id string, quantity int) error
	ExpireEndedBefore(subscriptionID string, cutoff time.Time) (int64, error)
}

// EventRepository defines the interface for the append-only audit and event logs
type EventRepository interface {
	AppendAudit(entry *models.SubscriptionAuditLog) error
	ListAudit(subscriptionID string, limit int) ([]models.SubscriptionAuditLog, error)
	AppendEvent(entry *models.SubscriptionEventLog) error
	MarkEventProcessed(id uint) error
	ListEventsByEntity(gateway, entityID string) ([]models.SubscriptionEventLog, error)
}

// WebhookRepository defines the interface for webhook idempotency records
type WebhookRepository interface {
	MarkProcessedIfNotExists(eventID, provider string, at time.Time) (bool, error)
	IsProcessed(eventID, provider string) (bool, error)
	Unmark(eventID, provider string) error
	RecordPaypalEventIfNotExists(event *models.PaypalWebhookEvent) (bool, *models.PaypalWebhookEvent, error)
	MarkPaypalEventProcessed(eventID, processingError string, at time.Time) error
}

// TokenRepository defines the interface for cached gateway access tokens
type TokenRepository interface {
	Save(token *models.PaypalAccessToken) error
	GetLatestUsable(environment string, now time.Time) (*models.PaypalAccessToken, error)
	DeleteExpired(now time.Time) (int64, error)
}

// QuotaValues is the per-period grant written to a resource_usage row.
type QuotaValues struct {
	DocumentPages      int
	PerplexityRequests int
	Requests           int
}

// Repositories struct holds all repository instances
type Repositories struct {
	Plan         PlanRepository
	Subscription SubscriptionRepository
	Invoice      InvoiceRepository
	Refund       RefundRepository
	Offer        OfferRepository
	Usage        UsageRepository
	Addon        AddonRepository
	Event        EventRepository
	Webhook      WebhookRepository
	Token        TokenRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Plan:         NewPlanRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Invoice:      NewInvoiceRepository(db),
		Refund:       NewRefundRepository(db),
		Offer:        NewOfferRepository(db),
		Usage:        NewUsageRepository(db),
		Addon:        NewAddonRepository(db),
		Event:        NewEventRepository(db),
		Webhook:      NewWebhookRepository(db),
		Token:        NewTokenRepository(db),
	}
}
