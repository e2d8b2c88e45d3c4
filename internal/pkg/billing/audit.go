package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
)

// Audit log action types.
const (
	ActionSubscriptionCreated   = "subscription_created"
	ActionSubscriptionActivated = "subscription_activated"
	ActionSubscriptionRenewed   = "subscription_renewed"
	ActionSubscriptionCancelled = "subscription_cancelled"
	ActionStatusChanged         = "status_changed"
	ActionPlanChanged           = "plan_changed"
	ActionInvoiceRecorded       = "invoice_recorded"
	ActionInvoicePaid           = "invoice_paid"
	ActionInvoiceFailed         = "invoice_failed"
	ActionRefundScheduled       = "refund_scheduled"
	ActionRefundUpdated         = "refund_updated"
	ActionOfferApplied          = "offer_applied"
	ActionOfferRemoved          = "offer_removed"
	ActionAddonPurchased        = "addon_purchased"
	ActionQuotaReset            = "quota_reset"
)

const systemActor = "system"

func appendAudit(r *repository.Repositories, subscriptionID, action string, details map[string]interface{}, initiatedBy string) error {
	entry := &models.SubscriptionAuditLog{
		SubscriptionID: subscriptionID,
		ActionType:     action,
		InitiatedBy:    strings.TrimSpace(initiatedBy),
	}
	if entry.InitiatedBy == "" {
		entry.InitiatedBy = systemActor
	}
	if len(details) > 0 {
		d, err := models.NewJSON(details)
		if err != nil {
			return err
		}
		entry.Details = d
	}
	return r.Event.AppendAudit(entry)
}

// LogAction appends an entry to a subscription's audit trail.
func (s *Service) LogAction(ctx context.Context, subscriptionID, action string, details map[string]interface{}, initiatedBy string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	action = strings.TrimSpace(action)
	if subscriptionID == "" || action == "" {
		return errors.New("subscription_id and action_type are required")
	}
	return appendAudit(s.repos(ctx), subscriptionID, action, details, initiatedBy)
}

// AuditLog returns the newest audit entries of a subscription. A limit of
// zero or less uses the repository default.
func (s *Service) AuditLog(ctx context.Context, subscriptionID string, limit int) ([]models.SubscriptionAuditLog, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}
	return s.repos(ctx).Event.ListAudit(subscriptionID, limit)
}

// LogEvent appends a gateway event to the event log. entityID is filed under
// the column of the given provider.
func (s *Service) LogEvent(ctx context.Context, eventType, provider, entityID, userID string, data interface{}) (*models.SubscriptionEventLog, error) {
	eventType = strings.TrimSpace(eventType)
	p := normalizeGateway(provider)
	if eventType == "" {
		return nil, errors.New("event_type is required")
	}

	entry := &models.SubscriptionEventLog{
		EventType: eventType,
		UserID:    models.StringPtr(userID),
	}
	switch p {
	case models.GatewayRazorpay:
		entry.RazorpayEntityID = models.StringPtr(entityID)
	case models.GatewayPaypal:
		entry.PaypalEntityID = models.StringPtr(entityID)
	case "":
	default:
		return nil, ErrGatewayNotSupported
	}
	if data != nil {
		d, err := models.NewJSON(data)
		if err != nil {
			return nil, err
		}
		entry.Data = d
	}
	if err := s.repos(ctx).Event.AppendEvent(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// MarkEventProcessed flags an event log entry as handled.
func (s *Service) MarkEventProcessed(ctx context.Context, id uint) error {
	if id == 0 {
		return errors.New("event id is required")
	}
	return s.repos(ctx).Event.MarkEventProcessed(id)
}

// EntityEvents lists the logged events of a gateway entity, oldest first.
func (s *Service) EntityEvents(ctx context.Context, provider, entityID string) ([]models.SubscriptionEventLog, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return nil, errors.New("entity id is required")
	}
	return s.repos(ctx).Event.ListEventsByEntity(normalizeGateway(provider), entityID)
}
