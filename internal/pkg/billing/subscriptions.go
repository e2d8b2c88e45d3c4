package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
	"github.com/ManuelReschke/BillingStore/internal/pkg/catalog"
	"github.com/ManuelReschke/BillingStore/internal/pkg/entitlements"
)

// terminalStatuses end a subscription for good.
var terminalStatuses = map[string]bool{
	models.SubscriptionStatusCancelled: true,
	models.SubscriptionStatusCompleted: true,
	models.SubscriptionStatusExpired:   true,
}

// CreateSubscription records a new subscription after checking that the plan
// exists for the app, is active and can be billed through the gateway, and
// that the user has no other subscription in flight for the app.
func (s *Service) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*models.UserSubscription, error) {
	userID := strings.TrimSpace(in.UserID)
	app := entitlements.NormalizeApp(in.AppID)
	planID := strings.TrimSpace(in.PlanID)
	if userID == "" || app == "" || planID == "" {
		return nil, errors.New("user_id, app_id and plan_id are required")
	}
	gateway := normalizeGateway(in.Gateway)
	gatewayRef := strings.TrimSpace(in.GatewaySubscriptionID)
	if gateway != "" && gatewayRef == "" {
		return nil, errors.New("gateway_subscription_id is required when a gateway is set")
	}
	status := normalizeStatus(in.Status)
	if status == "" {
		status = models.SubscriptionStatusCreated
	}

	var sub *models.UserSubscription
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		plan, err := loadPlanForApp(r.Plan, planID, app)
		if err != nil {
			return err
		}
		if gateway == "" && plan.IsPaid() {
			return fmt.Errorf("%w: paid plans need a payment gateway", ErrGatewayNotSupported)
		}
		if gateway != "" && !PlanAvailableOn(plan, gateway) {
			return ErrGatewayNotSupported
		}

		_, err = r.Subscription.GetLatestByStatus(userID, app, models.BlockingSubscriptionStatuses...)
		if err == nil {
			return ErrSubscriptionInFlight
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		sub, err = s.insertSubscription(r, userID, app, plan.ID, gateway, gatewayRef, status, in.Metadata)
		if err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionSubscriptionCreated, map[string]interface{}{
			"plan_id": plan.ID,
			"gateway": gateway,
			"status":  status,
		}, in.InitiatedBy)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Created subscription %s for user %s on plan %s", sub.ID, userID, sub.PlanID)
	return sub, nil
}

func (s *Service) insertSubscription(r *repository.Repositories, userID, app, planID, gateway, gatewayRef, status string, metadata map[string]interface{}) (*models.UserSubscription, error) {
	sub := &models.UserSubscription{
		ID:             newID(prefixSubscription),
		UserID:         userID,
		PlanID:         planID,
		AppID:          app,
		PaymentGateway: models.StringPtr(gateway),
		Status:         status,
	}
	switch gateway {
	case models.GatewayRazorpay:
		sub.RazorpaySubscriptionID = models.StringPtr(gatewayRef)
	case models.GatewayPaypal:
		sub.PaypalSubscriptionID = models.StringPtr(gatewayRef)
	}
	if len(metadata) > 0 {
		meta, err := models.NewJSON(metadata)
		if err != nil {
			return nil, err
		}
		sub.Metadata = meta
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := r.Subscription.Create(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// EnsureFreeSubscription returns the user's active subscription for an app,
// else the one in flight, else creates an active subscription on the app's
// free plan with its first quota period.
func (s *Service) EnsureFreeSubscription(ctx context.Context, userID, appID string) (*models.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	app := entitlements.NormalizeApp(appID)
	if userID == "" || app == "" {
		return nil, errors.New("user_id and app_id are required")
	}

	var sub *models.UserSubscription
	created := false
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		existing, err := r.Subscription.GetLatestByStatus(userID, app, models.SubscriptionStatusActive)
		if err == nil {
			sub = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		existing, err = r.Subscription.GetLatestByStatus(userID, app, models.BlockingSubscriptionStatuses...)
		if err == nil {
			sub = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		plan, err := loadPlanForApp(r.Plan, catalog.FreePlanID(app), app)
		if err != nil {
			return err
		}
		sub, err = s.insertSubscription(r, userID, app, plan.ID, "", "", models.SubscriptionStatusActive, nil)
		if err != nil {
			return err
		}
		start := s.now()
		end := PeriodEnd(start, plan.Interval, plan.IntervalCount)
		if err := r.Subscription.UpdatePeriod(sub.ID, start, end); err != nil {
			return err
		}
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end
		if _, err := initQuota(r, sub, plan, start, end); err != nil {
			return err
		}
		created = true
		return appendAudit(r, sub.ID, ActionSubscriptionCreated, map[string]interface{}{
			"plan_id": plan.ID,
			"status":  sub.Status,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	if created {
		log.Infof("[Billing] Created free subscription %s for user %s (%s)", sub.ID, userID, app)
	}
	return sub, nil
}

// ActivateSubscription marks a subscription active, starts its first period
// at start and grants the plan's quota for it.
func (s *Service) ActivateSubscription(ctx context.Context, subscriptionID string, start time.Time) (*models.UserSubscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}
	if start.IsZero() {
		start = s.now()
	}
	start = start.UTC()

	var sub *models.UserSubscription
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		sub, err = r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if terminalStatuses[sub.Status] {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, models.SubscriptionStatusActive)
		}
		plan, err := r.Plan.GetByID(sub.PlanID)
		if err != nil {
			return notFound(err, ErrPlanNotFound)
		}

		end := PeriodEnd(start, plan.Interval, plan.IntervalCount)
		if err := r.Subscription.UpdatePeriod(sub.ID, start, end); err != nil {
			return err
		}
		if err := r.Subscription.UpdateStatus(sub.ID, models.SubscriptionStatusActive); err != nil {
			return err
		}
		from := sub.Status
		sub.Status = models.SubscriptionStatusActive
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end

		if _, err := resetQuota(r, sub, plan, start, end); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionSubscriptionActivated, map[string]interface{}{
			"from":         from,
			"period_start": start,
			"period_end":   end,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// RenewSubscription moves a subscription into its next period. The period
// change, the paid invoice, the quota reset and the expiry of add-ons bought
// for the previous period happen in one transaction.
func (s *Service) RenewSubscription(ctx context.Context, in RenewalInput) (*models.UserSubscription, *models.SubscriptionInvoice, error) {
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	if subscriptionID == "" {
		return nil, nil, errors.New("subscription_id is required")
	}

	var (
		sub     *models.UserSubscription
		invoice *models.SubscriptionInvoice
	)
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		sub, err = r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if terminalStatuses[sub.Status] {
			return fmt.Errorf("%w: cannot renew %s subscription", ErrInvalidTransition, sub.Status)
		}
		plan, err := r.Plan.GetByID(sub.PlanID)
		if err != nil {
			return notFound(err, ErrPlanNotFound)
		}

		start := in.PeriodStart.UTC()
		if in.PeriodStart.IsZero() {
			start = s.now()
			if sub.CurrentPeriodEnd != nil {
				start = sub.CurrentPeriodEnd.UTC()
			}
		}
		end := PeriodEnd(start, plan.Interval, plan.IntervalCount)

		if err := r.Subscription.UpdatePeriod(sub.ID, start, end); err != nil {
			return err
		}
		if sub.Status != models.SubscriptionStatusActive {
			if err := r.Subscription.UpdateStatus(sub.ID, models.SubscriptionStatusActive); err != nil {
				return err
			}
			sub.Status = models.SubscriptionStatusActive
		}
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end

		paidAt := s.now()
		invoice = &models.SubscriptionInvoice{
			ID:                newID(prefixInvoice),
			SubscriptionID:    sub.ID,
			UserID:            sub.UserID,
			AppID:             sub.AppID,
			RazorpayInvoiceID: models.StringPtr(in.RazorpayInvoiceID),
			PaypalPaymentID:   models.StringPtr(in.PaypalPaymentID),
			PaymentID:         models.StringPtr(in.PaymentID),
			PaymentMethod:     models.StringPtr(in.PaymentMethod),
			Amount:            plan.Amount,
			Currency:          plan.Currency,
			Status:            models.InvoiceStatusPaid,
			InvoiceDate:       start,
			PaidAt:            &paidAt,
		}
		if err := invoice.Validate(); err != nil {
			return err
		}
		if err := r.Invoice.Create(invoice); err != nil {
			return err
		}

		if _, err := resetQuota(r, sub, plan, start, end); err != nil {
			return err
		}
		expired, err := r.Addon.ExpireEndedBefore(sub.ID, start)
		if err != nil {
			return err
		}

		return appendAudit(r, sub.ID, ActionSubscriptionRenewed, map[string]interface{}{
			"period_start":   start,
			"period_end":     end,
			"invoice_id":     invoice.ID,
			"expired_addons": expired,
		}, "")
	})
	if err != nil {
		return nil, nil, err
	}
	log.Infof("[Billing] Renewed subscription %s until %s", sub.ID, sub.CurrentPeriodEnd.Format(time.RFC3339))
	return sub, invoice, nil
}

// UpdateStatusByGatewayID applies a status reported by a gateway to the
// subscription it references. Repeating the current status is a no-op.
func (s *Service) UpdateStatusByGatewayID(ctx context.Context, gateway, gatewaySubscriptionID, status string) (*models.UserSubscription, error) {
	g := normalizeGateway(gateway)
	ref := strings.TrimSpace(gatewaySubscriptionID)
	st := normalizeStatus(status)
	if g == "" || ref == "" || st == "" {
		return nil, errors.New("gateway, gateway_subscription_id and status are required")
	}
	if !isKnownGateway(g) {
		return nil, ErrGatewayNotSupported
	}
	if !models.IsSubscriptionStatus(st) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, st)
	}

	var sub *models.UserSubscription
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		sub, err = r.Subscription.GetByGatewayID(g, ref)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status == st {
			return nil
		}
		from := sub.Status
		if err := r.Subscription.UpdateStatus(sub.ID, st); err != nil {
			return err
		}
		sub.Status = st
		return appendAudit(r, sub.ID, ActionStatusChanged, map[string]interface{}{
			"from": from,
			"to":   st,
		}, g)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelSubscription cancels a subscription owned by userID. Cancelling a
// cancelled subscription succeeds without changes.
func (s *Service) CancelSubscription(ctx context.Context, userID, subscriptionID, reason string) (*models.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	if userID == "" || subscriptionID == "" {
		return nil, errors.New("user_id and subscription_id are required")
	}

	var sub *models.UserSubscription
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		sub, err = r.Subscription.GetByIDForUser(subscriptionID, userID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if sub.Status == models.SubscriptionStatusCancelled {
			return nil
		}
		if terminalStatuses[sub.Status] {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, models.SubscriptionStatusCancelled)
		}

		now := s.now()
		meta, err := sub.Metadata.MergePatch(map[string]interface{}{
			"cancelled":     true,
			"cancelled_at":  now.Format(time.RFC3339),
			"cancel_reason": strings.TrimSpace(reason),
		})
		if err != nil {
			return err
		}
		from := sub.Status
		sub.Metadata = meta
		sub.Status = models.SubscriptionStatusCancelled
		if err := r.Subscription.Save(sub); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionSubscriptionCancelled, map[string]interface{}{
			"from":   from,
			"reason": strings.TrimSpace(reason),
		}, userID)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Cancelled subscription %s for user %s", sub.ID, userID)
	return sub, nil
}

// ChangePlan moves a subscription to another active plan of the same app
// that is billable through the subscription's gateway.
func (s *Service) ChangePlan(ctx context.Context, userID, subscriptionID, planID string) (*models.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	planID = strings.TrimSpace(planID)
	if userID == "" || subscriptionID == "" || planID == "" {
		return nil, errors.New("user_id, subscription_id and plan_id are required")
	}

	var sub *models.UserSubscription
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		sub, err = r.Subscription.GetByIDForUser(subscriptionID, userID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if terminalStatuses[sub.Status] {
			return fmt.Errorf("%w: cannot change plan of %s subscription", ErrInvalidTransition, sub.Status)
		}
		plan, err := loadPlanForApp(r.Plan, planID, sub.AppID)
		if err != nil {
			return err
		}
		if g := sub.Gateway(); g != "" && !PlanAvailableOn(plan, g) {
			return ErrGatewayNotSupported
		}
		if sub.Gateway() == "" && plan.IsPaid() {
			return fmt.Errorf("%w: paid plans need a payment gateway", ErrGatewayNotSupported)
		}
		if plan.ID == sub.PlanID {
			return nil
		}
		from := sub.PlanID
		if err := r.Subscription.ChangePlan(sub.ID, plan.ID); err != nil {
			return err
		}
		sub.PlanID = plan.ID
		return appendAudit(r, sub.ID, ActionPlanChanged, map[string]interface{}{
			"from": from,
			"to":   plan.ID,
		}, userID)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Subscriptions lists a user's subscriptions for an app, newest first.
func (s *Service) Subscriptions(ctx context.Context, userID, appID string) ([]models.UserSubscription, error) {
	userID = strings.TrimSpace(userID)
	app := entitlements.NormalizeApp(appID)
	if userID == "" || app == "" {
		return nil, errors.New("user_id and app_id are required")
	}
	return s.repos(ctx).Subscription.ListByUser(userID, app)
}
