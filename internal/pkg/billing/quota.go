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
	"github.com/ManuelReschke/BillingStore/internal/pkg/entitlements"
)

func grantFor(sub *models.UserSubscription, plan *models.SubscriptionPlan) repository.QuotaValues {
	q := entitlements.QuotaForPlan(sub.AppID, plan)
	return repository.QuotaValues{
		DocumentPages:      q.DocumentPages,
		PerplexityRequests: q.PerplexityRequests,
		Requests:           q.Requests,
	}
}

func initQuota(r *repository.Repositories, sub *models.UserSubscription, plan *models.SubscriptionPlan, start, end time.Time) (*models.ResourceUsage, error) {
	g := grantFor(sub, plan)
	usage := &models.ResourceUsage{
		UserID:                          sub.UserID,
		SubscriptionID:                  sub.ID,
		AppID:                           sub.AppID,
		BillingPeriodStart:              start,
		BillingPeriodEnd:                end,
		DocumentPagesQuota:              g.DocumentPages,
		PerplexityRequestsQuota:         g.PerplexityRequests,
		RequestsQuota:                   g.Requests,
		OriginalDocumentPagesQuota:      g.DocumentPages,
		OriginalPerplexityRequestsQuota: g.PerplexityRequests,
		OriginalRequestsQuota:           g.Requests,
	}
	if err := usage.Validate(); err != nil {
		return nil, err
	}
	if err := r.Usage.CreateQuota(usage); err != nil {
		return nil, err
	}
	return usage, nil
}

// resetQuota rewrites the newest quota row for the new period, or creates
// one if the subscription never had a quota.
func resetQuota(r *repository.Repositories, sub *models.UserSubscription, plan *models.SubscriptionPlan, start, end time.Time) (*models.ResourceUsage, error) {
	usage, err := r.Usage.GetLatestQuota(sub.UserID, sub.ID, sub.AppID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return initQuota(r, sub, plan, start, end)
	}
	if err != nil {
		return nil, err
	}
	if err := r.Usage.ResetQuota(usage.ID, start, end, grantFor(sub, plan)); err != nil {
		return nil, err
	}
	return r.Usage.GetLatestQuota(sub.UserID, sub.ID, sub.AppID)
}

// currentPeriod returns the subscription's period, or a fresh one starting now.
func (s *Service) currentPeriod(sub *models.UserSubscription, plan *models.SubscriptionPlan) (time.Time, time.Time) {
	if sub.CurrentPeriodStart != nil && sub.CurrentPeriodEnd != nil {
		return sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
	}
	start := s.now()
	return start, PeriodEnd(start, plan.Interval, plan.IntervalCount)
}

func checkResource(app, resource string) error {
	for _, r := range entitlements.Resources(app) {
		if r == resource {
			return nil
		}
	}
	return fmt.Errorf("%w: %q for %s", ErrUnknownResource, resource, app)
}

// InitializeQuota grants the plan's quota for the subscription's current
// period. The newest quota row is rewritten; a row is created only when the
// subscription has none.
func (s *Service) InitializeQuota(ctx context.Context, subscriptionID string) (*models.ResourceUsage, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}

	var usage *models.ResourceUsage
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		plan, err := r.Plan.GetByID(sub.PlanID)
		if err != nil {
			return notFound(err, ErrPlanNotFound)
		}
		start, end := s.currentPeriod(sub, plan)
		usage, err = resetQuota(r, sub, plan, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// CurrentQuota returns the remaining quota of a user's subscription.
func (s *Service) CurrentQuota(ctx context.Context, userID, subscriptionID string) (*QuotaStatus, error) {
	userID = strings.TrimSpace(userID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	if userID == "" || subscriptionID == "" {
		return nil, errors.New("user_id and subscription_id are required")
	}
	r := s.repos(ctx)
	sub, err := r.Subscription.GetByIDForUser(subscriptionID, userID)
	if err != nil {
		return nil, notFound(err, ErrSubscriptionNotFound)
	}
	usage, err := r.Usage.GetLatestQuota(userID, sub.ID, sub.AppID)
	if err != nil {
		return nil, notFound(err, ErrQuotaNotFound)
	}

	status := &QuotaStatus{Usage: usage, Resource: map[string]int{}}
	for _, res := range entitlements.Resources(sub.AppID) {
		status.Resource[res] = usage.Remaining(res)
	}
	return status, nil
}

// ConsumeQuota books quantity units of a resource against a subscription.
// Units come from the plan grant first and then from active add-ons, oldest
// first. The remaining quota never drops below zero; units requested beyond
// it are reported as overflow and still counted as used.
func (s *Service) ConsumeQuota(ctx context.Context, userID, subscriptionID, resource string, quantity int) (*ConsumeResult, error) {
	userID = strings.TrimSpace(userID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	resource = strings.ToLower(strings.TrimSpace(resource))
	if userID == "" || subscriptionID == "" || resource == "" {
		return nil, errors.New("user_id, subscription_id and resource are required")
	}
	if quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	result := &ConsumeResult{}
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByIDForUser(subscriptionID, userID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if err := checkResource(sub.AppID, resource); err != nil {
			return err
		}
		usage, err := r.Usage.GetLatestQuota(userID, sub.ID, sub.AppID)
		if err != nil {
			return notFound(err, ErrQuotaNotFound)
		}
		active, err := r.Addon.ListActive(userID, sub.AppID, resource)
		if err != nil {
			return err
		}
		addons := active[:0]
		for _, a := range active {
			if a.SubscriptionID == sub.ID {
				addons = append(addons, a)
			}
		}

		// Add-on units only count while the row still tracks them; a reset
		// clears the tracker even if add-on rows remain active.
		remaining := usage.Remaining(resource)
		addonAvailable := 0
		for i := range addons {
			addonAvailable += addons[i].Available()
		}
		addonAvailable = min(addonAvailable, usage.AddonUnits(resource), remaining)
		base := remaining - addonAvailable

		result.FromBase = min(quantity, base)
		rest := quantity - result.FromBase
		budget := min(rest, addonAvailable)
		for i := range addons {
			if budget == 0 {
				break
			}
			take := min(budget, addons[i].Available())
			if take == 0 {
				continue
			}
			if err := r.Addon.Consume(addons[i].ID, take); err != nil {
				return err
			}
			result.FromAddon += take
			rest -= take
			budget -= take
		}
		result.Overflow = rest
		result.Remaining = max(remaining-quantity, 0)

		if err := r.Usage.DecrementQuota(usage.ID, resource, quantity); err != nil {
			return err
		}
		return recordUsage(r, usage, resource, result.FromBase+result.Overflow, result.FromAddon)
	})
	if err != nil {
		return nil, err
	}
	if result.Overflow > 0 {
		log.Warnf("[Billing] Subscription %s consumed %d %s beyond its quota", subscriptionID, result.Overflow, resource)
	}
	return result, nil
}

func recordUsage(r *repository.Repositories, usage *models.ResourceUsage, resource string, base, addon int) error {
	period := &models.SubscriptionUsage{
		UserID:         usage.UserID,
		SubscriptionID: usage.SubscriptionID,
		AppID:          usage.AppID,
		PeriodStart:    usage.BillingPeriodStart,
		PeriodEnd:      usage.BillingPeriodEnd,
	}
	if base > 0 {
		if err := r.Usage.IncrementUsage(period, resource, base, false); err != nil {
			return err
		}
	}
	if addon > 0 {
		if err := r.Usage.IncrementUsage(period, resource, addon, true); err != nil {
			return err
		}
	}
	return nil
}

// PurchaseAddon records extra units of a resource for the subscription's
// current quota period and raises the quota by the same amount.
func (s *Service) PurchaseAddon(ctx context.Context, in AddonInput) (*models.ResourceAddon, error) {
	userID := strings.TrimSpace(in.UserID)
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	addonType := strings.ToLower(strings.TrimSpace(in.AddonType))
	if userID == "" || subscriptionID == "" || addonType == "" {
		return nil, errors.New("user_id, subscription_id and addon_type are required")
	}
	if in.Quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	var addon *models.ResourceAddon
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByIDForUser(subscriptionID, userID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if app := entitlements.NormalizeApp(in.AppID); app != "" && app != sub.AppID {
			return ErrSubscriptionNotFound
		}
		if !entitlements.ValidAddonType(sub.AppID, addonType) {
			return fmt.Errorf("%w: %q for %s", ErrInvalidAddonType, addonType, sub.AppID)
		}
		usage, err := r.Usage.GetLatestQuota(userID, sub.ID, sub.AppID)
		if err != nil {
			return notFound(err, ErrQuotaNotFound)
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			plan, err := r.Plan.GetByID(sub.PlanID)
			if err != nil {
				return notFound(err, ErrPlanNotFound)
			}
			currency = plan.Currency
		}

		addon = &models.ResourceAddon{
			ID:                 newID(prefixAddon),
			SubscriptionID:     sub.ID,
			UserID:             userID,
			AppID:              sub.AppID,
			AddonType:          addonType,
			Quantity:           in.Quantity,
			AmountPaid:         in.AmountPaid,
			Currency:           currency,
			PaymentID:          models.StringPtr(in.PaymentID),
			BillingPeriodStart: usage.BillingPeriodStart,
			BillingPeriodEnd:   usage.BillingPeriodEnd,
			Status:             models.AddonStatusActive,
			PurchasedAt:        s.now(),
		}
		if err := addon.Validate(); err != nil {
			return err
		}
		if err := r.Addon.Create(addon); err != nil {
			return err
		}
		if err := r.Usage.AddToQuota(usage.ID, addonType, in.Quantity, true); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionAddonPurchased, map[string]interface{}{
			"addon_id":   addon.ID,
			"addon_type": addonType,
			"quantity":   in.Quantity,
		}, userID)
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] User %s bought %d %s for subscription %s", userID, in.Quantity, addonType, subscriptionID)
	return addon, nil
}

// ConsumeAddon books quantity units against one specific add-on. It fails
// with ErrQuotaExhausted when the add-on has fewer units left.
func (s *Service) ConsumeAddon(ctx context.Context, userID, addonID string, quantity int) (*models.ResourceAddon, error) {
	userID = strings.TrimSpace(userID)
	addonID = strings.TrimSpace(addonID)
	if userID == "" || addonID == "" {
		return nil, errors.New("user_id and addon_id are required")
	}
	if quantity <= 0 {
		return nil, errors.New("quantity must be positive")
	}

	var addon *models.ResourceAddon
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		var err error
		addon, err = r.Addon.GetByID(addonID)
		if err != nil {
			return notFound(err, ErrAddonNotFound)
		}
		if addon.UserID != userID {
			return ErrAddonNotFound
		}
		if err := r.Addon.Consume(addon.ID, quantity); err != nil {
			if errors.Is(err, repository.ErrInsufficientUnits) {
				return ErrQuotaExhausted
			}
			return err
		}
		usage, err := r.Usage.GetLatestQuota(userID, addon.SubscriptionID, addon.AppID)
		if err != nil {
			return notFound(err, ErrQuotaNotFound)
		}
		if err := r.Usage.DecrementQuota(usage.ID, addon.AddonType, quantity); err != nil {
			return err
		}
		if err := recordUsage(r, usage, addon.AddonType, 0, quantity); err != nil {
			return err
		}
		addon, err = r.Addon.GetByID(addonID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return addon, nil
}

// ResetQuotaOnRenewal restores the plan grant for the subscription's current
// period and expires add-ons bought for earlier periods.
func (s *Service) ResetQuotaOnRenewal(ctx context.Context, subscriptionID string) (*models.ResourceUsage, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}

	var usage *models.ResourceUsage
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		plan, err := r.Plan.GetByID(sub.PlanID)
		if err != nil {
			return notFound(err, ErrPlanNotFound)
		}
		start, end := s.currentPeriod(sub, plan)
		usage, err = resetQuota(r, sub, plan, start, end)
		if err != nil {
			return err
		}
		expired, err := r.Addon.ExpireEndedBefore(sub.ID, start)
		if err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionQuotaReset, map[string]interface{}{
			"period_start":   start,
			"period_end":     end,
			"expired_addons": expired,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// Usage returns what a user consumed in one period of an app.
func (s *Service) Usage(ctx context.Context, userID, appID string, periodStart, periodEnd time.Time) (*models.SubscriptionUsage, error) {
	userID = strings.TrimSpace(userID)
	app := entitlements.NormalizeApp(appID)
	if userID == "" || app == "" {
		return nil, errors.New("user_id and app_id are required")
	}
	return s.repos(ctx).Usage.GetUsage(userID, app, periodStart.UTC(), periodEnd.UTC())
}

// Addons lists the add-ons bought for a subscription, newest first.
func (s *Service) Addons(ctx context.Context, subscriptionID string) ([]models.ResourceAddon, error) {
	return s.repos(ctx).Addon.ListBySubscription(strings.TrimSpace(subscriptionID))
}
