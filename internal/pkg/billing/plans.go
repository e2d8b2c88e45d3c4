package billing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
	"github.com/ManuelReschke/BillingStore/internal/pkg/entitlements"
)

// AvailablePlans lists the active plans of an app, cheapest first.
func (s *Service) AvailablePlans(ctx context.Context, appID string) ([]models.SubscriptionPlan, error) {
	app := entitlements.NormalizeApp(appID)
	if app == "" {
		return nil, errors.New("app_id is required")
	}
	return s.repos(ctx).Plan.ListActiveByApp(app)
}

// ResolvePlan finds a plan by its own id or, failing that, by the plan id a
// gateway knows it under.
func (s *Service) ResolvePlan(ctx context.Context, ref string) (*models.SubscriptionPlan, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("plan reference is required")
	}
	plans := s.repos(ctx).Plan

	plan, err := plans.GetByID(ref)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	for _, gateway := range []string{models.GatewayRazorpay, models.GatewayPaypal} {
		plan, err = plans.GetByGatewayPlanID(gateway, ref)
		if err == nil {
			return plan, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, ErrPlanNotFound
}

// PlanAvailableOn reports whether a plan can be billed through gateway.
// Paid plans additionally need the gateway's plan id to be registered.
func PlanAvailableOn(plan *models.SubscriptionPlan, gateway string) bool {
	g := normalizeGateway(gateway)
	if plan == nil || !plan.IsActive || !isKnownGateway(g) || !plan.SupportsGateway(g) {
		return false
	}
	if plan.IsPaid() && plan.GatewayPlanID(g) == "" {
		return false
	}
	return true
}

// loadPlanForApp returns the plan only if it exists, belongs to app and is active.
func loadPlanForApp(plans repository.PlanRepository, planID, app string) (*models.SubscriptionPlan, error) {
	plan, err := plans.GetByIDAndApp(planID, app)
	if err != nil {
		return nil, notFound(err, ErrPlanNotFound)
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	return plan, nil
}
