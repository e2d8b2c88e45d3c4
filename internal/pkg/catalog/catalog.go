package catalog

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/internal/pkg/entitlements"
)

type product struct {
	app    string
	code   string
	name   string
	grants map[entitlements.Tier]entitlements.Quota
}

type price struct {
	tier    entitlements.Tier
	monthly string
	yearly  string
}

var products = []product{
	{
		app:  models.AppMarketFit,
		code: "MF",
		name: "MarketFit",
		grants: map[entitlements.Tier]entitlements.Quota{
			entitlements.TierFree:     {DocumentPages: 40, PerplexityRequests: 2},
			entitlements.TierGold:     {DocumentPages: 500, PerplexityRequests: 25},
			entitlements.TierPlatinum: {DocumentPages: 2000, PerplexityRequests: 100},
		},
	},
	{
		app:  models.AppSalesWit,
		code: "SW",
		name: "SalesWit",
		grants: map[entitlements.Tier]entitlements.Quota{
			entitlements.TierFree:     {Requests: 2},
			entitlements.TierGold:     {Requests: 100},
			entitlements.TierPlatinum: {Requests: 500},
		},
	},
}

var prices = map[string]map[string][]price{
	models.AppMarketFit: {
		"INR": {
			{tier: entitlements.TierGold, monthly: "999.00", yearly: "9999.00"},
			{tier: entitlements.TierPlatinum, monthly: "2499.00", yearly: "24999.00"},
		},
		"USD": {
			{tier: entitlements.TierGold, monthly: "14.99", yearly: "149.99"},
			{tier: entitlements.TierPlatinum, monthly: "34.99", yearly: "349.99"},
		},
	},
	models.AppSalesWit: {
		"INR": {
			{tier: entitlements.TierGold, monthly: "799.00", yearly: "7999.00"},
			{tier: entitlements.TierPlatinum, monthly: "1999.00", yearly: "19999.00"},
		},
		"USD": {
			{tier: entitlements.TierGold, monthly: "9.99", yearly: "99.99"},
			{tier: entitlements.TierPlatinum, monthly: "24.99", yearly: "249.99"},
		},
	},
}

// FreePlanID is the id of the gateway-less free plan of an app.
func FreePlanID(app string) string {
	return "plan_free_" + entitlements.NormalizeApp(app)
}

// DefaultPlans returns the seed plan catalogue: a free plan per app plus Gold
// and Platinum tiers billed monthly or yearly, in INR through Razorpay and in
// USD through PayPal.
func DefaultPlans() []models.SubscriptionPlan {
	var plans []models.SubscriptionPlan
	for _, p := range products {
		free, _ := models.NewJSON(featureMap(p.app, p.grants[entitlements.TierFree]))
		plans = append(plans, models.SubscriptionPlan{
			ID:              FreePlanID(p.app),
			Name:            p.name + " Free",
			Description:     "Free tier of " + p.name,
			Amount:          decimal.Zero,
			Currency:        "INR",
			Interval:        models.IntervalMonth,
			IntervalCount:   1,
			AppID:           p.app,
			PlanType:        models.PlanTypeDomestic,
			PaymentGateways: models.StringList{},
			Features:        free,
			IsActive:        true,
		})

		for _, currency := range []string{"INR", "USD"} {
			for _, pr := range prices[p.app][currency] {
				for _, interval := range []string{models.IntervalMonth, models.IntervalYear} {
					plans = append(plans, paidPlan(p, pr, currency, interval))
				}
			}
		}
	}
	return plans
}

func paidPlan(p product, pr price, currency, interval string) models.SubscriptionPlan {
	grant := p.grants[pr.tier]
	amount := pr.monthly
	suffix := "monthly"
	ref := "M"
	if interval == models.IntervalYear {
		amount = pr.yearly
		suffix = "yearly"
		ref = "Y"
		grant = grant.Scale(12)
	}
	tier := string(pr.tier)
	id := fmt.Sprintf("plan_%s_%s_%s", tier, p.app, suffix)
	features, _ := models.NewJSON(featureMap(p.app, grant))

	plan := models.SubscriptionPlan{
		ID:            id,
		Name:          fmt.Sprintf("%s %s", p.name, strings.ToUpper(tier[:1])+tier[1:]),
		Description:   fmt.Sprintf("%s %s plan billed %s", p.name, tier, suffix),
		Amount:        decimal.RequireFromString(amount),
		Currency:      currency,
		Interval:      interval,
		IntervalCount: 1,
		AppID:         p.app,
		Features:      features,
		IsActive:      true,
	}
	gatewayRef := fmt.Sprintf("%s_%s_%s", p.code, strings.ToUpper(tier), ref)
	if currency == "USD" {
		plan.ID += "_usd"
		plan.PlanType = models.PlanTypeInternational
		plan.PaymentGateways = models.StringList{models.GatewayPaypal}
		plan.PaypalPlanID = models.StringPtr("P-" + strings.ReplaceAll(gatewayRef, "_", "-"))
	} else {
		plan.PlanType = models.PlanTypeDomestic
		plan.PaymentGateways = models.StringList{models.GatewayRazorpay}
		plan.RazorpayPlanID = models.StringPtr("plan_" + gatewayRef)
	}
	return plan
}

func featureMap(app string, q entitlements.Quota) map[string]int {
	out := map[string]int{}
	for _, r := range entitlements.Resources(app) {
		out[r] = q.Get(r)
	}
	return out
}

// Seed inserts the default plans that are not present yet and returns how
// many rows were added. Existing plans are left untouched.
func Seed(db *gorm.DB) (int, error) {
	inserted := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, plan := range DefaultPlans() {
			if err := plan.Validate(); err != nil {
				return fmt.Errorf("seed plan %s: %w", plan.ID, err)
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoNothing: true,
			}).Create(&plan)
			if res.Error != nil {
				return fmt.Errorf("seed plan %s: %w", plan.ID, res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Infof("[Catalog] seeded %d plans", inserted)
	return inserted, nil
}
