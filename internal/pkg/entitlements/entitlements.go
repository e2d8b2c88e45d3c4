package entitlements

import (
	"strings"

	"github.com/ManuelReschke/BillingStore/app/models"
)

type Tier string

const (
	TierFree     Tier = "free"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Default grants used when a plan's features omit a resource.
const (
	DefaultDocumentPages      = 40
	DefaultPerplexityRequests = 2
	DefaultRequests           = 2
)

// Quota is the number of units of each resource granted for one period.
type Quota struct {
	DocumentPages      int
	PerplexityRequests int
	Requests           int
}

// Get returns the grant for a resource type.
func (q Quota) Get(resource string) int {
	switch resource {
	case models.ResourceDocumentPages:
		return q.DocumentPages
	case models.ResourcePerplexityRequests:
		return q.PerplexityRequests
	case models.ResourceRequests:
		return q.Requests
	}
	return 0
}

// Scale multiplies every grant by n.
func (q Quota) Scale(n int) Quota {
	return Quota{
		DocumentPages:      q.DocumentPages * n,
		PerplexityRequests: q.PerplexityRequests * n,
		Requests:           q.Requests * n,
	}
}

var appResources = map[string][]string{
	models.AppMarketFit: {models.ResourceDocumentPages, models.ResourcePerplexityRequests},
	models.AppSalesWit:  {models.ResourceRequests},
}

// NormalizeApp lowercases and trims an app id.
func NormalizeApp(app string) string {
	return strings.ToLower(strings.TrimSpace(app))
}

// KnownApp reports whether app has a resource catalogue.
func KnownApp(app string) bool {
	_, ok := appResources[NormalizeApp(app)]
	return ok
}

// Resources lists the metered resource types of an app.
func Resources(app string) []string {
	return appResources[NormalizeApp(app)]
}

// ValidAddonType reports whether add-ons of addonType can be bought for app.
func ValidAddonType(app, addonType string) bool {
	for _, r := range Resources(app) {
		if r == addonType {
			return true
		}
	}
	return false
}

// QuotaForPlan reads the per-period grant from the plan's features. Resources
// outside the app's catalogue are granted zero.
func QuotaForPlan(app string, plan *models.SubscriptionPlan) Quota {
	switch NormalizeApp(app) {
	case models.AppMarketFit:
		return Quota{
			DocumentPages:      plan.FeatureInt(models.ResourceDocumentPages, DefaultDocumentPages),
			PerplexityRequests: plan.FeatureInt(models.ResourcePerplexityRequests, DefaultPerplexityRequests),
		}
	case models.AppSalesWit:
		return Quota{
			Requests: plan.FeatureInt(models.ResourceRequests, DefaultRequests),
		}
	}
	return Quota{}
}
