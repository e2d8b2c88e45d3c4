package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/BillingStore/app/models"
)

func TestValidAddonType(t *testing.T) {
	tests := []struct {
		app       string
		addonType string
		want      bool
	}{
		{app: "marketfit", addonType: "document_pages", want: true},
		{app: "marketfit", addonType: "perplexity_requests", want: true},
		{app: "MarketFit ", addonType: "document_pages", want: true},
		{app: "marketfit", addonType: "requests", want: false},
		{app: "saleswit", addonType: "requests", want: true},
		{app: "saleswit", addonType: "document_pages", want: false},
		{app: "unknown", addonType: "requests", want: false},
	}

	for _, tt := range tests {
		if got := ValidAddonType(tt.app, tt.addonType); got != tt.want {
			t.Fatalf("ValidAddonType(%q, %q) = %v, want %v", tt.app, tt.addonType, got, tt.want)
		}
	}
}

func TestQuotaForPlanUsesFeatures(t *testing.T) {
	plan := &models.SubscriptionPlan{Features: models.JSON(`{"document_pages": 500, "perplexity_requests": 25}`)}

	q := QuotaForPlan(models.AppMarketFit, plan)
	assert.Equal(t, 500, q.DocumentPages)
	assert.Equal(t, 25, q.PerplexityRequests)
	assert.Equal(t, 0, q.Requests)
}

func TestQuotaForPlanDefaults(t *testing.T) {
	plan := &models.SubscriptionPlan{Features: models.JSON(`{}`)}

	assert.Equal(t, Quota{DocumentPages: 40, PerplexityRequests: 2}, QuotaForPlan(models.AppMarketFit, plan))
	assert.Equal(t, Quota{Requests: 2}, QuotaForPlan(models.AppSalesWit, plan))
	assert.Equal(t, Quota{}, QuotaForPlan("other", plan))
}

func TestQuotaScale(t *testing.T) {
	q := Quota{DocumentPages: 40, PerplexityRequests: 2}.Scale(2)
	assert.Equal(t, 80, q.Get(models.ResourceDocumentPages))
	assert.Equal(t, 4, q.Get(models.ResourcePerplexityRequests))
}
