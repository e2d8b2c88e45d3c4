package billing

import (
	"strings"
	"time"

	"github.com/ManuelReschke/BillingStore/app/models"
)

const (
	daysPerMonth = 30
	daysPerYear  = 365
)

// PeriodEnd returns the end of a billing period starting at start. Months
// count as 30 days and years as 365 days; unknown intervals fall back to one month.
func PeriodEnd(start time.Time, interval string, count int) time.Time {
	if count < 1 {
		count = 1
	}
	switch normalizeInterval(interval) {
	case models.IntervalYear:
		return start.AddDate(0, 0, daysPerYear*count)
	case models.IntervalMonth:
		return start.AddDate(0, 0, daysPerMonth*count)
	default:
		return start.AddDate(0, 0, daysPerMonth)
	}
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.IntervalMonth, models.IntervalYear:
		return i
	default:
		return "unknown"
	}
}

func normalizeGateway(gateway string) string {
	return strings.ToLower(strings.TrimSpace(gateway))
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// isKnownGateway reports whether gateway is one of the supported providers.
func isKnownGateway(gateway string) bool {
	switch gateway {
	case models.GatewayRazorpay, models.GatewayPaypal:
		return true
	default:
		return false
	}
}
