package models

import (
	"fmt"
	"time"
)

// SubscriptionUsage accumulates consumption per user, app and billing period.
// Base and add-on consumption are counted separately.
type SubscriptionUsage struct {
	ID                          uint              `gorm:"primaryKey" json:"id"`
	UserID                      string            `gorm:"type:varchar(100);not null;index:ux_subscription_usage_period,unique,priority:1" json:"user_id"`
	SubscriptionID              string            `gorm:"type:varchar(50);not null;index" json:"subscription_id"`
	Subscription                *UserSubscription `gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	AppID                       string            `gorm:"type:varchar(50);not null;default:'marketfit';index:ux_subscription_usage_period,unique,priority:2" json:"app_id"`
	PeriodStart                 time.Time         `gorm:"not null;index:ux_subscription_usage_period,unique,priority:3" json:"period_start"`
	PeriodEnd                   time.Time         `gorm:"not null;index:ux_subscription_usage_period,unique,priority:4" json:"period_end"`
	DocumentPagesUsed           int               `gorm:"not null;default:0" json:"document_pages_used"`
	PerplexityRequestsUsed      int               `gorm:"not null;default:0" json:"perplexity_requests_used"`
	RequestsUsed                int               `gorm:"not null;default:0" json:"requests_used"`
	AddonDocumentPagesUsed      int               `gorm:"not null;default:0" json:"addon_document_pages_used"`
	AddonPerplexityRequestsUsed int               `gorm:"not null;default:0" json:"addon_perplexity_requests_used"`
	AddonRequestsUsed           int               `gorm:"not null;default:0" json:"addon_requests_used"`
	CreatedAt                   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SubscriptionUsage) TableName() string {
	return "subscription_usage"
}

// UsedColumn maps a resource type to its usage counter column.
func UsedColumn(resource string, addon bool) (string, error) {
	switch resource {
	case ResourceDocumentPages, ResourcePerplexityRequests, ResourceRequests:
		if addon {
			return "addon_" + resource + "_used", nil
		}
		return resource + "_used", nil
	}
	return "", fmt.Errorf("unknown resource type %q", resource)
}
