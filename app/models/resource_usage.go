package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ResourceUsage holds the remaining quota of a subscription for one billing
// period. Quota columns are decremented as resources are consumed; original_*
// keep the plan grant and current_addon_* the add-on units bought this period.
// Several rows may exist for the same period; the newest one is authoritative.
type ResourceUsage struct {
	ID                              uint              `gorm:"primaryKey" json:"id"`
	UserID                          string            `gorm:"type:varchar(100);not null;index:idx_resource_usage_user_sub_app,priority:1" json:"user_id" validate:"required,max=100"`
	SubscriptionID                  string            `gorm:"type:varchar(50);not null;index:idx_resource_usage_user_sub_app,priority:2" json:"subscription_id" validate:"required,max=50"`
	Subscription                    *UserSubscription `gorm:"foreignKey:SubscriptionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-" validate:"-"`
	AppID                           string            `gorm:"type:varchar(50);not null;default:'marketfit';index:idx_resource_usage_user_sub_app,priority:3" json:"app_id" validate:"required,max=50"`
	BillingPeriodStart              time.Time         `gorm:"not null" json:"billing_period_start"`
	BillingPeriodEnd                time.Time         `gorm:"not null" json:"billing_period_end"`
	DocumentPagesQuota              int               `gorm:"not null;default:0" json:"document_pages_quota" validate:"min=0"`
	PerplexityRequestsQuota         int               `gorm:"not null;default:0" json:"perplexity_requests_quota" validate:"min=0"`
	RequestsQuota                   int               `gorm:"not null;default:0" json:"requests_quota" validate:"min=0"`
	OriginalDocumentPagesQuota      int               `gorm:"not null;default:0" json:"original_document_pages_quota" validate:"min=0"`
	OriginalPerplexityRequestsQuota int               `gorm:"not null;default:0" json:"original_perplexity_requests_quota" validate:"min=0"`
	OriginalRequestsQuota           int               `gorm:"not null;default:0" json:"original_requests_quota" validate:"min=0"`
	CurrentAddonDocumentPages       int               `gorm:"not null;default:0" json:"current_addon_document_pages" validate:"min=0"`
	CurrentAddonPerplexityRequests  int               `gorm:"not null;default:0" json:"current_addon_perplexity_requests" validate:"min=0"`
	CurrentAddonRequests            int               `gorm:"not null;default:0" json:"current_addon_requests" validate:"min=0"`
	CreatedAt                       time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt                       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ResourceUsage) TableName() string {
	return "resource_usage"
}

func (u *ResourceUsage) Validate() error {
	v := validator.New()
	if err := v.Struct(u); err != nil {
		return err
	}
	if u.BillingPeriodEnd.Before(u.BillingPeriodStart) {
		return fmt.Errorf("billing_period_end must not precede billing_period_start")
	}
	return nil
}

// Remaining returns the remaining quota of a resource type.
func (u *ResourceUsage) Remaining(resource string) int {
	switch resource {
	case ResourceDocumentPages:
		return u.DocumentPagesQuota
	case ResourcePerplexityRequests:
		return u.PerplexityRequestsQuota
	case ResourceRequests:
		return u.RequestsQuota
	}
	return 0
}

// AddonUnits returns the add-on units added to the quota of a resource
// since the row was last reset.
func (u *ResourceUsage) AddonUnits(resource string) int {
	switch resource {
	case ResourceDocumentPages:
		return u.CurrentAddonDocumentPages
	case ResourcePerplexityRequests:
		return u.CurrentAddonPerplexityRequests
	case ResourceRequests:
		return u.CurrentAddonRequests
	}
	return 0
}

// QuotaColumn maps a resource type to its remaining-quota column.
func QuotaColumn(resource string) (string, error) {
	switch resource {
	case ResourceDocumentPages, ResourcePerplexityRequests, ResourceRequests:
		return resource + "_quota", nil
	}
	return "", fmt.Errorf("unknown resource type %q", resource)
}

// AddonColumn maps a resource type to its current_addon_* column.
func AddonColumn(resource string) (string, error) {
	switch resource {
	case ResourceDocumentPages, ResourcePerplexityRequests, ResourceRequests:
		return "current_addon_" + resource, nil
	}
	return "", fmt.Errorf("unknown resource type %q", resource)
}
