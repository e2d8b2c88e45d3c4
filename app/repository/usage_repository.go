package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// usageRepository implements the UsageRepository interface
type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository creates a new usage repository instance
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

// CreateQuota inserts a resource_usage row
func (r *usageRepository) CreateQuota(usage *models.ResourceUsage) error {
	return r.db.Omit(clause.Associations).Create(usage).Error
}

// GetLatestQuota retrieves the newest quota row of a subscription
func (r *usageRepository) GetLatestQuota(userID, subscriptionID, appID string) (*models.ResourceUsage, error) {
	var usage models.ResourceUsage
	err := r.db.Where("user_id = ? AND subscription_id = ? AND app_id = ?", userID, subscriptionID, appID).
		Order("created_at DESC").Order("id DESC").
		First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// ResetQuota starts a new period on an existing row: quotas and originals are
// set to the grant and add-on trackers cleared.
func (r *usageRepository) ResetQuota(id uint, start, end time.Time, grant QuotaValues) error {
	res := r.db.Model(&models.ResourceUsage{}).Where("id = ?", id).Updates(map[string]interface{}{
		"billing_period_start":               start,
		"billing_period_end":                 end,
		"document_pages_quota":               grant.DocumentPages,
		"perplexity_requests_quota":          grant.PerplexityRequests,
		"requests_quota":                     grant.Requests,
		"original_document_pages_quota":      grant.DocumentPages,
		"original_perplexity_requests_quota": grant.PerplexityRequests,
		"original_requests_quota":            grant.Requests,
		"current_addon_document_pages":       0,
		"current_addon_perplexity_requests":  0,
		"current_addon_requests":             0,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ensureExists(r.db, &models.ResourceUsage{}, id)
	}
	return nil
}

// AddToQuota raises the remaining quota of a resource, and the add-on tracker when addon is set
func (r *usageRepository) AddToQuota(id uint, resource string, quantity int, addon bool) error {
	quotaCol, err := models.QuotaColumn(resource)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		quotaCol: gorm.Expr(quotaCol+" + ?", quantity),
	}
	if addon {
		addonCol, err := models.AddonColumn(resource)
		if err != nil {
			return err
		}
		updates[addonCol] = gorm.Expr(addonCol+" + ?", quantity)
	}
	res := r.db.Model(&models.ResourceUsage{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DecrementQuota lowers the remaining quota of a resource in one statement, flooring at zero
func (r *usageRepository) DecrementQuota(id uint, resource string, quantity int) error {
	col, err := models.QuotaColumn(resource)
	if err != nil {
		return err
	}
	res := r.db.Model(&models.ResourceUsage{}).Where("id = ?", id).
		Update(col, gorm.Expr("CASE WHEN "+col+" >= ? THEN "+col+" - ? ELSE 0 END", quantity, quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ensureExists(r.db, &models.ResourceUsage{}, id)
	}
	return nil
}

// IncrementUsage adds quantity to a usage counter of the period row, creating the row on first use
func (r *usageRepository) IncrementUsage(usage *models.SubscriptionUsage, resource string, quantity int, addon bool) error {
	col, err := models.UsedColumn(resource, addon)
	if err != nil {
		return err
	}
	row := *usage
	row.ID = 0
	setUsed(&row, col, quantity)

	return r.db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "app_id"},
			{Name: "period_start"},
			{Name: "period_end"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			col:          gorm.Expr(col+" + ?", quantity),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&row).Error
}

// GetUsage retrieves the usage row of a period
func (r *usageRepository) GetUsage(userID, appID string, periodStart, periodEnd time.Time) (*models.SubscriptionUsage, error) {
	var usage models.SubscriptionUsage
	err := r.db.Where(&models.SubscriptionUsage{
		UserID:      userID,
		AppID:       appID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}).First(&usage).Error
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func setUsed(u *models.SubscriptionUsage, column string, quantity int) {
	switch column {
	case "document_pages_used":
		u.DocumentPagesUsed = quantity
	case "perplexity_requests_used":
		u.PerplexityRequestsUsed = quantity
	case "requests_used":
		u.RequestsUsed = quantity
	case "addon_document_pages_used":
		u.AddonDocumentPagesUsed = quantity
	case "addon_perplexity_requests_used":
		u.AddonPerplexityRequestsUsed = quantity
	case "addon_requests_used":
		u.AddonRequestsUsed = quantity
	}
}
