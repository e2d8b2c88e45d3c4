// Package integrity audits a billing database for rows that break the
// store's invariants. It is meant for operators; nothing is repaired.
package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Check names.
const (
	CheckPlanType           = "plan_type"
	CheckOrphanSubscription = "orphan_subscription"
	CheckGatewayIDs         = "gateway_ids"
	CheckDuplicateWebhook   = "duplicate_webhook"
	CheckDuplicateUsage     = "duplicate_usage_period"
	CheckDuplicateQuota     = "duplicate_quota_period"
	CheckAddonOverconsumed  = "addon_overconsumed"
	CheckPaidWithoutDate    = "invoice_paid_without_date"
)

// Violation is one offending row or group of rows.
type Violation struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Subject  string   `json:"subject"`
	Detail   string   `json:"detail"`
}

// Report collects the violations of one run.
type Report struct {
	Violations []Violation `json:"violations"`
}

// Errors returns the number of error-level violations.
func (r *Report) Errors() int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			n++
		}
	}
	return n
}

// Warnings returns the number of warning-level violations.
func (r *Report) Warnings() int {
	return len(r.Violations) - r.Errors()
}

// OK reports whether the run found no errors. Warnings do not count.
func (r *Report) OK() bool {
	return r.Errors() == 0
}

// ByCheck returns the violations of one check.
func (r *Report) ByCheck(check string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Check == check {
			out = append(out, v)
		}
	}
	return out
}

func (r *Report) add(check string, sev Severity, subject, detail string) {
	r.Violations = append(r.Violations, Violation{Check: check, Severity: sev, Subject: subject, Detail: detail})
}

type checkFunc func(db *gorm.DB, r *Report) error

var checks = []struct {
	name string
	fn   checkFunc
}{
	{CheckPlanType, checkPlanType},
	{CheckOrphanSubscription, checkOrphanSubscriptions},
	{CheckGatewayIDs, checkGatewayIDs},
	{CheckDuplicateWebhook, checkDuplicateWebhooks},
	{CheckDuplicateUsage, checkDuplicateUsage},
	{CheckDuplicateQuota, checkDuplicateQuota},
	{CheckAddonOverconsumed, checkAddonOverconsumed},
	{CheckPaidWithoutDate, checkPaidWithoutDate},
}

// Run executes every check against db.
func Run(ctx context.Context, db *gorm.DB) (*Report, error) {
	report := &Report{}
	tx := db.WithContext(ctx)
	for _, c := range checks {
		if err := c.fn(tx, report); err != nil {
			return nil, fmt.Errorf("integrity check %s: %w", c.name, err)
		}
	}
	if report.OK() {
		log.Infof("[Integrity] No errors found (%d warnings)", report.Warnings())
	} else {
		log.Warnf("[Integrity] Found %d errors and %d warnings", report.Errors(), report.Warnings())
	}
	return report, nil
}

func checkPlanType(db *gorm.DB, r *Report) error {
	var rows []struct {
		ID       string
		PlanType string
	}
	err := db.Model(&models.SubscriptionPlan{}).
		Select("id, plan_type").
		Where("plan_type NOT IN ?", []string{models.PlanTypeDomestic, models.PlanTypeInternational}).
		Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		r.add(CheckPlanType, SeverityError, row.ID, fmt.Sprintf("plan_type %q", row.PlanType))
	}
	return nil
}

func checkOrphanSubscriptions(db *gorm.DB, r *Report) error {
	var rows []struct {
		ID     string
		PlanID string
	}
	err := db.Table("user_subscriptions AS s").
		Select("s.id, s.plan_id").
		Joins("LEFT JOIN subscription_plans AS p ON p.id = s.plan_id").
		Where("p.id IS NULL").
		Scan(&rows).Error
	if err != nil {
		return err
	}
	for _, row := range rows {
		r.add(CheckOrphanSubscription, SeverityError, row.ID, fmt.Sprintf("plan %q does not exist", row.PlanID))
	}
	return nil
}

func checkGatewayIDs(db *gorm.DB, r *Report) error {
	var subs []models.UserSubscription
	err := db.Select("id", "payment_gateway", "razorpay_subscription_id", "paypal_subscription_id").
		Where("payment_gateway IS NOT NULL OR razorpay_subscription_id IS NOT NULL OR paypal_subscription_id IS NOT NULL").
		Find(&subs).Error
	if err != nil {
		return err
	}
	for i := range subs {
		if err := subs[i].CheckGatewayIDs(); err != nil {
			r.add(CheckGatewayIDs, SeverityError, subs[i].ID, err.Error())
		}
	}
	return nil
}

type dupRow struct {
	GroupKey string
	N        int64
}

func duplicates(db *gorm.DB, table string, columns []string) ([]dupRow, error) {
	var rows []dupRow
	cols := strings.Join(columns, ", ")
	err := db.Table(table).
		Select(concatExpr(db, columns) + " AS group_key, COUNT(*) AS n").
		Group(cols).
		Having("COUNT(*) > 1").
		Scan(&rows).Error
	return rows, err
}

// concatExpr joins columns with '|' in the dialect of db.
func concatExpr(db *gorm.DB, columns []string) string {
	if db.Dialector.Name() == "sqlite" {
		return strings.Join(columns, " || '|' || ")
	}
	return "CONCAT_WS('|', " + strings.Join(columns, ", ") + ")"
}

func checkDuplicateWebhooks(db *gorm.DB, r *Report) error {
	rows, err := duplicates(db, "webhook_events_processed", []string{"event_id", "provider"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		r.add(CheckDuplicateWebhook, SeverityError, row.GroupKey, fmt.Sprintf("%d records", row.N))
	}
	return nil
}

func checkDuplicateUsage(db *gorm.DB, r *Report) error {
	rows, err := duplicates(db, "subscription_usage", []string{"user_id", "app_id", "period_start", "period_end"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		r.add(CheckDuplicateUsage, SeverityError, row.GroupKey, fmt.Sprintf("%d usage rows for one period", row.N))
	}
	return nil
}

// Several quota rows per period are tolerated; the newest one wins.
func checkDuplicateQuota(db *gorm.DB, r *Report) error {
	rows, err := duplicates(db, "resource_usage", []string{"user_id", "subscription_id", "app_id", "billing_period_start", "billing_period_end"})
	if err != nil {
		return err
	}
	for _, row := range rows {
		r.add(CheckDuplicateQuota, SeverityWarning, row.GroupKey, fmt.Sprintf("%d quota rows for one period", row.N))
	}
	return nil
}

func checkAddonOverconsumed(db *gorm.DB, r *Report) error {
	var addons []models.ResourceAddon
	err := db.Select("id", "quantity", "consumed_quantity").
		Where("consumed_quantity > quantity").
		Find(&addons).Error
	if err != nil {
		return err
	}
	for _, a := range addons {
		r.add(CheckAddonOverconsumed, SeverityError, a.ID, fmt.Sprintf("consumed %d of %d", a.ConsumedQuantity, a.Quantity))
	}
	return nil
}

func checkPaidWithoutDate(db *gorm.DB, r *Report) error {
	var ids []string
	err := db.Model(&models.SubscriptionInvoice{}).
		Where("status = ? AND paid_at IS NULL", models.InvoiceStatusPaid).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.add(CheckPaidWithoutDate, SeverityError, id, "paid invoice has no paid_at")
	}
	return nil
}
