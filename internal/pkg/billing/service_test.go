package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/internal/pkg/catalog"
	"github.com/ManuelReschke/BillingStore/internal/pkg/database"
)

const (
	goldMonthly     = "plan_gold_marketfit_monthly"
	goldYearly      = "plan_gold_marketfit_yearly"
	platinumMonthly = "plan_platinum_marketfit_monthly"
	goldMonthlyUSD  = "plan_gold_marketfit_monthly_usd"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeRecorder) RecordDelivery(_ context.Context, provider, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[provider+":"+outcome]++
}

func (f *fakeRecorder) get(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	_, err = catalog.Seed(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestService(t *testing.T, opts ...Option) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewService(db, opts...), db
}

func createRazorpaySub(t *testing.T, s *Service, userID, planID, ref string) *models.UserSubscription {
	t.Helper()
	sub, err := s.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID:                userID,
		AppID:                 models.AppMarketFit,
		PlanID:                planID,
		Gateway:               models.GatewayRazorpay,
		GatewaySubscriptionID: ref,
	})
	require.NoError(t, err)
	return sub
}

func TestCreateSubscription(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")
	assert.Equal(t, models.SubscriptionStatusCreated, sub.Status)
	assert.Equal(t, models.GatewayRazorpay, sub.Gateway())
	assert.Equal(t, "sub_rzp_1", sub.GatewaySubscriptionID())
	assert.Nil(t, sub.PaypalSubscriptionID)
	assert.Len(t, sub.ID, len("sub_")+32)

	logs, err := s.AuditLog(ctx, sub.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionSubscriptionCreated, logs[0].ActionType)
	assert.Equal(t, "system", logs[0].InitiatedBy)
}

func TestCreateSubscriptionRejectsInvalidInput(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateSubscriptionInput
		want error
	}{
		{
			name: "unknown plan",
			in:   CreateSubscriptionInput{UserID: "u", AppID: "marketfit", PlanID: "plan_missing", Gateway: "razorpay", GatewaySubscriptionID: "x"},
			want: ErrPlanNotFound,
		},
		{
			name: "plan of another app",
			in:   CreateSubscriptionInput{UserID: "u", AppID: "saleswit", PlanID: goldMonthly, Gateway: "razorpay", GatewaySubscriptionID: "x"},
			want: ErrPlanNotFound,
		},
		{
			name: "gateway not offered by plan",
			in:   CreateSubscriptionInput{UserID: "u", AppID: "marketfit", PlanID: goldMonthlyUSD, Gateway: "razorpay", GatewaySubscriptionID: "x"},
			want: ErrGatewayNotSupported,
		},
		{
			name: "paid plan without gateway",
			in:   CreateSubscriptionInput{UserID: "u", AppID: "marketfit", PlanID: goldMonthly},
			want: ErrGatewayNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateSubscription(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := s.CreateSubscription(ctx, CreateSubscriptionInput{UserID: "u", AppID: "marketfit", PlanID: goldMonthly, Gateway: "razorpay"})
	assert.Error(t, err)
}

func TestCreateSubscriptionRejectsInactivePlan(t *testing.T) {
	s, db := newTestService(t)
	require.NoError(t, db.Model(&models.SubscriptionPlan{}).Where("id = ?", platinumMonthly).Update("is_active", false).Error)

	_, err := s.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID: "u", AppID: "marketfit", PlanID: platinumMonthly, Gateway: "razorpay", GatewaySubscriptionID: "x",
	})
	assert.ErrorIs(t, err, ErrPlanInactive)
}

func TestCreateSubscriptionRejectsInFlight(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	_, err := s.CreateSubscription(ctx, CreateSubscriptionInput{
		UserID: "user-1", AppID: "marketfit", PlanID: platinumMonthly, Gateway: "razorpay", GatewaySubscriptionID: "sub_rzp_2",
	})
	assert.ErrorIs(t, err, ErrSubscriptionInFlight)

	// Other apps are unaffected.
	_, err = s.CreateSubscription(ctx, CreateSubscriptionInput{
		UserID: "user-1", AppID: "saleswit", PlanID: "plan_gold_saleswit_monthly", Gateway: "razorpay", GatewaySubscriptionID: "sub_rzp_3",
	})
	assert.NoError(t, err)
}

func TestCreateSubscriptionDuplicateGatewayID(t *testing.T) {
	s, _ := newTestService(t)
	createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	_, err := s.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID: "user-2", AppID: "marketfit", PlanID: goldMonthly, Gateway: "razorpay", GatewaySubscriptionID: "sub_rzp_1",
	})
	assert.Error(t, err)
}

func TestEnsureFreeSubscription(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	sub, err := s.EnsureFreeSubscription(ctx, "user-1", " MarketFit ")
	require.NoError(t, err)
	assert.Equal(t, "plan_free_marketfit", sub.PlanID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Empty(t, sub.Gateway())
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.Equal(testNow.AddDate(0, 0, 30)))

	again, err := s.EnsureFreeSubscription(ctx, "user-1", "marketfit")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	quota, err := s.CurrentQuota(ctx, "user-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, quota.Resource[models.ResourceDocumentPages])
	assert.Equal(t, 2, quota.Resource[models.ResourcePerplexityRequests])
	_, hasRequests := quota.Resource[models.ResourceRequests]
	assert.False(t, hasRequests)
}

func TestEnsureFreeSubscriptionReturnsInFlight(t *testing.T) {
	s, _ := newTestService(t)
	pending := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	sub, err := s.EnsureFreeSubscription(context.Background(), "user-1", "marketfit")
	require.NoError(t, err)
	assert.Equal(t, pending.ID, sub.ID)
}

func TestActivateSubscription(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	monthly := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")
	got, err := s.ActivateSubscription(ctx, monthly.ID, start)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)
	assert.True(t, got.CurrentPeriodEnd.Equal(start.AddDate(0, 0, 30)))

	quota, err := s.CurrentQuota(ctx, "user-1", monthly.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, quota.Resource[models.ResourceDocumentPages])
	assert.Equal(t, 25, quota.Resource[models.ResourcePerplexityRequests])

	yearly := createRazorpaySub(t, s, "user-2", goldYearly, "sub_rzp_2")
	got, err = s.ActivateSubscription(ctx, yearly.ID, start)
	require.NoError(t, err)
	assert.True(t, got.CurrentPeriodEnd.Equal(start.AddDate(0, 0, 365)))

	_, err = s.ActivateSubscription(ctx, "sub_missing", start)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestActivateSubscriptionTwiceKeepsOneQuotaRow(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	_, err := s.ActivateSubscription(ctx, sub.ID, start)
	require.NoError(t, err)
	_, err = s.ConsumeQuota(ctx, "user-1", sub.ID, "document_pages", 100)
	require.NoError(t, err)

	got, err := s.ActivateSubscription(ctx, sub.ID, start)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, got.Status)

	var rows int64
	require.NoError(t, db.Model(&models.ResourceUsage{}).Where("subscription_id = ?", sub.ID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	quota, err := s.CurrentQuota(ctx, "user-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, quota.Resource[models.ResourceDocumentPages])
	assert.True(t, quota.Usage.BillingPeriodStart.Equal(start))
}

func TestRenewSubscription(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")
	_, err := s.ActivateSubscription(ctx, sub.ID, start)
	require.NoError(t, err)
	addon, err := s.PurchaseAddon(ctx, AddonInput{UserID: "user-1", SubscriptionID: sub.ID, AddonType: "document_pages", Quantity: 100})
	require.NoError(t, err)
	_, err = s.ConsumeQuota(ctx, "user-1", sub.ID, "document_pages", 120)
	require.NoError(t, err)

	renewed, invoice, err := s.RenewSubscription(ctx, RenewalInput{SubscriptionID: sub.ID, RazorpayInvoiceID: "inv_rzp_1", PaymentID: "pay_1"})
	require.NoError(t, err)
	nextStart := start.AddDate(0, 0, 30)
	assert.True(t, renewed.CurrentPeriodStart.Equal(nextStart))
	assert.True(t, renewed.CurrentPeriodEnd.Equal(nextStart.AddDate(0, 0, 30)))

	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
	assert.Equal(t, "999", invoice.Amount.String())
	assert.Equal(t, "INR", invoice.Currency)
	require.NotNil(t, invoice.PaidAt)

	var usage models.ResourceUsage
	require.NoError(t, db.Where("subscription_id = ?", sub.ID).Order("id DESC").First(&usage).Error)
	assert.Equal(t, 500, usage.DocumentPagesQuota)
	assert.Equal(t, 500, usage.OriginalDocumentPagesQuota)
	assert.Equal(t, 0, usage.CurrentAddonDocumentPages)
	assert.True(t, usage.BillingPeriodStart.Equal(nextStart))

	var stored models.ResourceAddon
	require.NoError(t, db.Where("id = ?", addon.ID).First(&stored).Error)
	assert.Equal(t, models.AddonStatusExpired, stored.Status)

	history, err := s.BillingHistory(ctx, "user-1", "marketfit")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, invoice.ID, history[0].ID)
}

func TestRenewCancelledSubscriptionFails(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")
	_, err := s.CancelSubscription(ctx, "user-1", sub.ID, "")
	require.NoError(t, err)

	_, _, err = s.RenewSubscription(ctx, RenewalInput{SubscriptionID: sub.ID})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusByGatewayID(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	got, err := s.UpdateStatusByGatewayID(ctx, "RAZORPAY", "sub_rzp_1", "Halted")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, models.SubscriptionStatusHalted, got.Status)

	_, err = s.UpdateStatusByGatewayID(ctx, "razorpay", "sub_rzp_1", "halted")
	require.NoError(t, err)

	logs, err := s.AuditLog(ctx, sub.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionStatusChanged, logs[0].ActionType)
	assert.Equal(t, "razorpay", logs[0].InitiatedBy)

	_, err = s.UpdateStatusByGatewayID(ctx, "paypal", "sub_rzp_1", "active")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	_, err = s.UpdateStatusByGatewayID(ctx, "stripe", "sub_rzp_1", "active")
	assert.ErrorIs(t, err, ErrGatewayNotSupported)
}

func TestUpdateStatusByGatewayIDRejectsUnknownStatus(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	for _, status := range []string{"bogus", "activated", "on_hold"} {
		_, err := s.UpdateStatusByGatewayID(ctx, "razorpay", "sub_rzp_1", status)
		assert.ErrorIs(t, err, ErrInvalidTransition, status)
	}

	got, err := s.Subscriptions(ctx, "user-1", "marketfit")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sub.Status, got[0].Status)

	logs, err := s.AuditLog(ctx, sub.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestCancelSubscription(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	_, err := s.CancelSubscription(ctx, "user-2", sub.ID, "not mine")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	got, err := s.CancelSubscription(ctx, "user-1", sub.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)
	meta, err := got.Metadata.Map()
	require.NoError(t, err)
	assert.Equal(t, true, meta["cancelled"])
	assert.Equal(t, "too expensive", meta["cancel_reason"])

	_, err = s.CancelSubscription(ctx, "user-1", sub.ID, "again")
	require.NoError(t, err)

	// A cancelled subscription no longer blocks new ones.
	_, err = s.CreateSubscription(ctx, CreateSubscriptionInput{
		UserID: "user-1", AppID: "marketfit", PlanID: platinumMonthly, Gateway: "razorpay", GatewaySubscriptionID: "sub_rzp_2",
	})
	assert.NoError(t, err)
}

func TestChangePlan(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	got, err := s.ChangePlan(ctx, "user-1", sub.ID, platinumMonthly)
	require.NoError(t, err)
	assert.Equal(t, platinumMonthly, got.PlanID)

	_, err = s.ChangePlan(ctx, "user-1", sub.ID, goldMonthlyUSD)
	assert.ErrorIs(t, err, ErrGatewayNotSupported)

	_, err = s.ChangePlan(ctx, "user-1", sub.ID, "plan_gold_saleswit_monthly")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestResolvePlan(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	plan, err := s.ResolvePlan(ctx, goldMonthly)
	require.NoError(t, err)
	assert.Equal(t, goldMonthly, plan.ID)

	plan, err = s.ResolvePlan(ctx, "plan_MF_GOLD_M")
	require.NoError(t, err)
	assert.Equal(t, goldMonthly, plan.ID)

	plan, err = s.ResolvePlan(ctx, "P-MF-GOLD-M")
	require.NoError(t, err)
	assert.Equal(t, goldMonthlyUSD, plan.ID)

	_, err = s.ResolvePlan(ctx, "nope")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	plans, err := s.AvailablePlans(ctx, "saleswit")
	require.NoError(t, err)
	require.Len(t, plans, 9)
	assert.Equal(t, "plan_free_saleswit", plans[0].ID)
}

func TestPlanAvailableOn(t *testing.T) {
	plans := map[string]models.SubscriptionPlan{}
	for _, p := range catalog.DefaultPlans() {
		plans[p.ID] = p
	}
	gold := plans[goldMonthly]
	usd := plans[goldMonthlyUSD]
	free := plans["plan_free_marketfit"]

	assert.True(t, PlanAvailableOn(&gold, "razorpay"))
	assert.False(t, PlanAvailableOn(&gold, "paypal"))
	assert.True(t, PlanAvailableOn(&usd, " PayPal "))
	assert.False(t, PlanAvailableOn(&usd, "razorpay"))
	assert.False(t, PlanAvailableOn(&gold, "stripe"))
	assert.False(t, PlanAvailableOn(nil, "razorpay"))

	gold.RazorpayPlanID = nil
	assert.False(t, PlanAvailableOn(&gold, "razorpay"))
	assert.True(t, PlanAvailableOn(&free, "razorpay"))
}
