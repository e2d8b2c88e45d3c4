package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BillingStore/app/models"
)

func TestRecordInvoiceDefaultsFromPlan(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	invoice, err := s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: sub.ID, RazorpayInvoiceID: "inv_rzp_1"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusCreated, invoice.Status)
	assert.True(t, invoice.Amount.Equal(decimal.RequireFromString("999.00")))
	assert.Equal(t, "INR", invoice.Currency)
	assert.Equal(t, "user-1", invoice.UserID)
	assert.True(t, invoice.InvoiceDate.Equal(testNow))
	assert.Nil(t, invoice.PaidAt)

	_, err = s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: "sub_missing"})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestInvoiceTransitions(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	first, err := s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: sub.ID})
	require.NoError(t, err)
	paid, err := s.MarkInvoicePaid(ctx, first.ID, PaymentDetails{PaymentID: "pay_1", PaymentMethod: "upi"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.PaymentMethod)
	assert.Equal(t, "upi", *paid.PaymentMethod)

	_, err = s.MarkInvoiceFailed(ctx, first.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.MarkInvoicePaid(ctx, first.ID, PaymentDetails{})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	second, err := s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: sub.ID})
	require.NoError(t, err)
	failed, err := s.MarkInvoiceFailed(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusFailed, failed.Status)

	_, err = s.MarkInvoicePaid(ctx, "inv_missing", PaymentDetails{})
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestBillingHistoryNewestFirst(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	older, err := s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: sub.ID, InvoiceDate: testNow.AddDate(0, -1, 0)})
	require.NoError(t, err)
	newer, err := s.RecordInvoice(ctx, InvoiceInput{SubscriptionID: sub.ID, InvoiceDate: testNow})
	require.NoError(t, err)

	history, err := s.BillingHistory(ctx, "user-1", "MARKETFIT")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, newer.ID, history[0].ID)
	assert.Equal(t, older.ID, history[1].ID)

	other, err := s.BillingHistory(ctx, "user-2", "marketfit")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRefundLifecycle(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	refund, err := s.ScheduleRefund(ctx, RefundInput{
		SubscriptionID: sub.ID,
		PaymentID:      "pay_1",
		Amount:         decimal.RequireFromString("499.50"),
		Reason:         "duplicate charge",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusScheduled, refund.Status)
	assert.Equal(t, "INR", refund.Currency)

	pending, err := s.PendingRefunds(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = s.TransitionRefund(ctx, refund.ID, RefundUpdate{Status: "scheduled"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	processing, err := s.TransitionRefund(ctx, refund.ID, RefundUpdate{Status: "processing", ProcessedBy: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusProcessing, processing.Status)
	assert.Nil(t, processing.ProcessedAt)

	done, err := s.TransitionRefund(ctx, refund.ID, RefundUpdate{Status: "completed", ProcessedBy: "ops@example.com", AdminNotes: "refunded via dashboard"})
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusCompleted, done.Status)
	require.NotNil(t, done.ProcessedAt)
	require.NotNil(t, done.AdminNotes)

	_, err = s.TransitionRefund(ctx, refund.ID, RefundUpdate{Status: "failed"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.TransitionRefund(ctx, "refund_missing", RefundUpdate{Status: "failed"})
	assert.ErrorIs(t, err, ErrRefundNotFound)

	pending, err = s.PendingRefunds(ctx, "scheduled")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestScheduleRefundRequiresPositiveAmount(t *testing.T) {
	s, _ := newTestService(t)
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	_, err := s.ScheduleRefund(context.Background(), RefundInput{SubscriptionID: sub.ID, Amount: decimal.Zero})
	assert.Error(t, err)
}

func TestRecordOffer(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	offer, err := s.RecordOffer(ctx, OfferInput{
		SubscriptionID:     sub.ID,
		OfferID:            "offer_launch",
		DiscountPercentage: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	assert.True(t, offer.OriginalAmount.Equal(decimal.NewFromInt(999)))
	assert.True(t, offer.DiscountedAmount.Equal(decimal.RequireFromString("799.20")))

	_, err = s.RecordOffer(ctx, OfferInput{SubscriptionID: sub.ID, OfferID: "offer_bad", DiscountPercentage: decimal.NewFromInt(120)})
	assert.Error(t, err)

	require.NoError(t, s.RemoveOffer(ctx, sub.ID, offer.ID))
	assert.ErrorIs(t, s.RemoveOffer(ctx, sub.ID, offer.ID), ErrInvalidTransition)
	assert.ErrorIs(t, s.RemoveOffer(ctx, sub.ID, "offer_missing"), ErrOfferNotFound)

	offers, err := s.Offers(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, models.OfferStatusRemoved, offers[0].Status)
}

func TestRecordOfferRequiresRazorpay(t *testing.T) {
	s, _ := newTestService(t)
	sub, err := s.CreateSubscription(context.Background(), CreateSubscriptionInput{
		UserID: "user-1", AppID: "marketfit", PlanID: goldMonthlyUSD, Gateway: "paypal", GatewaySubscriptionID: "I-PAYPAL1",
	})
	require.NoError(t, err)

	_, err = s.RecordOffer(context.Background(), OfferInput{SubscriptionID: sub.ID, OfferID: "offer_x", DiscountPercentage: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, ErrGatewayNotSupported)
}

func TestAuditAndEventLog(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.LogAction(ctx, "sub_gone", "manual_note", map[string]interface{}{"note": "kept after delete"}, "admin"))
	logs, err := s.AuditLog(ctx, "sub_gone", 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].InitiatedBy)
	details, err := logs[0].Details.Map()
	require.NoError(t, err)
	assert.Equal(t, "kept after delete", details["note"])

	entry, err := s.LogEvent(ctx, "subscription.charged", "razorpay", "sub_rzp_1", "user-1", map[string]interface{}{"amount": 99900})
	require.NoError(t, err)
	require.NotNil(t, entry.RazorpayEntityID)
	assert.Nil(t, entry.PaypalEntityID)
	require.NoError(t, s.MarkEventProcessed(ctx, entry.ID))

	events, err := s.EntityEvents(ctx, "razorpay", "sub_rzp_1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Processed)

	_, err = s.LogEvent(ctx, "x", "stripe", "id", "", nil)
	assert.ErrorIs(t, err, ErrGatewayNotSupported)
	assert.Error(t, s.LogAction(ctx, "", "x", nil, ""))
}

func TestPeriodStartsAreUTC(t *testing.T) {
	local := time.FixedZone("IST", 5*3600+1800)
	s, _ := newTestService(t)
	sub := createRazorpaySub(t, s, "user-1", goldMonthly, "sub_rzp_1")

	got, err := s.ActivateSubscription(context.Background(), sub.ID, time.Date(2025, 3, 1, 5, 30, 0, 0, local))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.CurrentPeriodStart.Location())
	assert.True(t, got.CurrentPeriodStart.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
}
