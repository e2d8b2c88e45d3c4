package billing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BillingStore/app/models"
)

func TestRazorpayEventID(t *testing.T) {
	assert.Equal(t, "razorpay_subscription.charged_sub_123_1700000000", RazorpayEventID("subscription.charged", "sub_123", "1700000000"))
	assert.Equal(t, "razorpay_payment.failed_1700000000", RazorpayEventID("payment.failed", "", "1700000000"))
}

func TestRazorpayEventIDFromPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{
			name:    "subscription entity",
			payload: `{"event":"subscription.activated","created_at":1700000000,"payload":{"subscription":{"entity":{"id":"sub_ABC"}}}}`,
			want:    "razorpay_subscription.activated_sub_ABC_1700000000",
		},
		{
			name:    "subscription without entity wrapper",
			payload: `{"event":"subscription.halted","created_at":1700000001,"payload":{"subscription":{"id":"sub_DEF"}}}`,
			want:    "razorpay_subscription.halted_sub_DEF_1700000001",
		},
		{
			name:    "no subscription",
			payload: `{"event":"payment.captured","created_at":1700000002,"payload":{"payment":{"entity":{"id":"pay_1"}}}}`,
			want:    "razorpay_payment.captured_1700000002",
		},
		{
			name:    "missing created_at",
			payload: `{"event":"payment.captured"}`,
			want:    "razorpay_payment.captured_",
		},
		{
			name:    "no event",
			payload: `{"created_at":1}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `event=x`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RazorpayEventIDFromPayload([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventIDFor(t *testing.T) {
	assert.Equal(t, "WH-1", EventIDFor(WebhookDelivery{Provider: "paypal", EventID: " WH-1 "}))
	assert.Equal(t, "razorpay_payment.failed_5", EventIDFor(WebhookDelivery{Provider: "razorpay", Payload: []byte(`{"event":"payment.failed","created_at":5}`)}))

	hashed := EventIDFor(WebhookDelivery{Provider: "paypal", Payload: []byte(`{"a":1}`)})
	assert.True(t, strings.HasPrefix(hashed, "hash:"))
	assert.Len(t, hashed, len("hash:")+64)
	assert.Equal(t, hashed, EventIDFor(WebhookDelivery{Provider: "paypal", Payload: []byte(`{"a":1}`)}))
}

func TestBeginWebhookIsIdempotent(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := newTestService(t, WithRecorder(rec))
	ctx := context.Background()
	d := WebhookDelivery{
		Provider: "razorpay",
		Payload:  []byte(`{"event":"subscription.charged","created_at":1700000000,"payload":{"subscription":{"entity":{"id":"sub_1"}}}}`),
	}

	isNew, eventID, err := s.BeginWebhook(ctx, d)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "razorpay_subscription.charged_sub_1_1700000000", eventID)

	isNew, _, err = s.BeginWebhook(ctx, d)
	require.NoError(t, err)
	assert.False(t, isNew)

	// Same id from another provider is a different event.
	isNew, _, err = s.BeginWebhook(ctx, WebhookDelivery{Provider: "paypal", EventID: eventID})
	require.NoError(t, err)
	assert.True(t, isNew)

	processed, err := s.WebhookProcessed(ctx, "razorpay", eventID)
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, 1, rec.get("razorpay:"+OutcomeAccepted))
	assert.Equal(t, 1, rec.get("razorpay:"+OutcomeDuplicate))
	assert.Equal(t, 1, rec.get("paypal:"+OutcomeAccepted))

	_, _, err = s.BeginWebhook(ctx, WebhookDelivery{Provider: "stripe", EventID: "evt_1"})
	assert.ErrorIs(t, err, ErrGatewayNotSupported)
}

func TestCompleteWebhookReleasesFailedEvents(t *testing.T) {
	rec := &fakeRecorder{}
	s, db := newTestService(t, WithRecorder(rec))
	ctx := context.Background()
	d := WebhookDelivery{
		Provider:     "paypal",
		EventID:      "WH-55",
		EventType:    "BILLING.SUBSCRIPTION.ACTIVATED",
		ResourceType: "subscription",
		ResourceID:   "I-SUB1",
		Payload:      []byte(`{"id":"WH-55","event_type":"BILLING.SUBSCRIPTION.ACTIVATED"}`),
	}

	isNew, eventID, err := s.BeginWebhook(ctx, d)
	require.NoError(t, err)
	require.True(t, isNew)

	require.NoError(t, s.CompleteWebhook(ctx, "paypal", eventID, errors.New("plan lookup failed")))
	var stored models.PaypalWebhookEvent
	require.NoError(t, db.Where("event_id = ?", eventID).First(&stored).Error)
	assert.False(t, stored.Processed)
	assert.Equal(t, "plan lookup failed", stored.ProcessingError)
	assert.Equal(t, "I-SUB1", stored.ResourceID)
	assert.Equal(t, 1, rec.get("paypal:"+OutcomeFailed))

	processed, err := s.WebhookProcessed(ctx, "paypal", eventID)
	require.NoError(t, err)
	assert.False(t, processed)

	// The gateway's retry is handled again.
	isNew, _, err = s.BeginWebhook(ctx, d)
	require.NoError(t, err)
	require.True(t, isNew)
	require.NoError(t, s.CompleteWebhook(ctx, "paypal", eventID, nil))

	require.NoError(t, db.Where("event_id = ?", eventID).First(&stored).Error)
	assert.True(t, stored.Processed)
	assert.Empty(t, stored.ProcessingError)
	require.NotNil(t, stored.ProcessedAt)

	var count int64
	require.NoError(t, db.Model(&models.PaypalWebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBeginWebhookStoresNonJSONPayload(t *testing.T) {
	s, db := newTestService(t)
	isNew, eventID, err := s.BeginWebhook(context.Background(), WebhookDelivery{Provider: "paypal", Payload: []byte("not json")})
	require.NoError(t, err)
	assert.True(t, isNew)

	var stored models.PaypalWebhookEvent
	require.NoError(t, db.Where("event_id = ?", eventID).First(&stored).Error)
	assert.Equal(t, `"not json"`, string(stored.Payload))
}
