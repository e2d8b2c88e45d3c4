package billing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
)

// RazorpayEventID derives an idempotency key for Razorpay deliveries, which
// carry no event id of their own.
func RazorpayEventID(event, subscriptionID, createdAt string) string {
	if subscriptionID == "" {
		return "razorpay_" + event + "_" + createdAt
	}
	return "razorpay_" + event + "_" + subscriptionID + "_" + createdAt
}

type razorpayEnvelope struct {
	Event     string          `json:"event"`
	CreatedAt json.RawMessage `json:"created_at"`
	Payload   struct {
		Subscription *struct {
			ID     string `json:"id"`
			Entity *struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

// RazorpayEventIDFromPayload reads event, created_at and the subscription id
// from a Razorpay webhook body and derives its idempotency key.
func RazorpayEventIDFromPayload(payload []byte) (string, error) {
	var env razorpayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", err
	}
	if env.Event == "" {
		return "", errors.New("razorpay payload has no event")
	}
	createdAt := strings.Trim(string(bytes.TrimSpace(env.CreatedAt)), `"`)
	if createdAt == "null" {
		createdAt = ""
	}

	subID := ""
	if sub := env.Payload.Subscription; sub != nil {
		if sub.Entity != nil {
			subID = sub.Entity.ID
		} else {
			subID = sub.ID
		}
	}
	return RazorpayEventID(env.Event, subID, createdAt), nil
}

// payloadHashID identifies deliveries that carry no usable id.
func payloadHashID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

// EventIDFor returns the idempotency key of a delivery: its own id, the
// derived Razorpay key, or a payload hash.
func EventIDFor(d WebhookDelivery) string {
	if id := strings.TrimSpace(d.EventID); id != "" {
		return id
	}
	if normalizeGateway(d.Provider) == models.GatewayRazorpay {
		if id, err := RazorpayEventIDFromPayload(d.Payload); err == nil {
			return id
		}
	}
	return payloadHashID(d.Payload)
}

func payloadJSON(payload []byte) (models.JSON, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if json.Valid(payload) {
		return models.JSON(payload), nil
	}
	return models.NewJSON(string(payload))
}

// BeginWebhook claims a delivery. It returns true and the event's key when
// this call is the first to see the event, and false for redeliveries.
// PayPal deliveries are also stored in full.
func (s *Service) BeginWebhook(ctx context.Context, d WebhookDelivery) (bool, string, error) {
	provider := normalizeGateway(d.Provider)
	if provider == "" {
		return false, "", errors.New("provider is required")
	}
	if !isKnownGateway(provider) {
		return false, "", ErrGatewayNotSupported
	}
	eventID := EventIDFor(d)

	created := false
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		if provider == models.GatewayPaypal {
			payload, err := payloadJSON(d.Payload)
			if err != nil {
				return err
			}
			if _, _, err := r.Webhook.RecordPaypalEventIfNotExists(&models.PaypalWebhookEvent{
				EventID:      eventID,
				EventType:    strings.TrimSpace(d.EventType),
				ResourceType: strings.TrimSpace(d.ResourceType),
				ResourceID:   strings.TrimSpace(d.ResourceID),
				Payload:      payload,
			}); err != nil {
				return err
			}
		}
		var err error
		created, err = r.Webhook.MarkProcessedIfNotExists(eventID, provider, s.now())
		return err
	})
	if err != nil {
		return false, "", err
	}

	if created {
		s.record(ctx, provider, OutcomeAccepted)
	} else {
		log.Infof("[Billing] %s event %s already processed", provider, eventID)
		s.record(ctx, provider, OutcomeDuplicate)
	}
	return created, eventID, nil
}

// CompleteWebhook finishes a delivery claimed by BeginWebhook. When handling
// failed the claim is released so the gateway's retry is processed again.
func (s *Service) CompleteWebhook(ctx context.Context, provider, eventID string, processingErr error) error {
	p := normalizeGateway(provider)
	eventID = strings.TrimSpace(eventID)
	if p == "" || eventID == "" {
		return errors.New("provider and event_id are required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}

	err := s.inTx(ctx, func(r *repository.Repositories) error {
		if p == models.GatewayPaypal {
			if err := r.Webhook.MarkPaypalEventProcessed(eventID, errMsg, s.now()); err != nil {
				return err
			}
		}
		if processingErr != nil {
			return r.Webhook.Unmark(eventID, p)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if processingErr != nil {
		log.Errorf("[Billing] Failed to process %s event %s: %v", p, eventID, processingErr)
		s.record(ctx, p, OutcomeFailed)
	}
	return nil
}

// WebhookProcessed reports whether an event has been claimed.
func (s *Service) WebhookProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.repos(ctx).Webhook.IsProcessed(strings.TrimSpace(eventID), normalizeGateway(provider))
}
