package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
	"github.com/ManuelReschke/BillingStore/internal/pkg/entitlements"
)

// RecordInvoice stores a charge attempt against a subscription. Amount and
// currency default to the subscription's plan.
func (s *Service) RecordInvoice(ctx context.Context, in InvoiceInput) (*models.SubscriptionInvoice, error) {
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}
	status := normalizeStatus(in.Status)
	if status == "" {
		status = models.InvoiceStatusCreated
	}

	var invoice *models.SubscriptionInvoice
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}

		amount, currency := in.Amount, strings.ToUpper(strings.TrimSpace(in.Currency))
		if amount.IsZero() || currency == "" {
			plan, err := r.Plan.GetByID(sub.PlanID)
			if err != nil {
				return notFound(err, ErrPlanNotFound)
			}
			if amount.IsZero() {
				amount = plan.Amount
			}
			if currency == "" {
				currency = plan.Currency
			}
		}

		date := in.InvoiceDate.UTC()
		if in.InvoiceDate.IsZero() {
			date = s.now()
		}
		invoice = &models.SubscriptionInvoice{
			ID:                newID(prefixInvoice),
			SubscriptionID:    sub.ID,
			UserID:            sub.UserID,
			AppID:             sub.AppID,
			RazorpayInvoiceID: models.StringPtr(in.RazorpayInvoiceID),
			PaypalPaymentID:   models.StringPtr(in.PaypalPaymentID),
			PaymentID:         models.StringPtr(in.PaymentID),
			PaymentMethod:     models.StringPtr(in.PaymentMethod),
			Amount:            amount,
			Currency:          currency,
			Status:            status,
			InvoiceDate:       date,
		}
		if status == models.InvoiceStatusPaid {
			paidAt := s.now()
			invoice.PaidAt = &paidAt
		}
		if err := invoice.Validate(); err != nil {
			return err
		}
		if err := r.Invoice.Create(invoice); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionInvoiceRecorded, map[string]interface{}{
			"invoice_id": invoice.ID,
			"amount":     invoice.Amount.StringFixed(2),
			"currency":   invoice.Currency,
			"status":     invoice.Status,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// MarkInvoicePaid settles an invoice still in the created state.
func (s *Service) MarkInvoicePaid(ctx context.Context, invoiceID string, details PaymentDetails) (*models.SubscriptionInvoice, error) {
	paidAt := s.now()
	updates := map[string]interface{}{
		"status":  models.InvoiceStatusPaid,
		"paid_at": paidAt,
	}
	if v := strings.TrimSpace(details.PaymentID); v != "" {
		updates["payment_id"] = v
	}
	if v := strings.TrimSpace(details.PaymentMethod); v != "" {
		updates["payment_method"] = v
	}
	return s.transitionInvoice(ctx, invoiceID, models.InvoiceStatusPaid, updates, ActionInvoicePaid)
}

// MarkInvoiceFailed records a failed charge for an invoice still in the created state.
func (s *Service) MarkInvoiceFailed(ctx context.Context, invoiceID string) (*models.SubscriptionInvoice, error) {
	return s.transitionInvoice(ctx, invoiceID, models.InvoiceStatusFailed, map[string]interface{}{
		"status": models.InvoiceStatusFailed,
	}, ActionInvoiceFailed)
}

func (s *Service) transitionInvoice(ctx context.Context, invoiceID, to string, updates map[string]interface{}, action string) (*models.SubscriptionInvoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, errors.New("invoice_id is required")
	}

	var invoice *models.SubscriptionInvoice
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		err := r.Invoice.TransitionStatus(invoiceID, []string{models.InvoiceStatusCreated}, updates)
		if errors.Is(err, repository.ErrStatusMismatch) {
			return fmt.Errorf("%w: invoice is no longer %s", ErrInvalidTransition, models.InvoiceStatusCreated)
		}
		if err != nil {
			return notFound(err, ErrInvoiceNotFound)
		}
		invoice, err = r.Invoice.GetByID(invoiceID)
		if err != nil {
			return err
		}
		return appendAudit(r, invoice.SubscriptionID, action, map[string]interface{}{
			"invoice_id": invoice.ID,
			"status":     to,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// BillingHistory lists a user's invoices for an app, newest first.
func (s *Service) BillingHistory(ctx context.Context, userID, appID string) ([]models.SubscriptionInvoice, error) {
	userID = strings.TrimSpace(userID)
	app := entitlements.NormalizeApp(appID)
	if userID == "" || app == "" {
		return nil, errors.New("user_id and app_id are required")
	}
	return s.repos(ctx).Invoice.ListByUserAndApp(userID, app)
}

// ScheduleRefund queues a refund for manual processing. The subscription must
// exist when the refund is scheduled, although the refund does not reference
// it with a foreign key.
func (s *Service) ScheduleRefund(ctx context.Context, in RefundInput) (*models.ManualRefund, error) {
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	if subscriptionID == "" {
		return nil, errors.New("subscription_id is required")
	}

	var refund *models.ManualRefund
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		currency := strings.ToUpper(strings.TrimSpace(in.Currency))
		if currency == "" {
			plan, err := r.Plan.GetByID(sub.PlanID)
			if err != nil {
				return notFound(err, ErrPlanNotFound)
			}
			currency = plan.Currency
		}
		scheduledAt := in.ScheduledAt.UTC()
		if in.ScheduledAt.IsZero() {
			scheduledAt = s.now()
		}

		refund = &models.ManualRefund{
			ID:             newID(prefixRefund),
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			AppID:          sub.AppID,
			PaymentID:      models.StringPtr(in.PaymentID),
			RefundAmount:   in.Amount,
			Currency:       currency,
			Reason:         strings.TrimSpace(in.Reason),
			Status:         models.RefundStatusScheduled,
			ScheduledAt:    scheduledAt,
		}
		if err := refund.Validate(); err != nil {
			return err
		}
		if err := r.Refund.Create(refund); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionRefundScheduled, map[string]interface{}{
			"refund_id": refund.ID,
			"amount":    refund.RefundAmount.StringFixed(2),
			"currency":  refund.Currency,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[Billing] Scheduled refund %s of %s %s for subscription %s", refund.ID, refund.RefundAmount.StringFixed(2), refund.Currency, refund.SubscriptionID)
	return refund, nil
}

// TransitionRefund moves a refund along scheduled -> processing -> completed|failed.
// Completed and failed refunds record who processed them and when.
func (s *Service) TransitionRefund(ctx context.Context, refundID string, in RefundUpdate) (*models.ManualRefund, error) {
	refundID = strings.TrimSpace(refundID)
	to := normalizeStatus(in.Status)
	if refundID == "" || to == "" {
		return nil, errors.New("refund_id and status are required")
	}
	from := models.RefundSourceStatuses(to)
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: no refund may move to %q", ErrInvalidTransition, to)
	}

	updates := map[string]interface{}{"status": to}
	if to == models.RefundStatusCompleted || to == models.RefundStatusFailed {
		updates["processed_at"] = s.now()
	}
	if v := strings.TrimSpace(in.ProcessedBy); v != "" {
		updates["processed_by"] = v
	}
	if v := strings.TrimSpace(in.AdminNotes); v != "" {
		updates["admin_notes"] = v
	}

	var refund *models.ManualRefund
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		err := r.Refund.TransitionStatus(refundID, from, updates)
		if errors.Is(err, repository.ErrStatusMismatch) {
			return fmt.Errorf("%w: refund cannot move to %s", ErrInvalidTransition, to)
		}
		if err != nil {
			return notFound(err, ErrRefundNotFound)
		}
		refund, err = r.Refund.GetByID(refundID)
		if err != nil {
			return err
		}
		return appendAudit(r, refund.SubscriptionID, ActionRefundUpdated, map[string]interface{}{
			"refund_id": refund.ID,
			"status":    to,
		}, in.ProcessedBy)
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// PendingRefunds lists refunds in a status, scheduled ones by default.
func (s *Service) PendingRefunds(ctx context.Context, status string) ([]models.ManualRefund, error) {
	st := normalizeStatus(status)
	if st == "" {
		st = models.RefundStatusScheduled
	}
	return s.repos(ctx).Refund.ListByStatus(st)
}

// RecordOffer applies a Razorpay offer to a subscription billed through Razorpay.
// The discounted amount is derived from the original amount and percentage.
func (s *Service) RecordOffer(ctx context.Context, in OfferInput) (*models.RazorpayOffer, error) {
	subscriptionID := strings.TrimSpace(in.SubscriptionID)
	offerID := strings.TrimSpace(in.OfferID)
	if subscriptionID == "" || offerID == "" {
		return nil, errors.New("subscription_id and offer_id are required")
	}

	var offer *models.RazorpayOffer
	err := s.inTx(ctx, func(r *repository.Repositories) error {
		sub, err := r.Subscription.GetByID(subscriptionID)
		if err != nil {
			return notFound(err, ErrSubscriptionNotFound)
		}
		if sub.Gateway() != models.GatewayRazorpay {
			return ErrGatewayNotSupported
		}
		original := in.OriginalAmount
		if original.IsZero() {
			plan, err := r.Plan.GetByID(sub.PlanID)
			if err != nil {
				return notFound(err, ErrPlanNotFound)
			}
			original = plan.Amount
		}

		offer = &models.RazorpayOffer{
			ID:                 newID(prefixOffer),
			SubscriptionID:     sub.ID,
			UserID:             sub.UserID,
			OfferID:            offerID,
			DiscountPercentage: in.DiscountPercentage,
			OriginalAmount:     original,
			DiscountedAmount:   models.DiscountedPrice(original, in.DiscountPercentage),
			Status:             models.OfferStatusApplied,
		}
		if err := offer.Validate(); err != nil {
			return err
		}
		if err := r.Offer.Create(offer); err != nil {
			return err
		}
		return appendAudit(r, sub.ID, ActionOfferApplied, map[string]interface{}{
			"offer_id":          offerID,
			"discounted_amount": offer.DiscountedAmount.StringFixed(2),
		}, "")
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// RemoveOffer marks an applied offer as removed.
func (s *Service) RemoveOffer(ctx context.Context, subscriptionID, offerRowID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	offerRowID = strings.TrimSpace(offerRowID)
	if subscriptionID == "" || offerRowID == "" {
		return errors.New("subscription_id and offer id are required")
	}
	return s.inTx(ctx, func(r *repository.Repositories) error {
		offers, err := r.Offer.ListBySubscription(subscriptionID)
		if err != nil {
			return err
		}
		for _, o := range offers {
			if o.ID != offerRowID {
				continue
			}
			if o.Status != models.OfferStatusApplied {
				return fmt.Errorf("%w: offer is %s", ErrInvalidTransition, o.Status)
			}
			if err := r.Offer.UpdateStatus(o.ID, models.OfferStatusRemoved); err != nil {
				return err
			}
			return appendAudit(r, subscriptionID, ActionOfferRemoved, map[string]interface{}{
				"offer_id": o.OfferID,
			}, "")
		}
		return ErrOfferNotFound
	})
}

// Offers lists the offers recorded for a subscription.
func (s *Service) Offers(ctx context.Context, subscriptionID string) ([]models.RazorpayOffer, error) {
	return s.repos(ctx).Offer.ListBySubscription(strings.TrimSpace(subscriptionID))
}
