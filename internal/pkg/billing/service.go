package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DeliveryRecorder receives one call per webhook delivery that passed
// through the idempotency gate.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, provider, outcome string)
}

// Delivery outcomes reported to a DeliveryRecorder.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Service provides provider-neutral operations over the billing store.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	recorder DeliveryRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock used for timestamps and period math.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRecorder reports webhook deliveries to r.
func WithRecorder(r DeliveryRecorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a billing service from a GORM DB handle.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) record(ctx context.Context, provider, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordDelivery(ctx, provider, outcome)
	}
}
