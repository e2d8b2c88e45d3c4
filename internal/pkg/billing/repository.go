package billing

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/repository"
)

// repos returns repositories bound to ctx outside of any transaction.
func (s *Service) repos(ctx context.Context) *repository.Repositories {
	return repository.NewRepositories(s.db.WithContext(ctx))
}

// inTx runs fn with repositories bound to a single transaction.
func (s *Service) inTx(ctx context.Context, fn func(r *repository.Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.NewRepositories(tx))
	})
}

// notFound maps gorm.ErrRecordNotFound to sentinel and passes other errors through.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
