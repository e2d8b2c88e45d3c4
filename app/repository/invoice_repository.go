package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/BillingStore/app/models"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create inserts a new invoice
func (r *invoiceRepository) Create(invoice *models.SubscriptionInvoice) error {
	return r.db.Omit(clause.Associations).Create(invoice).Error
}

// GetByID retrieves an invoice by its id
func (r *invoiceRepository) GetByID(id string) (*models.SubscriptionInvoice, error) {
	var invoice models.SubscriptionInvoice
	err := r.db.Where("id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListByUserAndApp returns the billing history of a user for an app, newest first.
// Invoices are matched through their subscription's app.
func (r *invoiceRepository) ListByUserAndApp(userID, appID string) ([]models.SubscriptionInvoice, error) {
	var invoices []models.SubscriptionInvoice
	err := r.db.Model(&models.SubscriptionInvoice{}).
		Select("subscription_invoices.*").
		Joins("JOIN user_subscriptions ON user_subscriptions.id = subscription_invoices.subscription_id").
		Where("subscription_invoices.user_id = ? AND user_subscriptions.app_id = ?", userID, appID).
		Order("subscription_invoices.invoice_date DESC").
		Find(&invoices).Error
	return invoices, err
}

// ListBySubscription retrieves the invoices of a subscription, newest first
func (r *invoiceRepository) ListBySubscription(subscriptionID string) ([]models.SubscriptionInvoice, error) {
	var invoices []models.SubscriptionInvoice
	err := r.db.Where("subscription_id = ?", subscriptionID).
		Order("invoice_date DESC").
		Find(&invoices).Error
	return invoices, err
}

// TransitionStatus applies updates only while the invoice is in one of the from statuses
func (r *invoiceRepository) TransitionStatus(id string, from []string, updates map[string]interface{}) error {
	return transition(r.db, &models.SubscriptionInvoice{}, id, from, updates)
}

// transition is a compare-and-set update on the status column.
func transition(db *gorm.DB, model interface{}, id string, from []string, updates map[string]interface{}) error {
	res := db.Model(model).Where("id = ? AND status IN ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if err := ensureExists(db, model, id); err != nil {
		return err
	}
	return ErrStatusMismatch
}
