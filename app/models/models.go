package models

// All returns every billing model in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&SubscriptionPlan{},
		&UserSubscription{},
		&SubscriptionInvoice{},
		&ManualRefund{},
		&RazorpayOffer{},
		&ResourceUsage{},
		&SubscriptionUsage{},
		&ResourceAddon{},
		&SubscriptionEventLog{},
		&SubscriptionAuditLog{},
		&PaypalWebhookEvent{},
		&WebhookEventProcessed{},
		&PaypalAccessToken{},
	}
}
