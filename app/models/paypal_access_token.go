package models

import "time"

// TokenRefreshBuffer is how long before expiry a cached token stops being handed out.
const TokenRefreshBuffer = 5 * time.Minute

// PaypalAccessToken caches an OAuth bearer token per PayPal environment.
// AccessToken holds the sealed token, never the plaintext.
type PaypalAccessToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Environment string    `gorm:"type:varchar(20);not null;index:idx_paypal_access_tokens_env_expiry,priority:1" json:"environment"`
	AccessToken string    `gorm:"type:text;not null" json:"-"`
	TokenType   string    `gorm:"type:varchar(20);not null;default:'Bearer'" json:"token_type"`
	ExpiresAt   time.Time `gorm:"not null;index:idx_paypal_access_tokens_env_expiry,priority:2" json:"expires_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (PaypalAccessToken) TableName() string {
	return "paypal_access_tokens"
}

// UsableAt reports whether the token may still be handed out at t.
func (t *PaypalAccessToken) UsableAt(now time.Time) bool {
	return now.Before(t.ExpiresAt.Add(-TokenRefreshBuffer))
}
