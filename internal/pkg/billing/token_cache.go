package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
	"github.com/ManuelReschke/BillingStore/internal/pkg/security"
)

// DefaultTokenLifetime applies when the gateway omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

const tokenKeyPrefix = "paypal:token:"

// TokenCache keeps gateway OAuth tokens per environment. Redis, when
// configured, fronts the paypal_access_tokens table. Tokens are sealed
// before they are written to either store.
type TokenCache struct {
	db    *gorm.DB
	redis *redis.Client
	box   *security.TokenBox
	now   func() time.Time
}

// NewTokenCache creates a token cache. rdb may be nil.
func NewTokenCache(db *gorm.DB, box *security.TokenBox, rdb *redis.Client) *TokenCache {
	return &TokenCache{
		db:    db,
		redis: rdb,
		box:   box,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func tokenKey(env string) string {
	return tokenKeyPrefix + env
}

func normalizeEnvironment(env string) string {
	e := strings.ToLower(strings.TrimSpace(env))
	if e == "" {
		return "sandbox"
	}
	return e
}

// Get returns a token for env that stays valid for longer than the refresh
// buffer, or ErrTokenNotCached.
func (c *TokenCache) Get(ctx context.Context, env string) (string, error) {
	env = normalizeEnvironment(env)

	if c.redis != nil {
		sealed, err := c.redis.Get(ctx, tokenKey(env)).Result()
		switch {
		case err == nil:
			if token, err := c.box.Open(sealed); err == nil {
				return token, nil
			}
			log.Warnf("[TokenCache] Discarding unreadable cached token for %s", env)
			c.redis.Del(ctx, tokenKey(env))
		case !errors.Is(err, redis.Nil):
			log.Warnf("[TokenCache] Redis lookup failed, using database: %v", err)
		}
	}

	row, err := repository.NewTokenRepository(c.db.WithContext(ctx)).GetLatestUsable(env, c.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrTokenNotCached
	}
	if err != nil {
		return "", err
	}
	token, err := c.box.Open(row.AccessToken)
	if err != nil {
		return "", err
	}
	c.warm(ctx, env, row.AccessToken, row.ExpiresAt)
	return token, nil
}

// Put stores a freshly issued token. expiresIn of zero or less means
// DefaultTokenLifetime.
func (c *TokenCache) Put(ctx context.Context, env, token, tokenType string, expiresIn time.Duration) (*models.PaypalAccessToken, error) {
	env = normalizeEnvironment(env)
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("access token is required")
	}
	if expiresIn <= 0 {
		expiresIn = DefaultTokenLifetime
	}
	if tokenType = strings.TrimSpace(tokenType); tokenType == "" {
		tokenType = "Bearer"
	}

	sealed, err := c.box.Seal(token)
	if err != nil {
		return nil, err
	}
	row := &models.PaypalAccessToken{
		Environment: env,
		AccessToken: sealed,
		TokenType:   tokenType,
		ExpiresAt:   c.now().Add(expiresIn),
	}
	if err := repository.NewTokenRepository(c.db.WithContext(ctx)).Save(row); err != nil {
		return nil, err
	}
	c.warm(ctx, env, sealed, row.ExpiresAt)
	return row, nil
}

// warm copies a sealed token into Redis until it enters the refresh buffer.
func (c *TokenCache) warm(ctx context.Context, env, sealed string, expiresAt time.Time) {
	if c.redis == nil {
		return
	}
	ttl := expiresAt.Sub(c.now()) - models.TokenRefreshBuffer
	if ttl <= 0 {
		return
	}
	if err := c.redis.Set(ctx, tokenKey(env), sealed, ttl).Err(); err != nil {
		log.Warnf("[TokenCache] Failed to cache token for %s: %v", env, err)
	}
}

// Purge deletes expired tokens from the table and returns how many were removed.
func (c *TokenCache) Purge(ctx context.Context) (int64, error) {
	n, err := repository.NewTokenRepository(c.db.WithContext(ctx)).DeleteExpired(c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[TokenCache] Purged %d expired tokens", n)
	}
	return n, nil
}

// Invalidate drops the Redis copy of env's token, forcing the next Get to
// read the table.
func (c *TokenCache) Invalidate(ctx context.Context, env string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, tokenKey(normalizeEnvironment(env))).Err()
}
