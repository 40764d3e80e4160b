package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"talento-local/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "auth:introspect:"

// CachedVerifier keeps verified identities in Redis so that most requests skip introspection.
// Redis errors fall through to the wrapped verifier.
type CachedVerifier struct {
	next   Verifier
	redis  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewCachedVerifier(next Verifier, rdb redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedVerifier {
	return &CachedVerifier{next: next, redis: rdb, ttl: ttl, logger: log, now: time.Now}
}

func (c *CachedVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	key := cacheKey(token)

	if val, err := c.redis.Get(ctx, key).Result(); err == nil {
		var identity Identity
		if err := json.Unmarshal([]byte(val), &identity); err == nil {
			return &identity, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("identity cache read failed", map[string]interface{}{"error": err.Error()})
	}

	identity, err := c.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl
	if !identity.ExpiresAt.IsZero() {
		if remaining := identity.ExpiresAt.Sub(c.now()); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return identity, nil
	}

	data, _ := json.Marshal(identity)
	if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("identity cache write failed", map[string]interface{}{"error": err.Error()})
	}

	return identity, nil
}

// cacheKey never stores the raw token.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
