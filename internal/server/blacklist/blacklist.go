// Package blacklist keeps revoked access tokens in Redis until they would
// have expired anyway.
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/retryx"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "authkeeper:bl:"

// RedisBlacklist stores one key per revoked token. Keys are derived from a
// SHA-256 digest so raw tokens never reach Redis.
type RedisBlacklist struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	policy     retryx.Policy
	logger     logging.Logger
}

func NewRedisBlacklist(client redis.UniversalClient, prefix string, defaultTTL time.Duration, policy retryx.Policy, logger logging.Logger) *RedisBlacklist {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	if policy == (retryx.Policy{}) {
		policy = retryx.DefaultPolicy
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &RedisBlacklist{client: client, prefix: prefix, defaultTTL: defaultTTL, policy: policy, logger: logger}
}

func (b *RedisBlacklist) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return b.prefix + hex.EncodeToString(sum[:])
}

// Blacklist marks token as revoked for ttl. A non-positive ttl means the
// configured default. Blacklisting twice just refreshes the entry.
func (b *RedisBlacklist) Blacklist(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", common.ErrInvalidArgument)
	}
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	key := b.key(token)
	err := retryx.Do(ctx, b.policy, func(ctx context.Context) error {
		return b.client.Set(ctx, key, "1", ttl).Err()
	})
	if err != nil {
		b.logger.Error(ctx, "blacklist write failed", "error", err)
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether token has a live blacklist entry. It never
// answers false when the store could not be reached.
func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	key := b.key(token)
	var n int64
	err := retryx.Do(ctx, b.policy, func(ctx context.Context) error {
		var err error
		n, err = b.client.Exists(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			n, err = 0, nil
		}
		return err
	})
	if err != nil {
		b.logger.Error(ctx, "blacklist lookup failed", "error", err)
		return false, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Ping checks connectivity; used by readiness checks.
func (b *RedisBlacklist) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	return nil
}
