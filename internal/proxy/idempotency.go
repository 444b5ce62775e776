package proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyKeyPrefix = "signup:stageA:"

// RedisIdempotency maps a set of signup credentials to the affiliate staged
// for them. Keys hold a digest, never the e-mail or password.
type RedisIdempotency struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.Cmdable, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

// IdempotencyKey binds the lower-cased e-mail to the exact password, so a
// repeat request only matches when both are the same.
func IdempotencyKey(email, password string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email)) + "\x00" + password))
	return idempotencyKeyPrefix + hex.EncodeToString(sum[:])
}

func (r *RedisIdempotency) Lookup(ctx context.Context, email, password string) (string, bool, error) {
	id, err := r.client.Get(ctx, IdempotencyKey(email, password)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return id, id != "", nil
}

// Remember points the credentials at the latest affiliate staged for them.
func (r *RedisIdempotency) Remember(ctx context.Context, email, password, affiliateID string) error {
	if affiliateID == "" {
		return nil
	}
	if err := r.client.Set(ctx, IdempotencyKey(email, password), affiliateID, r.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}
