package staging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pending_signup:v1:"

// RedisStore is the ephemeral tier. Records expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore builds the ephemeral staging store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func redisKey(identityID string) string {
	return redisKeyPrefix + identityID
}

// Upsert stores the record and resets its expiry.
func (s *RedisStore) Upsert(ctx context.Context, pending PendingSignup) error {
	now := s.now().UTC()
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = now
	}
	pending.UpdatedAt = now
	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(pending.IdentityID), payload, s.ttl).Err()
}

// Get loads the record for identityID.
func (s *RedisStore) Get(ctx context.Context, identityID string) (PendingSignup, error) {
	raw, err := s.client.Get(ctx, redisKey(identityID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PendingSignup{}, ErrNotFound
	}
	if err != nil {
		return PendingSignup{}, err
	}
	var pending PendingSignup
	if err := json.Unmarshal(raw, &pending); err != nil {
		return PendingSignup{}, err
	}
	return pending, nil
}

// Delete removes the record if present.
func (s *RedisStore) Delete(ctx context.Context, identityID string) error {
	return s.client.Del(ctx, redisKey(identityID)).Err()
}
