package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "paylink/pkg/domain"
)

const observationKeyPrefix = "paylink:"

// RedisStore is the Redis-backed dedupe set. SETNX makes first-writer-wins
// atomic across instances; the TTL bounds memory for refs that never recur.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) MarkObserved(ctx context.Context, escrowID id.EscrowID, role, txRef string, ttl time.Duration) (bool, error) {
	k := observationKeyPrefix + key(escrowID, role, txRef)
	first, err := s.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("observation: setnx: %w", err)
	}
	return first, nil
}
