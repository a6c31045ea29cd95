package jobcache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"autolecture/log"
)

const defaultRedisKey = "autolecture:jobs"

// RedisStore keeps every entry as a field of one hash. HSET only touches its
// own field, so concurrent writers from several hosts cannot clobber each other.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Get(ctx context.Context, sourceKey string) (string, bool) {
	id, err := s.client.HGet(ctx, s.key, sourceKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.GetLogger().Warn("[JobCache] redis lookup failed, treating as miss",
				zap.String("source_key", sourceKey), zap.Error(err))
		}
		return "", false
	}
	return id, true
}

func (s *RedisStore) Put(ctx context.Context, sourceKey, jobID string) error {
	return s.client.HSet(ctx, s.key, sourceKey, jobID).Err()
}
