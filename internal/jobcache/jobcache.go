// Package jobcache remembers which remote summarization job was created for
// which source, so a source is never submitted twice while its job is usable.
package jobcache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Cache maps a source key to a remote job id. There is no delete: a stale id
// is replaced by the next Put for the same key.
type Cache interface {
	// Get reports a miss when the key is absent or the store cannot be read.
	Get(ctx context.Context, sourceKey string) (string, bool)
	// Put merges one entry into the store, keeping every other entry.
	Put(ctx context.Context, sourceKey, jobID string) error
}

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Options struct {
	Backend  string
	DB       *gorm.DB
	FilePath string
	Redis    redis.UniversalClient
	RedisKey string
}

// Open builds the cache selected by opts.Backend.
func Open(opts Options) (Cache, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		if opts.DB == nil {
			return nil, fmt.Errorf("jobcache: sqlite backend needs a database")
		}
		return NewSQLStore(opts.DB)
	case BackendFile:
		if opts.FilePath == "" {
			return nil, fmt.Errorf("jobcache: file backend needs a path")
		}
		return NewFileStore(opts.FilePath), nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("jobcache: redis backend needs a client")
		}
		return NewRedisStore(opts.Redis, opts.RedisKey), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("jobcache: unknown backend %q", opts.Backend)
	}
}
