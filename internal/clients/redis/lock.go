package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dermalens/dermalens-backend/internal/logger"
)

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type UserLock interface {
	Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

type userLock struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewUserLock connects to REDIS_ADDR and hands out per-user mutual exclusion
// for plan writes. Fails when REDIS_ADDR is unset; callers fall back to the
// in-process locker in that case.
func NewUserLock(log *logger.Logger) (UserLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	prefix := strings.TrimSpace(os.Getenv("REDIS_LOCK_PREFIX"))
	if prefix == "" {
		prefix = "planlock"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &userLock{
		log:    log.With("service", "RedisUserLock"),
		rdb:    rdb,
		prefix: prefix,
	}, nil
}

func (l *userLock) Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.rdb == nil {
		return nil, false, fmt.Errorf("redis user lock not initialized")
	}

	key := fmt.Sprintf("%s:%s", l.prefix, userID)
	owner := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.rdb, []string{key}, owner).Err(); err != nil {
			l.log.Warn("Failed to release user lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}

func (l *userLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
