package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only while it still carries our token.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Redis locks keys across executor replicas with SET NX and a TTL.
type Redis struct {
	rdb    redisClient
	config Config
	unlock *redis.Script
}

func NewRedis(ctx context.Context, config Config) (*Redis, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return newRedisWithClient(rdb, config), nil
}

func newRedisWithClient(rdb redisClient, config Config) *Redis {
	if config.RetryWait <= 0 {
		config.RetryWait = 100 * time.Millisecond
	}
	return &Redis{rdb: rdb, config: config, unlock: redis.NewScript(unlockScript)}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := r.config.Prefix + key

	for {
		ok, err := r.rdb.SetNX(ctx, lk, token, r.config.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.config.RetryWait):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlock.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}
