// Package redis provides the Redis-backed thread store plugin. It adapts a
// go-redis client to the kvstore capability interface; all store semantics
// live in the shared engine.
package redis

import (
	"context"
	"fmt"

	"github.com/chirino/thread-service/internal/config"
	"github.com/chirino/thread-service/internal/kvstore"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
	goredis "github.com/redis/go-redis/v9"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrystore.ThreadStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis store: THREAD_SERVICE_REDIS_URL is required")
	}
	return LoadFromURL(ctx, cfg.RedisURL, cfg.KeyPrefix)
}

// LoadFromURL creates a ThreadStore from a Redis-compatible URL. Exported so
// tests and embedding applications can construct the store directly.
func LoadFromURL(ctx context.Context, redisURL, keyPrefix string) (registrystore.ThreadStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	return LoadFromOptions(ctx, opts, keyPrefix)
}

// LoadFromOptions creates a ThreadStore from go-redis Options, allowing
// callers to customize the client (e.g. TLS, pool sizing).
func LoadFromOptions(ctx context.Context, opts *goredis.Options, keyPrefix string) (registrystore.ThreadStore, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis store: ping failed: %w", err)
	}
	return kvstore.New(&redisKV{client: client}, keyPrefix), nil
}

// redisKV maps the kvstore capability interface onto go-redis commands.
// Absent keys are reported as nil values rather than goredis.Nil errors.
type redisKV struct {
	client *goredis.Client
}

func (r *redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *redisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

func (r *redisKV) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(values))
	for i, value := range values {
		if s, ok := value.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *redisKV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisKV) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (r *redisKV) ZAdd(ctx context.Context, key, member string, score float64) error {
	return r.client.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (r *redisKV) ZRange(ctx context.Context, key string) ([]string, error) {
	return r.client.ZRange(ctx, key, 0, -1).Result()
}

func (r *redisKV) ZRem(ctx context.Context, key, member string) error {
	return r.client.ZRem(ctx, key, member).Err()
}

func (r *redisKV) RPush(ctx context.Context, key, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

func (r *redisKV) LRange(ctx context.Context, key string) ([]string, error) {
	return r.client.LRange(ctx, key, 0, -1).Result()
}

func (r *redisKV) LRem(ctx context.Context, key, value string) error {
	// count=0 removes every occurrence.
	return r.client.LRem(ctx, key, 0, value).Err()
}

func (r *redisKV) LPos(ctx context.Context, key, value string) (int64, bool, error) {
	pos, err := r.client.LPos(ctx, key, value, goredis.LPosArgs{}).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pos, true, nil
}

func (r *redisKV) Close() error {
	return r.client.Close()
}

var _ kvstore.KV = (*redisKV)(nil)
