package kvstore

import "context"

// KV is the minimal capability surface the store engine needs from a backing
// store: byte-valued strings, one sorted set and one list per key, and an
// existence check. Redis satisfies it natively; MemoryKV is the in-process
// implementation used by tests and the "memory" store plugin.
//
// The engine never assumes cross-key transactions. LPos must resolve
// server-side in a single round trip so the idempotent-append check stays as
// narrow as the backend allows.
type KV interface {
	// Get returns the value at key, or nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// MGet returns one value per key, nil for absent keys.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	ZAdd(ctx context.Context, key, member string, score float64) error
	// ZRange returns all members ascending by (score, member). A missing key
	// yields an empty slice.
	ZRange(ctx context.Context, key string) ([]string, error)
	ZRem(ctx context.Context, key, member string) error

	RPush(ctx context.Context, key, value string) error
	// LRange returns the whole list. A missing key yields an empty slice.
	LRange(ctx context.Context, key string) ([]string, error)
	// LRem removes every occurrence of value from the list.
	LRem(ctx context.Context, key, value string) error
	// LPos returns the first position of value, or ok=false when absent.
	LPos(ctx context.Context, key, value string) (int64, bool, error)

	Close() error
}
