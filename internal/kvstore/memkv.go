package kvstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryKV is an in-process KV implementation backed by maps and a single
// mutex. It doubles as the test double for the store engine and as the backing
// store of the "memory" plugin for local development.
type MemoryKV struct {
	mu    sync.RWMutex
	kv    map[string][]byte
	zsets map[string]map[string]float64
	lists map[string][]string
}

// NewMemoryKV returns an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		kv:    map[string][]byte{},
		zsets: map[string]map[string]float64{},
		lists: map[string][]string{},
	}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.kv[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = stored
	return nil
}

func (m *MemoryKV) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		if value, ok := m.kv[key]; ok {
			copied := make([]byte, len(value))
			copy(copied, value)
			out[i] = copied
		}
	}
	return out, nil
}

func (m *MemoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.kv, key)
		delete(m.zsets, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.kv[key]; ok {
		return true, nil
	}
	if _, ok := m.zsets[key]; ok {
		return true, nil
	}
	_, ok := m.lists[key]
	return ok, nil
}

func (m *MemoryKV) ZAdd(_ context.Context, key, member string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	zset, ok := m.zsets[key]
	if !ok {
		zset = map[string]float64{}
		m.zsets[key] = zset
	}
	zset[member] = score
	return nil
}

func (m *MemoryKV) ZRange(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	zset := m.zsets[key]
	members := make([]string, 0, len(zset))
	for member := range zset {
		members = append(members, member)
	}
	// Ties broken by member, matching Redis sorted-set ordering.
	sort.Slice(members, func(i, j int) bool {
		if zset[members[i]] != zset[members[j]] {
			return zset[members[i]] < zset[members[j]]
		}
		return members[i] < members[j]
	})
	return members, nil
}

func (m *MemoryKV) ZRem(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if zset, ok := m.zsets[key]; ok {
		delete(zset, member)
		if len(zset) == 0 {
			delete(m.zsets, key)
		}
	}
	return nil
}

func (m *MemoryKV) RPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *MemoryKV) LRange(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[key]
	out := make([]string, len(list))
	copy(out, list)
	return out, nil
}

func (m *MemoryKV) LRem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.lists[key]
	if !ok {
		return nil
	}
	kept := list[:0]
	for _, current := range list {
		if current != value {
			kept = append(kept, current)
		}
	}
	if len(kept) == 0 {
		delete(m.lists, key)
	} else {
		m.lists[key] = kept
	}
	return nil
}

func (m *MemoryKV) LPos(_ context.Context, key, value string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, current := range m.lists[key] {
		if current == value {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (m *MemoryKV) Close() error {
	return nil
}

var _ KV = (*MemoryKV)(nil)
