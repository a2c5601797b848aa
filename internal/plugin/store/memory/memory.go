// Package memory provides an in-process thread store plugin. Useful for local
// development and tests; data does not survive a restart.
package memory

import (
	"context"

	"github.com/chirino/thread-service/internal/config"
	"github.com/chirino/thread-service/internal/kvstore"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "memory",
		Loader: load,
	})
}

func load(ctx context.Context) (registrystore.ThreadStore, error) {
	prefix := "chatkit"
	if cfg := config.FromContext(ctx); cfg != nil && cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix
	}
	return kvstore.New(kvstore.NewMemoryKV(), prefix), nil
}
