// Package metrics decorates a ThreadStore with Prometheus latency metrics.
package metrics

import (
	"context"
	"time"

	"github.com/chirino/thread-service/internal/model"
	"github.com/chirino/thread-service/internal/registry/store"
	"github.com/chirino/thread-service/internal/security"
)

// Wrap returns a ThreadStore that records StoreLatency for every operation.
func Wrap(inner store.ThreadStore) store.ThreadStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ThreadStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency != nil {
		security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metricsStore) LoadThread(ctx context.Context, threadID string) (*model.ThreadMetadata, error) {
	defer observe("load_thread", time.Now())
	return m.inner.LoadThread(ctx, threadID)
}

func (m *metricsStore) SaveThread(ctx context.Context, metadata *model.ThreadMetadata) error {
	defer observe("save_thread", time.Now())
	return m.inner.SaveThread(ctx, metadata)
}

func (m *metricsStore) LoadThreads(ctx context.Context, limit int, after *string, order store.Order) (*store.ThreadPage, error) {
	defer observe("load_threads", time.Now())
	return m.inner.LoadThreads(ctx, limit, after, order)
}

func (m *metricsStore) DeleteThread(ctx context.Context, threadID string) error {
	defer observe("delete_thread", time.Now())
	return m.inner.DeleteThread(ctx, threadID)
}

func (m *metricsStore) AddThreadItem(ctx context.Context, threadID string, item *model.ThreadItem) error {
	defer observe("add_thread_item", time.Now())
	return m.inner.AddThreadItem(ctx, threadID, item)
}

func (m *metricsStore) SaveItem(ctx context.Context, threadID string, item *model.ThreadItem) error {
	defer observe("save_item", time.Now())
	return m.inner.SaveItem(ctx, threadID, item)
}

func (m *metricsStore) LoadThreadItems(ctx context.Context, threadID string, after *string, limit int, order store.Order) (*store.ItemPage, error) {
	defer observe("load_thread_items", time.Now())
	return m.inner.LoadThreadItems(ctx, threadID, after, limit, order)
}

func (m *metricsStore) LoadItem(ctx context.Context, threadID, itemID string) (*model.ThreadItem, error) {
	defer observe("load_item", time.Now())
	return m.inner.LoadItem(ctx, threadID, itemID)
}

func (m *metricsStore) DeleteThreadItem(ctx context.Context, threadID, itemID string) error {
	defer observe("delete_thread_item", time.Now())
	return m.inner.DeleteThreadItem(ctx, threadID, itemID)
}

func (m *metricsStore) SaveAttachment(ctx context.Context, attachment *model.Attachment) error {
	defer observe("save_attachment", time.Now())
	return m.inner.SaveAttachment(ctx, attachment)
}

func (m *metricsStore) LoadAttachment(ctx context.Context, attachmentID string) (*model.Attachment, error) {
	defer observe("load_attachment", time.Now())
	return m.inner.LoadAttachment(ctx, attachmentID)
}

func (m *metricsStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	defer observe("delete_attachment", time.Now())
	return m.inner.DeleteAttachment(ctx, attachmentID)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.ThreadStore = (*metricsStore)(nil)
