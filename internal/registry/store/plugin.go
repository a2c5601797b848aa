package store

import (
	"context"
	"fmt"

	"github.com/chirino/thread-service/internal/model"
)

// Order controls the direction of paginated listings.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder normalizes an order query value. Empty defaults to ascending.
func ParseOrder(raw string) (Order, error) {
	switch Order(raw) {
	case "", OrderAsc:
		return OrderAsc, nil
	case OrderDesc:
		return OrderDesc, nil
	default:
		return "", &ValidationError{Field: "order", Message: fmt.Sprintf("invalid order %q; expected asc or desc", raw)}
	}
}

// ThreadPage is a paginated list of thread metadata. After is the cursor to
// resume from (the id of the last element) and is only set when HasMore.
type ThreadPage struct {
	Data    []*model.ThreadMetadata `json:"data"`
	HasMore bool                    `json:"has_more"`
	After   *string                 `json:"after,omitempty"`
}

// ItemPage is a paginated list of thread items.
type ItemPage struct {
	Data    []*model.ThreadItem `json:"data"`
	HasMore bool                `json:"has_more"`
	After   *string             `json:"after,omitempty"`
}

// ThreadStore is the persistence contract consumed by the agent server. The
// authenticated user id travels in the context (security.WithUserID); every
// operation is scoped to that user's namespace and calling without one is a
// programming error surfaced as InvalidContextError.
//
// Implementations must be safe for concurrent use across requests.
type ThreadStore interface {
	// LoadThread returns the thread's metadata or NotFoundError.
	LoadThread(ctx context.Context, threadID string) (*model.ThreadMetadata, error)
	// SaveThread fully replaces the metadata snapshot. A zero CreatedAt is
	// assigned the current UTC time before persisting.
	SaveThread(ctx context.Context, metadata *model.ThreadMetadata) error
	// LoadThreads lists the user's threads ordered by creation time. A stale
	// or unknown after cursor restarts from the beginning, never errors.
	LoadThreads(ctx context.Context, limit int, after *string, order Order) (*ThreadPage, error)
	// DeleteThread removes the thread, all of its items, its ordering list and
	// its index entry. Safe to retry; every sub-step is idempotent.
	DeleteThread(ctx context.Context, threadID string) error

	// AddThreadItem writes the item and appends its id to the thread's
	// ordering list if not already present. Side effect: when the thread does
	// not exist yet, its metadata is created with CreatedAt=now.
	AddThreadItem(ctx context.Context, threadID string, item *model.ThreadItem) error
	// SaveItem overwrites an existing item's snapshot without touching the
	// ordering list, so the item keeps its position in listings.
	SaveItem(ctx context.Context, threadID string, item *model.ThreadItem) error
	// LoadThreadItems lists the thread's items sorted by CreatedAt with the
	// same cursor semantics as LoadThreads.
	LoadThreadItems(ctx context.Context, threadID string, after *string, limit int, order Order) (*ItemPage, error)
	// LoadItem returns a single item or NotFoundError.
	LoadItem(ctx context.Context, threadID, itemID string) (*model.ThreadItem, error)
	// DeleteThreadItem removes the item and every ordering-list occurrence.
	// Deleting an absent item is a silent no-op.
	DeleteThreadItem(ctx context.Context, threadID, itemID string) error

	// Attachment persistence is not provided by this service; all three fail
	// with UnsupportedError so callers wire a dedicated attachment store.
	SaveAttachment(ctx context.Context, attachment *model.Attachment) error
	LoadAttachment(ctx context.Context, attachmentID string) (*model.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error

	// Close releases the backing connection.
	Close(ctx context.Context) error
}

// Loader creates a ThreadStore from config.
type Loader func(ctx context.Context) (ThreadStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
