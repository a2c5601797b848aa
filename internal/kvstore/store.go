// Package kvstore implements the thread store over a key/sorted-set/list
// capability interface. One engine serves both the Redis and the in-memory
// backends; the backend only has to satisfy the KV interface.
package kvstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/thread-service/internal/model"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
	"github.com/chirino/thread-service/internal/security"
)

// Store implements registrystore.ThreadStore. Every operation is a short
// bounded sequence of single-key calls; no cross-key transaction is assumed.
// The idempotent append in writeItem is check-then-act: LPos resolves
// server-side in one round trip, which keeps the race window between two
// concurrent appends of the same new item id as narrow as the backend allows.
type Store struct {
	kv   KV
	keys keyspace
}

// New creates a Store over the given backend. prefix namespaces every key.
func New(kv KV, prefix string) *Store {
	return &Store{kv: kv, keys: keyspace{prefix: prefix}}
}

func (s *Store) userID(ctx context.Context) (string, error) {
	userID := security.UserIDFromContext(ctx)
	if userID == "" {
		return "", &registrystore.InvalidContextError{
			Message: "request context is missing the authenticated user id",
		}
	}
	return userID, nil
}

func decodeMetadata(raw []byte) (*model.ThreadMetadata, error) {
	var metadata model.ThreadMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

func decodeItem(raw []byte) (*model.ThreadItem, error) {
	var item model.ThreadItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// LoadThread returns the thread's metadata. A record that fails to decode is
// reported as not found rather than crashing the read path.
func (s *Store) LoadThread(ctx context.Context, threadID string) (*model.ThreadMetadata, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(ctx, s.keys.threadMetadata(userID, threadID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &registrystore.NotFoundError{Resource: "thread", ID: threadID}
	}
	metadata, err := decodeMetadata(raw)
	if err != nil {
		log.Warn("Undecodable thread metadata", "thread", threadID, "err", err)
		return nil, &registrystore.NotFoundError{Resource: "thread", ID: threadID}
	}
	return metadata, nil
}

// SaveThread fully replaces the metadata snapshot and upserts the thread
// index with the creation-time score. Items are never part of the snapshot.
func (s *Store) SaveThread(ctx context.Context, metadata *model.ThreadMetadata) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if metadata == nil || metadata.ID == "" {
		return &registrystore.ValidationError{Field: "id", Message: "thread id is required"}
	}

	snapshot := metadata.Clone()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	} else {
		snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.keys.threadMetadata(userID, snapshot.ID), encoded); err != nil {
		return err
	}

	score := float64(snapshot.CreatedAt.UnixNano()) / float64(time.Second)
	return s.kv.ZAdd(ctx, s.keys.threadIndex(userID), snapshot.ID, score)
}

// LoadThreads lists the user's threads ordered by creation time. The index is
// read ascending in full; descending order is a reversal in memory. A stale
// after cursor falls back to the start of the list.
func (s *Store) LoadThreads(ctx context.Context, limit int, after *string, order registrystore.Order) (*registrystore.ThreadPage, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, &registrystore.ValidationError{Field: "limit", Message: "limit must be positive"}
	}

	sequence, err := s.kv.ZRange(ctx, s.keys.threadIndex(userID))
	if err != nil {
		return nil, err
	}
	if order == registrystore.OrderDesc {
		reverse(sequence)
	}

	sliceIDs, hasMore := cursorSlice(sequence, after, limit)
	page := &registrystore.ThreadPage{Data: []*model.ThreadMetadata{}, HasMore: hasMore}
	if len(sliceIDs) == 0 {
		return page, nil
	}

	keys := make([]string, len(sliceIDs))
	for i, threadID := range sliceIDs {
		keys[i] = s.keys.threadMetadata(userID, threadID)
	}
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	for i, raw := range values {
		if raw == nil {
			continue
		}
		metadata, err := decodeMetadata(raw)
		if err != nil {
			// One bad record must not block listing the rest.
			log.Warn("Skipping undecodable thread metadata", "thread", sliceIDs[i], "err", err)
			continue
		}
		page.Data = append(page.Data, metadata)
	}
	if hasMore {
		cursor := sliceIDs[len(sliceIDs)-1]
		page.After = &cursor
	}
	return page, nil
}

// DeleteThread cascades: per-item keys, the ordering list, the metadata
// snapshot and the index entry. Each sub-step is idempotent, so a cancelled
// delete is safe to retry.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	itemsKey := s.keys.threadItems(userID, threadID)
	itemIDs, err := s.kv.LRange(ctx, itemsKey)
	if err != nil {
		return err
	}
	if len(itemIDs) > 0 {
		itemKeys := make([]string, len(itemIDs))
		for i, itemID := range itemIDs {
			itemKeys[i] = s.keys.threadItem(userID, threadID, itemID)
		}
		if err := s.kv.Del(ctx, itemKeys...); err != nil {
			return err
		}
	}
	if err := s.kv.Del(ctx, itemsKey, s.keys.threadMetadata(userID, threadID)); err != nil {
		return err
	}
	return s.kv.ZRem(ctx, s.keys.threadIndex(userID), threadID)
}

// AddThreadItem writes the item and idempotently appends its id to the
// ordering list. Side effect: an unknown thread is created on the fly with
// CreatedAt=now, so the first item write is enough to start a thread.
func (s *Store) AddThreadItem(ctx context.Context, threadID string, item *model.ThreadItem) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if item == nil || item.ID == "" {
		return &registrystore.ValidationError{Field: "id", Message: "item id is required"}
	}

	exists, err := s.kv.Exists(ctx, s.keys.threadMetadata(userID, threadID))
	if err != nil {
		return err
	}
	if !exists {
		err := s.SaveThread(ctx, &model.ThreadMetadata{
			ID:        threadID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	return s.writeItem(ctx, userID, threadID, item, true)
}

// SaveItem overwrites the item snapshot only. The ordering list is left
// untouched: an update never re-appends or reorders. Saving an item that was
// never appended leaves it reachable by id but absent from listings.
func (s *Store) SaveItem(ctx context.Context, threadID string, item *model.ThreadItem) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if item == nil || item.ID == "" {
		return &registrystore.ValidationError{Field: "id", Message: "item id is required"}
	}
	return s.writeItem(ctx, userID, threadID, item, false)
}

func (s *Store) writeItem(ctx context.Context, userID, threadID string, item *model.ThreadItem, ensureListed bool) error {
	encoded, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.keys.threadItem(userID, threadID, item.ID), encoded); err != nil {
		return err
	}
	if !ensureListed {
		return nil
	}
	listKey := s.keys.threadItems(userID, threadID)
	_, present, err := s.kv.LPos(ctx, listKey, item.ID)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	return s.kv.RPush(ctx, listKey, item.ID)
}

func (s *Store) loadAllItems(ctx context.Context, userID, threadID string) ([]*model.ThreadItem, error) {
	itemIDs, err := s.kv.LRange(ctx, s.keys.threadItems(userID, threadID))
	if err != nil {
		return nil, err
	}
	if len(itemIDs) == 0 {
		return nil, nil
	}
	keys := make([]string, len(itemIDs))
	for i, itemID := range itemIDs {
		keys[i] = s.keys.threadItem(userID, threadID, itemID)
	}
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}
	items := make([]*model.ThreadItem, 0, len(values))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		item, err := decodeItem(raw)
		if err != nil {
			log.Warn("Skipping undecodable thread item", "thread", threadID, "item", itemIDs[i], "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// LoadThreadItems loads the full item set via the ordering list, re-sorts it
// by CreatedAt (stable, so equal timestamps keep their append order) and
// applies the same cursor algorithm as LoadThreads, keyed by item id.
func (s *Store) LoadThreadItems(ctx context.Context, threadID string, after *string, limit int, order registrystore.Order) (*registrystore.ItemPage, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, &registrystore.ValidationError{Field: "limit", Message: "limit must be positive"}
	}

	items, err := s.loadAllItems(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if order == registrystore.OrderDesc {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	sliceIDs, hasMore := cursorSlice(ids, after, limit)

	page := &registrystore.ItemPage{Data: []*model.ThreadItem{}, HasMore: hasMore}
	if len(sliceIDs) == 0 {
		return page, nil
	}
	start := indexOf(ids, sliceIDs[0])
	page.Data = items[start : start+len(sliceIDs)]
	if hasMore {
		cursor := sliceIDs[len(sliceIDs)-1]
		page.After = &cursor
	}
	return page, nil
}

// LoadItem returns a single item by id.
func (s *Store) LoadItem(ctx context.Context, threadID, itemID string) (*model.ThreadItem, error) {
	userID, err := s.userID(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(ctx, s.keys.threadItem(userID, threadID, itemID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &registrystore.NotFoundError{Resource: "item", ID: itemID}
	}
	item, err := decodeItem(raw)
	if err != nil {
		log.Warn("Undecodable thread item", "thread", threadID, "item", itemID, "err", err)
		return nil, &registrystore.NotFoundError{Resource: "item", ID: itemID}
	}
	return item, nil
}

// DeleteThreadItem removes every ordering-list occurrence and the snapshot.
// Deleting an absent item is a silent no-op.
func (s *Store) DeleteThreadItem(ctx context.Context, threadID, itemID string) error {
	userID, err := s.userID(ctx)
	if err != nil {
		return err
	}
	if err := s.kv.LRem(ctx, s.keys.threadItems(userID, threadID), itemID); err != nil {
		return err
	}
	return s.kv.Del(ctx, s.keys.threadItem(userID, threadID, itemID))
}

// SaveAttachment always fails: this backend does not persist attachments.
// Wire a store that enforces authentication and authorization before enabling
// uploads.
func (s *Store) SaveAttachment(ctx context.Context, _ *model.Attachment) error {
	if _, err := s.userID(ctx); err != nil {
		return err
	}
	return &registrystore.UnsupportedError{Operation: "attachment persistence"}
}

// LoadAttachment always fails; attachments are never stored here.
func (s *Store) LoadAttachment(ctx context.Context, _ string) (*model.Attachment, error) {
	if _, err := s.userID(ctx); err != nil {
		return nil, err
	}
	return nil, &registrystore.UnsupportedError{Operation: "attachment retrieval"}
}

// DeleteAttachment always fails; attachments are never stored here.
func (s *Store) DeleteAttachment(ctx context.Context, _ string) error {
	if _, err := s.userID(ctx); err != nil {
		return err
	}
	return &registrystore.UnsupportedError{Operation: "attachment deletion"}
}

// Close releases the backing connection.
func (s *Store) Close(context.Context) error {
	return s.kv.Close()
}

// cursorSlice applies the shared pagination algorithm: locate the cursor by
// linear scan (start of list when stale or absent), take limit+1 elements to
// detect a further page, return at most limit.
func cursorSlice(sequence []string, after *string, limit int) ([]string, bool) {
	start := 0
	if after != nil && *after != "" {
		if pos := indexOf(sequence, *after); pos >= 0 {
			start = pos + 1
		}
	}
	end := start + limit + 1
	if end > len(sequence) {
		end = len(sequence)
	}
	slice := sequence[start:end]
	hasMore := len(slice) > limit
	if hasMore {
		slice = slice[:limit]
	}
	return slice, hasMore
}

func indexOf(sequence []string, value string) int {
	for i, current := range sequence {
		if current == value {
			return i
		}
	}
	return -1
}

func reverse(sequence []string) {
	for i, j := 0, len(sequence)-1; i < j; i, j = i+1, j-1 {
		sequence[i], sequence[j] = sequence[j], sequence[i]
	}
}

var _ registrystore.ThreadStore = (*Store)(nil)
