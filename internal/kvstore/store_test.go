package kvstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chirino/thread-service/internal/kvstore"
	"github.com/chirino/thread-service/internal/model"
	registrystore "github.com/chirino/thread-service/internal/registry/store"
	"github.com/chirino/thread-service/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*kvstore.Store, *kvstore.MemoryKV) {
	t.Helper()
	kv := kvstore.NewMemoryKV()
	return kvstore.New(kv, "chatkit"), kv
}

func userCtx(userID string) context.Context {
	return security.WithUserID(context.Background(), userID)
}

func threadMetadata(threadID string) *model.ThreadMetadata {
	return &model.ThreadMetadata{
		ID:        threadID,
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAndListThreads(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	// No created_at: the engine must assign one.
	err := store.SaveThread(ctx, &model.ThreadMetadata{ID: "thr_test"})
	require.NoError(t, err)

	loaded, err := store.LoadThread(ctx, "thr_test")
	require.NoError(t, err)
	assert.Equal(t, "thr_test", loaded.ID)
	assert.False(t, loaded.CreatedAt.IsZero())

	page, err := store.LoadThreads(ctx, 5, nil, registrystore.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "thr_test", page.Data[0].ID)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.After)
}

func TestLoadThreadNotFound(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.LoadThread(userCtx("user_a"), "thr_missing")
	var notFound *registrystore.NotFoundError
	require.True(t, errors.As(err, &notFound), "expected not found, got %T", err)
	assert.Equal(t, "thread", notFound.Resource)
}

func TestSaveThreadPreservesCreatedAt(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveThread(ctx, &model.ThreadMetadata{ID: "thr_old", CreatedAt: createdAt}))

	title := "renamed"
	require.NoError(t, store.SaveThread(ctx, &model.ThreadMetadata{ID: "thr_old", Title: &title, CreatedAt: createdAt}))

	loaded, err := store.LoadThread(ctx, "thr_old")
	require.NoError(t, err)
	assert.True(t, loaded.CreatedAt.Equal(createdAt))
	require.NotNil(t, loaded.Title)
	assert.Equal(t, "renamed", *loaded.Title)
}

func TestThreadPaginationCompleteness(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 7; i++ {
		threadID := fmt.Sprintf("thr_%02d", i)
		want = append(want, threadID)
		err := store.SaveThread(ctx, &model.ThreadMetadata{
			ID:        threadID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	collect := func(order registrystore.Order) []string {
		var got []string
		var after *string
		for {
			page, err := store.LoadThreads(ctx, 3, after, order)
			require.NoError(t, err)
			for _, metadata := range page.Data {
				got = append(got, metadata.ID)
			}
			if !page.HasMore {
				assert.Nil(t, page.After)
				break
			}
			require.NotNil(t, page.After)
			after = page.After
		}
		return got
	}

	assert.Equal(t, want, collect(registrystore.OrderAsc))

	reversed := make([]string, len(want))
	for i, id := range want {
		reversed[len(want)-1-i] = id
	}
	assert.Equal(t, reversed, collect(registrystore.OrderDesc))
}

func TestStaleCursorRestartsFromTop(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.SaveThread(ctx, &model.ThreadMetadata{
			ID:        fmt.Sprintf("thr_%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	stale := "thr_deleted"
	page, err := store.LoadThreads(ctx, 2, &stale, registrystore.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "thr_0", page.Data[0].ID)
	assert.True(t, page.HasMore)
}

func TestThreadOrderTieBrokenByID(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveThread(ctx, &model.ThreadMetadata{ID: "thr_b", CreatedAt: createdAt}))
	require.NoError(t, store.SaveThread(ctx, &model.ThreadMetadata{ID: "thr_a", CreatedAt: createdAt}))

	page, err := store.LoadThreads(ctx, 10, nil, registrystore.OrderAsc)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "thr_a", page.Data[0].ID)
	assert.Equal(t, "thr_b", page.Data[1].ID)
}

func TestItemCRUDFlow(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_items"

	require.NoError(t, store.SaveThread(ctx, threadMetadata(threadID)))

	userItem := model.NewUserMessage(threadID, "msg_user", "Hello there")
	assistantItem := model.NewAssistantMessage(threadID, "msg_assistant", "Hi back")
	assistantItem.CreatedAt = userItem.CreatedAt.Add(time.Second)

	require.NoError(t, store.AddThreadItem(ctx, threadID, userItem))
	require.NoError(t, store.AddThreadItem(ctx, threadID, assistantItem))

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg_user", "msg_assistant"}, itemIDs(page))

	updated := model.NewAssistantMessage(threadID, "msg_assistant", "Updated")
	updated.CreatedAt = assistantItem.CreatedAt
	require.NoError(t, store.SaveItem(ctx, threadID, updated))

	loaded, err := store.LoadItem(ctx, threadID, "msg_assistant")
	require.NoError(t, err)
	payload, ok := loaded.Payload.(*model.AssistantMessagePayload)
	require.True(t, ok, "expected assistant payload, got %T", loaded.Payload)
	require.Len(t, payload.Content, 1)
	assert.Equal(t, "Updated", payload.Content[0].Text)

	require.NoError(t, store.DeleteThreadItem(ctx, threadID, "msg_user"))
	page, err = store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg_assistant"}, itemIDs(page))

	require.NoError(t, store.DeleteThread(ctx, threadID))
	threadsPage, err := store.LoadThreads(ctx, 5, nil, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, threadsPage.Data)
}

func TestUserIsolation(t *testing.T) {
	store, _ := setupStore(t)
	ctxA := userCtx("alice")
	ctxB := userCtx("bob")
	threadID := "thr_shared"

	require.NoError(t, store.SaveThread(ctxA, threadMetadata(threadID)))
	require.NoError(t, store.SaveThread(ctxB, threadMetadata(threadID)))

	require.NoError(t, store.AddThreadItem(ctxA, threadID, model.NewUserMessage(threadID, "msg_a1", "Hey")))
	require.NoError(t, store.AddThreadItem(ctxB, threadID, model.NewUserMessage(threadID, "msg_b1", "Hello")))

	pageA, err := store.LoadThreadItems(ctxA, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	pageB, err := store.LoadThreadItems(ctxB, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)

	assert.Equal(t, []string{"msg_a1"}, itemIDs(pageA))
	assert.Equal(t, []string{"msg_b1"}, itemIDs(pageB))

	// Deleting Alice's thread must not disturb Bob's.
	require.NoError(t, store.DeleteThread(ctxA, threadID))
	_, err = store.LoadThread(ctxA, threadID)
	assert.True(t, registrystore.IsNotFound(err))
	_, err = store.LoadThread(ctxB, threadID)
	require.NoError(t, err)
}

func TestAddThreadItemAutoCreatesThread(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	item := model.NewUserMessage("thr_implicit", "msg_1", "first write")
	require.NoError(t, store.AddThreadItem(ctx, "thr_implicit", item))

	metadata, err := store.LoadThread(ctx, "thr_implicit")
	require.NoError(t, err)
	assert.Equal(t, "thr_implicit", metadata.ID)
	assert.False(t, metadata.CreatedAt.IsZero())

	page, err := store.LoadThreads(ctx, 5, nil, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, 1, len(page.Data))
}

func TestAddThreadItemIdempotentAppend(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_dup"

	item := model.NewUserMessage(threadID, "msg_once", "hello")
	require.NoError(t, store.AddThreadItem(ctx, threadID, item))
	require.NoError(t, store.AddThreadItem(ctx, threadID, item))

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg_once"}, itemIDs(page))
}

func TestSaveItemDoesNotAppend(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_orphan"

	require.NoError(t, store.SaveThread(ctx, threadMetadata(threadID)))

	// Update-existing semantics: an item that was never appended stays out of
	// listings but remains reachable by id.
	orphan := model.NewUserMessage(threadID, "msg_orphan", "floating")
	require.NoError(t, store.SaveItem(ctx, threadID, orphan))

	_, err := store.LoadItem(ctx, threadID, "msg_orphan")
	require.NoError(t, err)

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestSaveItemPreservesPosition(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_positions"

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		item := model.NewUserMessage(threadID, fmt.Sprintf("msg_%d", i), fmt.Sprintf("message %d", i))
		item.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.AddThreadItem(ctx, threadID, item))
	}

	updated := model.NewUserMessage(threadID, "msg_1", "rewritten")
	updated.CreatedAt = base.Add(time.Second)
	require.NoError(t, store.SaveItem(ctx, threadID, updated))

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	require.Equal(t, []string{"msg_0", "msg_1", "msg_2"}, itemIDs(page))
	payload := page.Data[1].Payload.(*model.UserMessagePayload)
	assert.Equal(t, "rewritten", payload.Content[0].Text)
}

func TestItemPaginationCompleteness(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_pages"

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var want []string
	for i := 0; i < 10; i++ {
		itemID := fmt.Sprintf("msg_%02d", i)
		want = append(want, itemID)
		item := model.NewUserMessage(threadID, itemID, "x")
		item.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.AddThreadItem(ctx, threadID, item))
	}

	var got []string
	var after *string
	for {
		page, err := store.LoadThreadItems(ctx, threadID, after, 4, registrystore.OrderAsc)
		require.NoError(t, err)
		got = append(got, itemIDs(page)...)
		if !page.HasMore {
			break
		}
		after = page.After
	}
	assert.Equal(t, want, got)
}

func TestItemsWithEqualTimestampsKeepAppendOrder(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_ties"

	createdAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, itemID := range []string{"msg_z", "msg_a", "msg_m"} {
		item := model.NewUserMessage(threadID, itemID, "tie")
		item.CreatedAt = createdAt
		require.NoError(t, store.AddThreadItem(ctx, threadID, item))
	}

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg_z", "msg_a", "msg_m"}, itemIDs(page))
}

func TestDeleteThreadItemIdempotent(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_del"

	require.NoError(t, store.AddThreadItem(ctx, threadID, model.NewUserMessage(threadID, "msg_1", "bye")))
	require.NoError(t, store.DeleteThreadItem(ctx, threadID, "msg_1"))
	require.NoError(t, store.DeleteThreadItem(ctx, threadID, "msg_1"))

	_, err := store.LoadItem(ctx, threadID, "msg_1")
	assert.True(t, registrystore.IsNotFound(err))
}

func TestDeleteThreadCascades(t *testing.T) {
	store, kv := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_cascade"

	for i := 0; i < 3; i++ {
		itemID := fmt.Sprintf("msg_%d", i)
		require.NoError(t, store.AddThreadItem(ctx, threadID, model.NewUserMessage(threadID, itemID, "x")))
	}
	require.NoError(t, store.DeleteThread(ctx, threadID))

	_, err := store.LoadThread(ctx, threadID)
	assert.True(t, registrystore.IsNotFound(err))
	for i := 0; i < 3; i++ {
		_, err := store.LoadItem(ctx, threadID, fmt.Sprintf("msg_%d", i))
		assert.True(t, registrystore.IsNotFound(err))
	}

	// The ordering list and index entry must be gone too.
	listed, err := kv.LRange(ctx, "chatkit:user:user_a:thread:thr_cascade:items")
	require.NoError(t, err)
	assert.Empty(t, listed)
	members, err := kv.ZRange(ctx, "chatkit:user:user_a:threads:index")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAttachmentsUnsupported(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")

	var unsupported *registrystore.UnsupportedError

	err := store.SaveAttachment(ctx, &model.Attachment{ID: "att_1"})
	require.True(t, errors.As(err, &unsupported))

	_, err = store.LoadAttachment(ctx, "att_1")
	require.True(t, errors.As(err, &unsupported))

	err = store.DeleteAttachment(ctx, "att_1")
	require.True(t, errors.As(err, &unsupported))
}

func TestMissingUserContextFailsFast(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	var invalidCtx *registrystore.InvalidContextError

	_, err := store.LoadThread(ctx, "thr_1")
	require.True(t, errors.As(err, &invalidCtx), "expected invalid context, got %v", err)

	err = store.SaveThread(ctx, threadMetadata("thr_1"))
	require.True(t, errors.As(err, &invalidCtx))

	_, err = store.LoadThreads(ctx, 5, nil, registrystore.OrderAsc)
	require.True(t, errors.As(err, &invalidCtx))

	err = store.AddThreadItem(ctx, "thr_1", model.NewUserMessage("thr_1", "msg_1", "x"))
	require.True(t, errors.As(err, &invalidCtx))
}

func TestCorruptMetadataSurfacesNotFound(t *testing.T) {
	store, kv := setupStore(t)
	ctx := userCtx("user_a")

	require.NoError(t, store.SaveThread(ctx, threadMetadata("thr_ok")))
	require.NoError(t, kv.Set(ctx, "chatkit:user:user_a:thread:thr_ok:metadata", []byte("{not json")))

	_, err := store.LoadThread(ctx, "thr_ok")
	assert.True(t, registrystore.IsNotFound(err))
}

func TestCorruptItemSkippedInListing(t *testing.T) {
	store, kv := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_corrupt"

	first := model.NewUserMessage(threadID, "msg_good", "fine")
	second := model.NewUserMessage(threadID, "msg_bad", "about to break")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, store.AddThreadItem(ctx, threadID, first))
	require.NoError(t, store.AddThreadItem(ctx, threadID, second))

	require.NoError(t, kv.Set(ctx, "chatkit:user:user_a:thread:thr_corrupt:item:msg_bad", []byte("garbage")))

	page, err := store.LoadThreadItems(ctx, threadID, nil, 10, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg_good"}, itemIDs(page))
}

func TestConcurrentAppends(t *testing.T) {
	store, _ := setupStore(t)
	ctx := userCtx("user_a")
	threadID := "thr_concurrent"

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			item := model.NewUserMessage(threadID, fmt.Sprintf("msg_%d", i), "hi")
			done <- store.AddThreadItem(ctx, threadID, item)
		}(i)
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	page, err := store.LoadThreadItems(ctx, threadID, nil, writers, registrystore.OrderAsc)
	require.NoError(t, err)
	assert.Len(t, page.Data, writers)
}

func itemIDs(page *registrystore.ItemPage) []string {
	ids := make([]string, len(page.Data))
	for i, item := range page.Data {
		ids[i] = item.ID
	}
	return ids
}
