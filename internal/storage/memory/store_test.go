package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailme/backend/internal/domain"
)

func newMailbox(id, username string) *domain.Mailbox {
	return &domain.Mailbox{
		ID:        id,
		Username:  username,
		Domain:    "mailme.local",
		CreatedAt: time.Now(),
	}
}

func TestMemoryStore_MailboxOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	created, err := store.UpsertMailbox(ctx, newMailbox("mb-1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, "mb-1", created.ID)

	t.Run("重复 upsert 返回已有邮箱", func(t *testing.T) {
		again, err := store.UpsertMailbox(ctx, newMailbox("mb-2", "alice"))
		require.NoError(t, err)
		assert.Equal(t, "mb-1", again.ID)
	})

	t.Run("按用户名查找", func(t *testing.T) {
		found, err := store.FindMailbox(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "mb-1", found.ID)

		_, err = store.FindMailbox(ctx, "nobody")
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
	})

	t.Run("删除邮箱级联删除邮件", func(t *testing.T) {
		require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "m-1", MailboxID: "mb-1", CreatedAt: time.Now()}))

		ids, err := store.DeleteMailbox(ctx, "mb-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"m-1"}, ids)

		_, err = store.FindMailbox(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
		_, err = store.GetMessage(ctx, "mb-1", "m-1")
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
	})
}

func TestMemoryStore_ConcurrentUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mb, err := store.UpsertMailbox(ctx, newMailbox(fmt.Sprintf("mb-%d", i), "racer"))
			assert.NoError(t, err)
			if mb != nil {
				ids[i] = mb.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, store.mailboxes, 1)
}

func TestMemoryStore_MessageOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.UpsertMailbox(ctx, newMailbox("mb-1", "bob"))
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m-1", "m-2", "m-3"} {
		require.NoError(t, store.SaveMessage(ctx, &domain.Message{
			ID:        id,
			MailboxID: "mb-1",
			Subject:   id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	t.Run("列表按时间倒序", func(t *testing.T) {
		list, err := store.ListMessages(ctx, "mb-1", time.Time{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "m-3", list[0].ID)
		assert.Equal(t, "m-1", list[2].ID)
	})

	t.Run("since 过滤", func(t *testing.T) {
		list, err := store.ListMessages(ctx, "mb-1", base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "m-3", list[0].ID)
	})

	t.Run("同一时间戳按写入顺序", func(t *testing.T) {
		_, err := store.UpsertMailbox(ctx, newMailbox("mb-2", "tie"))
		require.NoError(t, err)
		require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "a", MailboxID: "mb-2", CreatedAt: base}))
		require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "b", MailboxID: "mb-2", CreatedAt: base}))

		list, err := store.ListMessages(ctx, "mb-2", time.Time{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "b", list[0].ID)
	})

	t.Run("获取单封邮件", func(t *testing.T) {
		msg, err := store.GetMessage(ctx, "mb-1", "m-2")
		require.NoError(t, err)
		assert.Equal(t, "m-2", msg.Subject)

		_, err = store.GetMessage(ctx, "mb-1", "missing")
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})

	t.Run("邮箱不存在时拒绝保存", func(t *testing.T) {
		err := store.SaveMessage(ctx, &domain.Message{ID: "x", MailboxID: "ghost"})
		assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
	})
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	now := time.Now()

	_, err := store.UpsertMailbox(ctx, newMailbox("mb-old", "old"))
	require.NoError(t, err)
	_, err = store.UpsertMailbox(ctx, newMailbox("mb-new", "new"))
	require.NoError(t, err)
	_, err = store.UpsertMailbox(ctx, newMailbox("mb-empty", "empty"))
	require.NoError(t, err)

	require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "old-1", MailboxID: "mb-old", CreatedAt: now.Add(-25 * time.Hour)}))
	require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "new-1", MailboxID: "mb-new", CreatedAt: now.Add(-23 * time.Hour)}))

	ids, err := store.DeleteMessagesOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"old-1"}, ids)

	removed, err := store.DeleteEmptyMailboxes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = store.FindMailbox(ctx, "new")
	assert.NoError(t, err)
	_, err = store.FindMailbox(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
	_, err = store.FindMailbox(ctx, "empty")
	assert.ErrorIs(t, err, domain.ErrMailboxNotFound)
}

func TestContentStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewContentStore(time.Hour)
	store.SetClock(func() time.Time { return now })

	require.NoError(t, store.SaveContent(ctx, "m-1", domain.MessageContent{Text: "hi", HTML: "<p>hi</p>"}))

	t.Run("未过期可读取", func(t *testing.T) {
		content, err := store.GetContent(ctx, "m-1")
		require.NoError(t, err)
		require.NotNil(t, content)
		assert.Equal(t, "hi", content.Text)
	})

	t.Run("过期后返回 nil", func(t *testing.T) {
		store.SetClock(func() time.Time { return now.Add(time.Hour) })
		content, err := store.GetContent(ctx, "m-1")
		require.NoError(t, err)
		assert.Nil(t, content)
	})

	t.Run("不存在返回 nil", func(t *testing.T) {
		content, err := store.GetContent(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, content)
	})

	t.Run("删除", func(t *testing.T) {
		store.SetClock(func() time.Time { return now })
		require.NoError(t, store.SaveContent(ctx, "m-2", domain.MessageContent{Text: "x"}))
		require.NoError(t, store.DeleteContent(ctx, "m-2", "unknown"))
		content, err := store.GetContent(ctx, "m-2")
		require.NoError(t, err)
		assert.Nil(t, content)
	})
}
