package redis

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailme/backend/internal/domain"
)

func TestContentKey(t *testing.T) {
	assert.Equal(t, "mailme:content:abc", contentKey("abc"))
}

func TestDecodeContent(t *testing.T) {
	t.Run("解码正文", func(t *testing.T) {
		data, err := json.Marshal(domain.MessageContent{Text: "hi", HTML: "<b>hi</b>"})
		require.NoError(t, err)

		content, err := decodeContent(data)
		require.NoError(t, err)
		assert.Equal(t, "hi", content.Text)
		assert.Equal(t, "<b>hi</b>", content.HTML)
	})

	t.Run("损坏的数据返回错误", func(t *testing.T) {
		_, err := decodeContent([]byte("{not json"))
		assert.Error(t, err)
	})
}

func TestContentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("写入读取与删除", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewContentStore(newTestClient(fake), time.Hour)

		require.NoError(t, store.SaveContent(ctx, "m1", domain.MessageContent{Text: "hi", HTML: "<p>hi</p>"}))
		assert.Equal(t, time.Hour, fake.ttls[contentKey("m1")])

		content, err := store.GetContent(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, content)
		assert.Equal(t, "hi", content.Text)
		assert.Equal(t, "<p>hi</p>", content.HTML)

		require.NoError(t, store.SaveContent(ctx, "m2", domain.MessageContent{Text: "two"}))
		require.NoError(t, store.DeleteContent(ctx, "m1", "m2", "missing"))

		content, err = store.GetContent(ctx, "m1")
		require.NoError(t, err)
		assert.Nil(t, content)
		content, err = store.GetContent(ctx, "m2")
		require.NoError(t, err)
		assert.Nil(t, content)

		assert.NoError(t, store.DeleteContent(ctx))
	})

	t.Run("过期后读取为空", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewContentStore(newTestClient(fake), 30*time.Minute)

		require.NoError(t, store.SaveContent(ctx, "m1", domain.MessageContent{Text: "soon gone"}))

		fake.advance(29 * time.Minute)
		content, err := store.GetContent(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, content)

		fake.advance(time.Minute)
		content, err = store.GetContent(ctx, "m1")
		require.NoError(t, err)
		assert.Nil(t, content)
	})

	t.Run("TTL 为 0 时不过期", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewContentStore(newTestClient(fake), 0)

		require.NoError(t, store.SaveContent(ctx, "m1", domain.MessageContent{Text: "kept"}))
		fake.advance(1000 * time.Hour)

		content, err := store.GetContent(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, content)
		assert.Equal(t, "kept", content.Text)
	})

	t.Run("连接失败包装为存储不可用", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewContentStore(newTestClient(fake), time.Hour)
		fake.failing = errConnRefused

		err := store.SaveContent(ctx, "m1", domain.MessageContent{Text: "x"})
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

		_, err = store.GetContent(ctx, "m1")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

		err = store.DeleteContent(ctx, "m1")
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

		assert.ErrorIs(t, store.Health(), errConnRefused)
	})

	t.Run("损坏的正文返回错误", func(t *testing.T) {
		fake := newFakeRedis()
		store := NewContentStore(newTestClient(fake), time.Hour)
		fake.values[contentKey("m1")] = "{broken"

		_, err := store.GetContent(ctx, "m1")
		assert.Error(t, err)
	})
}
