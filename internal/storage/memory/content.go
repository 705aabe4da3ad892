package memory

import (
	"context"
	"sync"
	"time"

	"mailme/backend/internal/domain"
)

// ContentStore 在内存中保存邮件正文，读取时惰性淘汰过期条目。
type ContentStore struct {
	mu      sync.RWMutex
	entries map[string]contentEntry
	ttl     time.Duration
	now     func() time.Time
}

type contentEntry struct {
	content   domain.MessageContent
	expiresAt time.Time
}

// NewContentStore 创建正文存储，ttl 为 0 表示永不过期。
func NewContentStore(ttl time.Duration) *ContentStore {
	return &ContentStore{
		entries: make(map[string]contentEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock 替换时钟，用于测试过期行为。
func (c *ContentStore) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// SaveContent 保存正文。
func (c *ContentStore) SaveContent(_ context.Context, messageID string, content domain.MessageContent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := contentEntry{content: content}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[messageID] = entry
	return nil
}

// GetContent 读取正文，不存在或已过期时返回 nil。
func (c *ContentStore) GetContent(_ context.Context, messageID string) (*domain.MessageContent, error) {
	c.mu.RLock()
	entry, ok := c.entries[messageID]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, messageID)
		c.mu.Unlock()
		return nil, nil
	}
	content := entry.content
	return &content, nil
}

// DeleteContent 删除正文，不存在的 ID 被忽略。
func (c *ContentStore) DeleteContent(_ context.Context, messageIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range messageIDs {
		delete(c.entries, id)
	}
	return nil
}

func (c *ContentStore) Close() error  { return nil }
func (c *ContentStore) Health() error { return nil }
