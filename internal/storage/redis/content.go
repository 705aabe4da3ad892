package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	"mailme/backend/internal/domain"
)

const contentKeyPrefix = "mailme:content:"

// ContentStore 将邮件正文以 JSON 存入 Redis，过期交给键的 TTL。
type ContentStore struct {
	client *Client
	ttl    time.Duration
}

// NewContentStore 创建正文存储，ttl 为 0 表示不过期。
func NewContentStore(client *Client, ttl time.Duration) *ContentStore {
	return &ContentStore{client: client, ttl: ttl}
}

func contentKey(messageID string) string {
	return contentKeyPrefix + messageID
}

// SaveContent 写入正文并设置过期时间。
func (s *ContentStore) SaveContent(ctx context.Context, messageID string, content domain.MessageContent) error {
	data, err := json.Marshal(content)
	if err != nil {
		return err
	}
	if err := s.client.rdb.Set(ctx, contentKey(messageID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetContent 读取正文，键不存在时返回 nil。
func (s *ContentStore) GetContent(ctx context.Context, messageID string) (*domain.MessageContent, error) {
	data, err := s.client.rdb.Get(ctx, contentKey(messageID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return decodeContent(data)
}

// DeleteContent 批量删除正文。
func (s *ContentStore) DeleteContent(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	keys := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		keys[i] = contentKey(id)
	}
	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Close 关闭底层客户端。
func (s *ContentStore) Close() error {
	return s.client.Close()
}

// Health 检查 Redis 连接。
func (s *ContentStore) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return s.client.Ping(ctx)
}

func decodeContent(data []byte) (*domain.MessageContent, error) {
	var content domain.MessageContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	return &content, nil
}
