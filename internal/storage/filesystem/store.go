package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"mailme/backend/internal/domain"
)

// ContentStore 把邮件正文写成 {basePath}/{id前两位}/{id}.json，过期时间随文件保存。
type ContentStore struct {
	basePath string
	ttl      time.Duration
	now      func() time.Time
}

// contentFile 是落盘格式。
type contentFile struct {
	Text      string    `json:"text"`
	HTML      string    `json:"html"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// NewContentStore 创建文件系统正文存储并确保根目录存在。
func NewContentStore(basePath string, ttl time.Duration) (*ContentStore, error) {
	if basePath == "" {
		return nil, fmt.Errorf("content path is required")
	}
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &ContentStore{basePath: absPath, ttl: ttl, now: time.Now}, nil
}

// SetClock 替换时钟，用于测试过期行为。
func (s *ContentStore) SetClock(now func() time.Time) {
	s.now = now
}

// pathFor 只接受 UUID 作为文件名，防止路径穿越。
func (s *ContentStore) pathFor(messageID string) (string, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return "", fmt.Errorf("invalid message id %q", messageID)
	}
	return filepath.Join(s.basePath, messageID[:2], messageID+".json"), nil
}

// SaveContent 先写临时文件再重命名，读取方不会看到半写的文件。
func (s *ContentStore) SaveContent(_ context.Context, messageID string, content domain.MessageContent) error {
	path, err := s.pathFor(messageID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: create content directory: %v", domain.ErrStoreUnavailable, err)
	}

	record := contentFile{Text: content.Text, HTML: content.HTML}
	if s.ttl > 0 {
		record.ExpiresAt = s.now().Add(s.ttl).UTC()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: write content: %v", domain.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: write content: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// GetContent 读取正文，不存在或已过期返回 nil；过期文件顺手删除。
func (s *ContentStore) GetContent(_ context.Context, messageID string) (*domain.MessageContent, error) {
	path, err := s.pathFor(messageID)
	if err != nil {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read content: %v", domain.ErrStoreUnavailable, err)
	}

	var record contentFile
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	if !record.ExpiresAt.IsZero() && !s.now().Before(record.ExpiresAt) {
		os.Remove(path)
		return nil, nil
	}
	return &domain.MessageContent{Text: record.Text, HTML: record.HTML}, nil
}

// DeleteContent 删除正文文件，不存在的忽略。
func (s *ContentStore) DeleteContent(_ context.Context, messageIDs ...string) error {
	for _, id := range messageIDs {
		path, err := s.pathFor(id)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: delete content: %v", domain.ErrStoreUnavailable, err)
		}
	}
	return nil
}

// Close 文件系统存储无需释放资源。
func (s *ContentStore) Close() error {
	return nil
}

// Health 检查根目录可访问。
func (s *ContentStore) Health() error {
	info, err := os.Stat(s.basePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.basePath)
	}
	return nil
}
