// Package hybrid 组合元数据存储与正文存储，对外提供统一的保留存储接口。
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/storage"
)

// Store 是保留存储：元数据放在关系库或内存，正文放在带 TTL 的存储中。
type Store struct {
	meta    storage.MetadataStore
	content storage.ContentStore
	log     *zap.Logger
	now     func() time.Time
}

// NewStore 创建保留存储。
func NewStore(meta storage.MetadataStore, content storage.ContentStore, log *zap.Logger) *Store {
	return &Store{
		meta:    meta,
		content: content,
		log:     log,
		now:     time.Now,
	}
}

// SetClock 替换服务端时钟。
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// ========== Mailbox ==========

// UpsertMailbox 幂等创建邮箱，已存在时返回原记录。
func (s *Store) UpsertMailbox(ctx context.Context, username, mailDomain string) (*domain.Mailbox, error) {
	return s.meta.UpsertMailbox(ctx, &domain.Mailbox{
		ID:        uuid.NewString(),
		Username:  username,
		Domain:    mailDomain,
		CreatedAt: s.now().UTC(),
	})
}

// FindMailbox 按用户名查找邮箱。
func (s *Store) FindMailbox(ctx context.Context, username string) (*domain.Mailbox, error) {
	return s.meta.FindMailbox(ctx, username)
}

// DeleteMailbox 删除邮箱、邮件以及正文。
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	ids, err := s.meta.DeleteMailbox(ctx, id)
	if err != nil {
		return err
	}
	s.dropContent(ctx, ids)
	return nil
}

// DeleteEmptyMailboxes 删除没有邮件的邮箱。
func (s *Store) DeleteEmptyMailboxes(ctx context.Context) (int, error) {
	return s.meta.DeleteEmptyMailboxes(ctx)
}

// ========== Message ==========

// AppendMessage 分配 ID 与服务端时间戳，先写正文再写元数据；元数据写入失败时删除已写的正文。
func (s *Store) AppendMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.InboundMessage) (*domain.StoredMessage, error) {
	stored := &domain.StoredMessage{
		Message: domain.Message{
			ID:        uuid.NewString(),
			MailboxID: mailbox.ID,
			To:        msg.To,
			From:      msg.From,
			Subject:   msg.Subject,
			Snippet:   msg.Snippet,
			CreatedAt: s.now().UTC(),
		},
		Content: domain.MessageContent{Text: msg.Text, HTML: msg.HTML},
	}

	if err := s.content.SaveContent(ctx, stored.ID, stored.Content); err != nil {
		return nil, fmt.Errorf("save content: %w", err)
	}
	if err := s.meta.SaveMessage(ctx, &stored.Message); err != nil {
		s.dropContent(ctx, []string{stored.ID})
		return nil, err
	}
	return stored, nil
}

// ListMessages 返回邮件元数据，最新的在前，不含正文。
func (s *Store) ListMessages(ctx context.Context, mailboxID string, since time.Time) ([]domain.Message, error) {
	return s.meta.ListMessages(ctx, mailboxID, since)
}

// GetMessage 返回邮件元数据与正文；正文过期或读取失败时降级为空字符串。
func (s *Store) GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.StoredMessage, error) {
	message, err := s.meta.GetMessage(ctx, mailboxID, messageID)
	if err != nil {
		return nil, err
	}

	stored := &domain.StoredMessage{Message: *message}
	content, err := s.GetMessageContent(ctx, messageID)
	if err != nil {
		s.log.Warn("content unavailable, serving metadata only",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	} else if content != nil {
		stored.Content = *content
	}
	return stored, nil
}

// GetMessageContent 返回正文，过期后返回 nil。
func (s *Store) GetMessageContent(ctx context.Context, messageID string) (*domain.MessageContent, error) {
	return s.content.GetContent(ctx, messageID)
}

// DeleteMessagesOlderThan 删除早于 cutoff 的邮件元数据及其正文，返回删除数量。
func (s *Store) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.meta.DeleteMessagesOlderThan(ctx, cutoff)
	s.dropContent(ctx, ids)
	return len(ids), err
}

// dropContent 正文删除失败只记录日志，正文自身的 TTL 兜底。
func (s *Store) dropContent(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.content.DeleteContent(ctx, ids...); err != nil {
		s.log.Warn("failed to delete message content", zap.Int("count", len(ids)), zap.Error(err))
	}
}

// Close 关闭两个底层存储。
func (s *Store) Close() error {
	return errors.Join(s.meta.Close(), s.content.Close())
}

// Health 元数据存储不可用视为不健康；正文存储不可用同样上报。
func (s *Store) Health() error {
	if err := s.meta.Health(); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}
	if err := s.content.Health(); err != nil {
		return fmt.Errorf("content store: %w", err)
	}
	return nil
}
