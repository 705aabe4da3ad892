package service

import (
	"context"
	"time"

	"mailme/backend/internal/domain"
)

// MessageService 提供邮件读取操作。
type MessageService struct {
	mailboxes *MailboxService
	store     Retention
}

// NewMessageService 创建邮件读取服务。
func NewMessageService(mailboxes *MailboxService, store Retention) *MessageService {
	return &MessageService{mailboxes: mailboxes, store: store}
}

// List 返回邮箱的邮件元数据，最新在前；since 非零时只返回其后的邮件。
func (s *MessageService) List(ctx context.Context, username string, since time.Time) ([]domain.Message, error) {
	mailbox, err := s.mailboxes.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, mailbox.ID, since)
}

// Get 返回邮件详情，正文已过期时为空字符串。
func (s *MessageService) Get(ctx context.Context, username, messageID string) (*domain.StoredMessage, error) {
	mailbox, err := s.mailboxes.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.store.GetMessage(ctx, mailbox.ID, messageID)
}
