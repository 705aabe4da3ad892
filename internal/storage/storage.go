package storage

import (
	"context"
	"time"

	"mailme/backend/internal/domain"
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	// UpsertMailbox 按用户名插入或返回已存在的邮箱，并发调用收敛到同一条记录。
	UpsertMailbox(ctx context.Context, mailbox *domain.Mailbox) (*domain.Mailbox, error)
	FindMailbox(ctx context.Context, username string) (*domain.Mailbox, error)
	// DeleteMailbox 级联删除邮件，返回被删除的邮件 ID。
	DeleteMailbox(ctx context.Context, id string) ([]string, error)
	DeleteEmptyMailboxes(ctx context.Context) (int, error)
}

// MessageRepository 定义邮件元数据存取操作。
type MessageRepository interface {
	// SaveMessage 在所属邮箱已不存在时返回 domain.ErrMailboxNotFound。
	SaveMessage(ctx context.Context, message *domain.Message) error
	// ListMessages 按创建时间倒序返回，since 非零时只返回其后的邮件。
	ListMessages(ctx context.Context, mailboxID string, since time.Time) ([]domain.Message, error)
	GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.Message, error)
	// DeleteMessagesOlderThan 删除 createdAt 早于 cutoff 的邮件，返回其 ID。
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// MetadataStore 聚合邮箱与邮件元数据仓储。
type MetadataStore interface {
	MailboxRepository
	MessageRepository
	Close() error
	Health() error
}

// ContentStore 保存邮件正文，条目可按自身 TTL 过期。
type ContentStore interface {
	SaveContent(ctx context.Context, messageID string, content domain.MessageContent) error
	// GetContent 在正文不存在或已过期时返回 nil, nil。
	GetContent(ctx context.Context, messageID string) (*domain.MessageContent, error)
	DeleteContent(ctx context.Context, messageIDs ...string) error
	Close() error
	Health() error
}
