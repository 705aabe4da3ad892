package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/storage/hybrid"
	"mailme/backend/internal/storage/memory"
)

const testDomain = "mailme.local"

// newTestRetention 返回基于内存的保留存储。
func newTestRetention() *hybrid.Store {
	return hybrid.NewStore(memory.NewStore(), memory.NewContentStore(time.Hour), zap.NewNop())
}

func inbound(to string) *domain.InboundMessage {
	return &domain.InboundMessage{
		From:       "sender@example.com",
		To:         to,
		Subject:    "Hello",
		Text:       "hello there",
		Snippet:    "hello there",
		ReceivedAt: time.Now(),
	}
}

// flakyRetention 让第一次 AppendMessage 返回邮箱不存在，模拟与清理任务的竞争。
type flakyRetention struct {
	Retention
	failures int
}

func (f *flakyRetention) AppendMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.InboundMessage) (*domain.StoredMessage, error) {
	if f.failures > 0 {
		f.failures--
		return nil, domain.ErrMailboxNotFound
	}
	return f.Retention.AppendMessage(ctx, mailbox, msg)
}
