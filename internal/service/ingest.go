package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/monitoring"
)

// Channel 标识投递渠道。
type Channel string

const (
	ChannelSMTP    Channel = "smtp"
	ChannelWebhook Channel = "webhook"
	ChannelRaw     Channel = "raw"
)

// Notifier 接收新邮件通知，失败不影响投递结果。
type Notifier interface {
	NotifyNewMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error
}

// IngestService 串联路由与存储：resolve → append → notify。
type IngestService struct {
	mailboxes *MailboxService
	store     Retention
	notifier  Notifier
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewIngestService 创建投递服务，notifier 可为 nil。
func NewIngestService(mailboxes *MailboxService, store Retention, notifier Notifier, metrics *monitoring.Metrics, log *zap.Logger) *IngestService {
	return &IngestService{
		mailboxes: mailboxes,
		store:     store,
		notifier:  notifier,
		metrics:   metrics,
		log:       log.Named("ingest"),
	}
}

// Deliver 将已归一化的邮件投递到收件邮箱，成功时恰好写入一次。
func (s *IngestService) Deliver(ctx context.Context, channel Channel, msg *domain.InboundMessage, policy RoutingPolicy) (*domain.Mailbox, *domain.StoredMessage, error) {
	start := time.Now()

	mailbox, err := s.mailboxes.Resolve(ctx, msg.To, policy)
	if err != nil {
		s.reject(channel, msg, err)
		return nil, nil, err
	}

	stored, err := s.store.AppendMessage(ctx, mailbox, msg)
	if errors.Is(err, domain.ErrMailboxNotFound) && policy == LazyCreate {
		// 邮箱在解析与写入之间被清理任务删除，重建后重试一次
		mailbox, err = s.mailboxes.Resolve(ctx, msg.To, policy)
		if err == nil {
			stored, err = s.store.AppendMessage(ctx, mailbox, msg)
		}
	}
	if err != nil {
		s.reject(channel, msg, err)
		return nil, nil, err
	}

	s.metrics.MessageDelivered(string(channel), time.Since(start))
	s.log.Info("message delivered",
		zap.String("channel", string(channel)),
		zap.String("username", mailbox.Username),
		zap.String("message_id", stored.ID),
		zap.String("from", msg.From),
	)

	if s.notifier != nil {
		if err := s.notifier.NotifyNewMessage(ctx, mailbox, stored); err != nil {
			s.log.Warn("new message notification failed", zap.String("message_id", stored.ID), zap.Error(err))
		}
	}
	return mailbox, stored, nil
}

func (s *IngestService) reject(channel Channel, msg *domain.InboundMessage, err error) {
	reason := RejectReason(err)
	s.metrics.MessageRejected(string(channel), reason)

	fields := []zap.Field{
		zap.String("channel", string(channel)),
		zap.String("to", msg.To),
		zap.String("reason", reason),
		zap.Error(err),
	}
	if reason == "internal" {
		s.log.Error("message dropped", fields...)
		return
	}
	s.log.Info("message not delivered", fields...)
}

// RejectReason 把投递错误归类为稳定的原因字符串。
func RejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrParse):
		return "parse_error"
	case errors.Is(err, domain.ErrDomainMismatch):
		return "domain_mismatch"
	case errors.Is(err, domain.ErrMailboxNotFound):
		return "mailbox_not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}
