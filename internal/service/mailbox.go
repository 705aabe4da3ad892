package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/monitoring"
)

// RoutingPolicy 决定收件邮箱不存在时的处理方式。
type RoutingPolicy int

const (
	// Strict 邮箱必须已存在
	Strict RoutingPolicy = iota
	// LazyCreate 首封邮件到达时创建邮箱
	LazyCreate
)

func (p RoutingPolicy) String() string {
	if p == LazyCreate {
		return "lazy-create"
	}
	return "strict"
}

// Retention 是服务层依赖的保留存储。
type Retention interface {
	UpsertMailbox(ctx context.Context, username, mailDomain string) (*domain.Mailbox, error)
	FindMailbox(ctx context.Context, username string) (*domain.Mailbox, error)
	DeleteMailbox(ctx context.Context, id string) error
	DeleteEmptyMailboxes(ctx context.Context) (int, error)
	AppendMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.InboundMessage) (*domain.StoredMessage, error)
	ListMessages(ctx context.Context, mailboxID string, since time.Time) ([]domain.Message, error)
	GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.StoredMessage, error)
	DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// MailboxService 负责邮箱认领与收件地址路由。
type MailboxService struct {
	store   Retention
	domain  string
	group   singleflight.Group
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewMailboxService 创建邮箱业务服务，servingDomain 为本服务接收邮件的域名。
func NewMailboxService(store Retention, servingDomain string, metrics *monitoring.Metrics, log *zap.Logger) *MailboxService {
	return &MailboxService{
		store:   store,
		domain:  strings.ToLower(strings.TrimSpace(servingDomain)),
		metrics: metrics,
		log:     log.Named("router"),
	}
}

// Domain 返回服务域名。
func (s *MailboxService) Domain() string {
	return s.domain
}

// Claim 显式认领用户名，已存在时返回原邮箱。
func (s *MailboxService) Claim(ctx context.Context, username string) (*domain.Mailbox, error) {
	username = domain.NormalizeUsername(username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	return s.ensure(ctx, username)
}

// Get 按用户名获取邮箱。
func (s *MailboxService) Get(ctx context.Context, username string) (*domain.Mailbox, error) {
	username = domain.NormalizeUsername(username)
	if username == "" {
		return nil, domain.ErrMailboxNotFound
	}
	return s.store.FindMailbox(ctx, username)
}

// Delete 删除邮箱及其所有邮件。
func (s *MailboxService) Delete(ctx context.Context, username string) error {
	mailbox, err := s.Get(ctx, username)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMailbox(ctx, mailbox.ID); err != nil {
		return err
	}
	s.metrics.MailboxDeleted()
	return nil
}

// Resolve 将收件地址解析为邮箱。
//
// 域名不匹配返回 domain.ErrDomainMismatch；用户名为空或（严格模式下）邮箱不存在返回
// domain.ErrMailboxNotFound。
func (s *MailboxService) Resolve(ctx context.Context, toAddress string, policy RoutingPolicy) (*domain.Mailbox, error) {
	local, host := SplitAddress(toAddress)
	if !strings.EqualFold(host, s.domain) {
		return nil, fmt.Errorf("%w: %q", domain.ErrDomainMismatch, host)
	}

	username := domain.NormalizeUsername(local)
	if username == "" {
		return nil, fmt.Errorf("%w: empty local part", domain.ErrMailboxNotFound)
	}

	if policy == Strict {
		return s.store.FindMailbox(ctx, username)
	}

	if err := domain.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMailboxNotFound, err)
	}
	return s.ensure(ctx, username)
}

// ensure 插入或获取邮箱；同一进程内对同名用户名的并发创建合并为一次存储调用。
func (s *MailboxService) ensure(ctx context.Context, username string) (*domain.Mailbox, error) {
	if mailbox, err := s.store.FindMailbox(ctx, username); err == nil {
		return mailbox, nil
	} else if !errors.Is(err, domain.ErrMailboxNotFound) {
		return nil, err
	}

	v, err, _ := s.group.Do(username, func() (interface{}, error) {
		mailbox, err := s.store.UpsertMailbox(ctx, username, s.domain)
		if err != nil {
			return nil, err
		}
		s.metrics.MailboxCreated()
		s.log.Info("mailbox ready", zap.String("username", username), zap.String("mailbox_id", mailbox.ID))
		return mailbox, nil
	})
	if err != nil {
		return nil, err
	}
	mailbox := *v.(*domain.Mailbox)
	return &mailbox, nil
}

// SplitAddress 拆分地址为本地部分与域名，兼容 "<a@b>" 形式。
func SplitAddress(address string) (local, host string) {
	address = strings.TrimSpace(address)
	address = strings.TrimSuffix(strings.TrimPrefix(address, "<"), ">")
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address, ""
	}
	return address[:at], strings.TrimSpace(address[at+1:])
}
