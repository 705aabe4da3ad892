package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/pool"
	"mailme/backend/internal/service"
)

// ErrDispatchQueueFull 异步队列已满，事件被丢弃。
var ErrDispatchQueueFull = errors.New("event dispatch queue full")

// Async 在协程池中调用下游通知方，投递路径不等待发布完成。
type Async struct {
	pool    *pool.WorkerPool
	next    service.Notifier
	timeout time.Duration
	log     *zap.Logger
}

// NewAsync 创建异步通知方，timeout 限制单次下游调用。
func NewAsync(p *pool.WorkerPool, next service.Notifier, timeout time.Duration, log *zap.Logger) *Async {
	return &Async{pool: p, next: next, timeout: timeout, log: log.Named("events")}
}

// NotifyNewMessage 提交后立即返回；下游错误只记录日志。
func (a *Async) NotifyNewMessage(_ context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error {
	mb, m := *mailbox, *msg
	ok := a.pool.TrySubmit(func(ctx context.Context) {
		if a.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
			defer cancel()
		}
		if err := a.next.NotifyNewMessage(ctx, &mb, &m); err != nil {
			a.log.Warn("event dispatch failed", zap.String("message_id", m.ID), zap.Error(err))
		}
	})
	if !ok {
		return ErrDispatchQueueFull
	}
	return nil
}
