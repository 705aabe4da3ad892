package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailme/backend/internal/monitoring"
)

// SweepResult 记录一次清理的结果。
type SweepResult struct {
	Cutoff           time.Time
	MessagesDeleted  int
	MailboxesDeleted int
}

// Sweeper 周期性删除过期邮件与空邮箱，生命周期由 Start/Stop 控制。
type Sweeper struct {
	store     Retention
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	metrics   *monitoring.Metrics
	log       *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper 创建清理任务。
func NewSweeper(store Retention, retention, interval time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		metrics:   metrics,
		log:       log.Named("sweeper"),
	}
}

// SetClock 替换时钟。
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce 执行一次清理。cutoff 在开始时计算一次，之后写入的邮件不受影响。
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	result := SweepResult{Cutoff: s.now().Add(-s.retention)}

	deleted, err := s.store.DeleteMessagesOlderThan(ctx, result.Cutoff)
	result.MessagesDeleted = deleted
	if err != nil {
		return result, err
	}

	removed, err := s.store.DeleteEmptyMailboxes(ctx)
	result.MailboxesDeleted = removed
	return result, err
}

// Start 启动后台清理循环，重复调用无效。
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop 停止清理循环并等待当前一轮结束。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("retention", s.retention),
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	result, err := s.RunOnce(ctx)
	s.metrics.SweepCompleted(result.MessagesDeleted, result.MailboxesDeleted, time.Since(start), err)
	if err != nil {
		// 下一个周期重试
		s.log.Error("sweep failed", zap.Time("cutoff", result.Cutoff), zap.Error(err))
		return
	}
	if result.MessagesDeleted > 0 || result.MailboxesDeleted > 0 {
		s.log.Info("sweep completed",
			zap.Int("messages_deleted", result.MessagesDeleted),
			zap.Int("mailboxes_deleted", result.MailboxesDeleted),
		)
	}
}
