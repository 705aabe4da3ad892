package smtp

import (
	"sync"

	"golang.org/x/time/rate"
)

// ConnectionLimiter 限制并发会话数与新建连接速率
type ConnectionLimiter struct {
	maxConns int
	current  int
	mu       sync.Mutex
	rate     *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// maxConns 为最大并发会话数，perSecond/burst 为新建连接的令牌桶参数；
// maxConns <= 0 表示不限并发，perSecond <= 0 表示不限速率。
func NewConnectionLimiter(maxConns int, perSecond float64, burst int) *ConnectionLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &ConnectionLimiter{
		maxConns: maxConns,
		rate:     rate.NewLimiter(limit, burst),
	}
}

// Acquire 获取会话许可，失败时调用方应拒绝连接
func (l *ConnectionLimiter) Acquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxConns > 0 && l.current >= l.maxConns {
		return false
	}
	if !l.rate.Allow() {
		return false
	}
	l.current++
	return true
}

// Release 释放会话许可
func (l *ConnectionLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current > 0 {
		l.current--
	}
}

// Current 当前会话数
func (l *ConnectionLimiter) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}
