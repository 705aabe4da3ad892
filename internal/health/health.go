// Package health 提供存活与就绪检查。
package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 是可检查连通性的依赖。
type Pinger interface {
	Health() error
}

// PingerFunc 把函数适配为 Pinger
type PingerFunc func() error

func (f PingerFunc) Health() error { return f() }

// Checker 健康检查器
type Checker struct {
	handler healthcheck.Handler
	log     *zap.Logger
}

// NewChecker 创建健康检查器，存活检查只确认进程在运行
func NewChecker(log *zap.Logger) *Checker {
	c := &Checker{
		handler: healthcheck.NewHandler(),
		log:     log.Named("health"),
	}
	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return c
}

// AddReadiness 注册就绪检查，超时视为失败
func (c *Checker) AddReadiness(name string, dep Pinger) {
	check := healthcheck.Timeout(func() error {
		if err := dep.Health(); err != nil {
			c.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return err
		}
		return nil
	}, 3*time.Second)
	c.handler.AddReadinessCheck(name, check)
}

// LiveHandler 处理 /health/live
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.handler.LiveEndpoint
}

// ReadyHandler 处理 /health/ready，失败时返回 503
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.handler.ReadyEndpoint
}
