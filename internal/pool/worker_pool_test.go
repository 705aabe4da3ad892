package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWorkerPool(t *testing.T) {
	t.Run("执行所有已提交任务", func(t *testing.T) {
		p := NewWorkerPool(4, 100, zap.NewNop())
		p.Start(context.Background())

		var done int32
		for i := 0; i < 50; i++ {
			assert.True(t, p.TrySubmit(func(context.Context) {
				atomic.AddInt32(&done, 1)
			}))
		}
		p.Stop()
		assert.Equal(t, int32(50), atomic.LoadInt32(&done))
	})

	t.Run("任务 panic 不影响后续任务", func(t *testing.T) {
		p := NewWorkerPool(1, 10, zap.NewNop())
		p.Start(context.Background())

		var done int32
		p.TrySubmit(func(context.Context) { panic("boom") })
		p.TrySubmit(func(context.Context) { atomic.AddInt32(&done, 1) })
		p.Stop()
		assert.Equal(t, int32(1), atomic.LoadInt32(&done))
	})

	t.Run("队列已满", func(t *testing.T) {
		p := NewWorkerPool(1, 1, zap.NewNop())
		assert.True(t, p.TrySubmit(func(context.Context) {}))
		assert.False(t, p.TrySubmit(func(context.Context) {}))
	})

	t.Run("停止后拒绝提交", func(t *testing.T) {
		p := NewWorkerPool(1, 1, zap.NewNop())
		p.Start(context.Background())
		p.Stop()
		p.Stop()
		assert.False(t, p.TrySubmit(func(context.Context) {}))
	})
}
