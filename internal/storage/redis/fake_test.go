package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// fakeRedis 是带 TTL 的内存 Redis 替身，时钟可控。
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     time.Time
	failing error
	ttls    map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		ttls:    make(map[string]time.Duration),
		now:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestClient(fake *fakeRedis) *Client {
	return &Client{rdb: fake, log: zap.NewNop()}
}

func (f *fakeRedis) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeRedis) expired(key string) bool {
	at, ok := f.expires[key]
	return ok && !f.now.Before(at)
}

func (f *fakeRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return goredis.NewStatusResult("", f.failing)
	}
	return goredis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return goredis.NewStatusResult("", f.failing)
	}

	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	default:
		return goredis.NewStatusResult("", fmt.Errorf("unsupported value type %T", value))
	}
	f.ttls[key] = expiration
	if expiration > 0 {
		f.expires[key] = f.now.Add(expiration)
	} else {
		delete(f.expires, key)
	}
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return goredis.NewStringResult("", f.failing)
	}
	value, ok := f.values[key]
	if !ok || f.expired(key) {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(value, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return goredis.NewIntResult(0, f.failing)
	}
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok && !f.expired(key) {
			n++
		}
		delete(f.values, key)
		delete(f.expires, key)
	}
	return goredis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error { return nil }

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connection refused")
