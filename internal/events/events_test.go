package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/pool"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error {
	args := m.Called(mailbox.Username, msg.ID)
	return args.Error(0)
}

type recordingChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *recordingChannel) Close() error { return nil }

func fixture() (*domain.Mailbox, *domain.StoredMessage) {
	mailbox := &domain.Mailbox{ID: "mb-1", Username: "bob", Domain: "mailme.local"}
	msg := &domain.StoredMessage{Message: domain.Message{
		ID:        "msg-1",
		MailboxID: "mb-1",
		From:      "alice@example.com",
		To:        "bob@mailme.local",
		Subject:   "Hi",
		Snippet:   "hello",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
	return mailbox, msg
}

func TestMulti(t *testing.T) {
	mailbox, msg := fixture()

	t.Run("所有通知方都被调用", func(t *testing.T) {
		first, second := new(MockNotifier), new(MockNotifier)
		first.On("NotifyNewMessage", "bob", "msg-1").Return(errors.New("boom")).Once()
		second.On("NotifyNewMessage", "bob", "msg-1").Return(nil).Once()

		err := NewMulti(first, nil, second).NotifyNewMessage(context.Background(), mailbox, msg)
		assert.EqualError(t, err, "boom")
		first.AssertExpectations(t)
		second.AssertExpectations(t)
	})

	t.Run("空列表", func(t *testing.T) {
		assert.NoError(t, NewMulti().NotifyNewMessage(context.Background(), mailbox, msg))
	})
}

func TestPublisher_NotifyNewMessage(t *testing.T) {
	mailbox, msg := fixture()
	ch := &recordingChannel{}
	p := &Publisher{channel: ch, exchange: "mailme.events", log: zap.NewNop()}

	require.NoError(t, p.NotifyNewMessage(context.Background(), mailbox, msg))
	assert.Equal(t, "mailme.events", ch.exchange)
	assert.Equal(t, RoutingKeyEmailReceived, ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "msg-1", ch.msg.MessageId)

	var event EmailReceived
	require.NoError(t, json.Unmarshal(ch.msg.Body, &event))
	assert.Equal(t, "bob", event.Username)
	assert.Equal(t, "mb-1", event.MailboxID)
	assert.Equal(t, "2026-01-02T03:04:05.000Z", event.CreatedAt)

	t.Run("发布失败返回错误", func(t *testing.T) {
		ch.err = errors.New("channel closed")
		assert.Error(t, p.NotifyNewMessage(context.Background(), mailbox, msg))
	})

	assert.False(t, p.IsConnected())
	assert.NoError(t, p.Close())
}

func TestAsync(t *testing.T) {
	mailbox, msg := fixture()

	t.Run("在协程池中调用下游", func(t *testing.T) {
		next := new(MockNotifier)
		next.On("NotifyNewMessage", "bob", "msg-1").Return(errors.New("broker down")).Once()

		p := pool.NewWorkerPool(1, 4, zap.NewNop())
		p.Start(context.Background())

		a := NewAsync(p, next, time.Second, zap.NewNop())
		require.NoError(t, a.NotifyNewMessage(context.Background(), mailbox, msg))
		p.Stop()
		next.AssertExpectations(t)
	})

	t.Run("队列已满", func(t *testing.T) {
		p := pool.NewWorkerPool(1, 0, zap.NewNop())
		a := NewAsync(p, new(MockNotifier), 0, zap.NewNop())
		assert.ErrorIs(t, a.NotifyNewMessage(context.Background(), mailbox, msg), ErrDispatchQueueFull)
	})
}
