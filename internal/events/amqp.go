package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailme/backend/internal/domain"
)

// RoutingKeyEmailReceived 是新邮件事件的路由键。
const RoutingKeyEmailReceived = "email.received"

// channel 是 Publisher 依赖的 AMQP 通道子集。
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher 把新邮件事件发布到 topic exchange
type Publisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string
	mu       sync.Mutex
	log      *zap.Logger
}

// NewPublisher 连接 RabbitMQ 并声明持久化 topic exchange。
func NewPublisher(url, exchange string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Info("event publisher connected", zap.String("exchange", exchange))
	return &Publisher{conn: conn, channel: ch, exchange: exchange, log: log.Named("events")}, nil
}

// NotifyNewMessage 发布 email.received 事件。
func (p *Publisher) NotifyNewMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error {
	body, err := json.Marshal(newEmailReceived(mailbox, msg))
	if err != nil {
		return err
	}

	// amqp091 的 Channel 不支持并发发布
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKeyEmailReceived,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    msg.ID,
			Timestamp:    msg.CreatedAt,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeyEmailReceived, err)
	}
	return nil
}

// IsConnected 检查连接是否仍然可用
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && !p.conn.IsClosed()
}

// Close 关闭通道与连接
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
