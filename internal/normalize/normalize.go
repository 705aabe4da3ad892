// Package normalize 将各投递渠道的原始载荷转换为统一的 InboundMessage。
package normalize

import (
	"strings"
	"time"

	"mailme/backend/internal/domain"
)

// UnknownSender 是无法识别发件人时的占位值。
const UnknownSender = "unknown"

// Normalizer 是无状态的纯转换器，时钟可替换以便测试。
type Normalizer struct {
	now func() time.Time
}

// New 创建归一化器。
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// WithClock 替换接收时间来源。
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// finish 补全缺省主题、摘要和接收时间。
func (n *Normalizer) finish(msg *domain.InboundMessage) *domain.InboundMessage {
	msg.Subject = strings.TrimSpace(msg.Subject)
	if msg.Subject == "" {
		msg.Subject = domain.NoSubject
	}
	msg.From = strings.TrimSpace(msg.From)
	if msg.From == "" {
		msg.From = UnknownSender
	}
	msg.To = strings.TrimSpace(msg.To)
	msg.Snippet = domain.DeriveSnippet(msg.Text, msg.HTML)
	msg.ReceivedAt = n.now().UTC()
	return msg
}
