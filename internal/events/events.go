// Package events 把新邮件事件分发给多个订阅方。
package events

import (
	"context"
	"errors"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/service"
)

// Multi 依次调用所有通知方，汇总错误但不中断后续调用。
type Multi []service.Notifier

// NewMulti 过滤掉 nil 通知方。
func NewMulti(notifiers ...service.Notifier) Multi {
	m := make(Multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			m = append(m, n)
		}
	}
	return m
}

// NotifyNewMessage 实现 service.Notifier。
func (m Multi) NotifyNewMessage(ctx context.Context, mailbox *domain.Mailbox, msg *domain.StoredMessage) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyNewMessage(ctx, mailbox, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailReceived 是发布到消息队列的事件负载。
type EmailReceived struct {
	MailboxID string `json:"mailbox_id"`
	Username  string `json:"username"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Snippet   string `json:"snippet"`
	CreatedAt string `json:"created_at"`
}

func newEmailReceived(mailbox *domain.Mailbox, msg *domain.StoredMessage) EmailReceived {
	return EmailReceived{
		MailboxID: mailbox.ID,
		Username:  mailbox.Username,
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To,
		Subject:   msg.Subject,
		Snippet:   msg.Snippet,
		CreatedAt: msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}
