package domain

import "time"

// NoSubject 是缺省主题。
const NoSubject = "(No Subject)"

// Message 表示一封已持久化邮件的元数据，正文单独存放。
type Message struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	To        string    `json:"to" gorm:"type:varchar(320)"`
	From      string    `json:"from" gorm:"type:varchar(512)"`
	Subject   string    `json:"subject" gorm:"type:varchar(998)"`
	Snippet   string    `json:"snippet" gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// MessageContent 是邮件正文，可能早于元数据过期。
type MessageContent struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// StoredMessage 是元数据与正文的组合视图。
type StoredMessage struct {
	Message
	Content MessageContent `json:"content"`
}

// InboundMessage 是各投递渠道归一化后的统一邮件结构。
type InboundMessage struct {
	From       string
	To         string
	Subject    string
	Text       string
	HTML       string
	Snippet    string
	ReceivedAt time.Time
}

// DeliveryOutcome 描述一次 webhook 投递的结果。
type DeliveryOutcome struct {
	Delivered       bool   `json:"delivered"`
	MailboxUsername string `json:"mailboxUsername,omitempty"`
	Reason          string `json:"reason,omitempty"`
}
