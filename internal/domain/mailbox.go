package domain

import (
	"strings"
	"time"
)

// Mailbox 表示一个按用户名寻址的临时邮箱。
type Mailbox struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username  string    `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	Domain    string    `json:"domain" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// Address 返回邮箱的完整地址。
func (m *Mailbox) Address() string {
	return m.Username + "@" + m.Domain
}

// NormalizeUsername 去除空白并统一为小写，用户名大小写不敏感。
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
