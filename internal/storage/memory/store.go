package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mailme/backend/internal/domain"
)

// Store 使用内存保存邮箱与邮件元数据，单写锁保证 upsert 的并发安全。
type Store struct {
	mu         sync.RWMutex
	mailboxes  map[string]*domain.Mailbox
	byUsername map[string]string
	messages   map[string]map[string]*messageEntry // mailboxID -> messageID -> message
	seq        uint64
}

// messageEntry 记录写入顺序，同一时间戳下新写入的排在前面。
type messageEntry struct {
	message domain.Message
	seq     uint64
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes:  make(map[string]*domain.Mailbox),
		byUsername: make(map[string]string),
		messages:   make(map[string]map[string]*messageEntry),
	}
}

// UpsertMailbox 插入邮箱或返回同名的已有邮箱。
func (s *Store) UpsertMailbox(_ context.Context, mailbox *domain.Mailbox) (*domain.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUsername[mailbox.Username]; ok {
		existing := *s.mailboxes[id]
		return &existing, nil
	}

	stored := *mailbox
	s.mailboxes[stored.ID] = &stored
	s.byUsername[stored.Username] = stored.ID
	s.messages[stored.ID] = make(map[string]*messageEntry)

	result := stored
	return &result, nil
}

// FindMailbox 根据用户名查找邮箱。
func (s *Store) FindMailbox(_ context.Context, username string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}
	mailbox := *s.mailboxes[id]
	return &mailbox, nil
}

// DeleteMailbox 删除邮箱及其全部邮件。
func (s *Store) DeleteMailbox(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}

	ids := make([]string, 0, len(s.messages[id]))
	for messageID := range s.messages[id] {
		ids = append(ids, messageID)
	}
	delete(s.byUsername, mailbox.Username)
	delete(s.mailboxes, id)
	delete(s.messages, id)
	return ids, nil
}

// DeleteEmptyMailboxes 删除没有任何邮件的邮箱。
func (s *Store) DeleteEmptyMailboxes(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, mailbox := range s.mailboxes {
		if len(s.messages[id]) > 0 {
			continue
		}
		delete(s.byUsername, mailbox.Username)
		delete(s.mailboxes, id)
		delete(s.messages, id)
		count++
	}
	return count, nil
}

// SaveMessage 保存邮件元数据。
func (s *Store) SaveMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.messages[message.MailboxID]
	if !ok {
		return domain.ErrMailboxNotFound
	}
	s.seq++
	bucket[message.ID] = &messageEntry{message: *message, seq: s.seq}
	return nil
}

// ListMessages 返回邮箱的邮件列表，最新的在前。
func (s *Store) ListMessages(_ context.Context, mailboxID string, since time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.messages[mailboxID]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}

	entries := make([]*messageEntry, 0, len(bucket))
	for _, entry := range bucket {
		if !since.IsZero() && !entry.message.CreatedAt.After(since) {
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.message.CreatedAt.Equal(b.message.CreatedAt) {
			return a.message.CreatedAt.After(b.message.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]domain.Message, len(entries))
	for i, entry := range entries {
		result[i] = entry.message
	}
	return result, nil
}

// GetMessage 获取邮箱内的单封邮件。
func (s *Store) GetMessage(_ context.Context, mailboxID, messageID string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.messages[mailboxID]
	if !ok {
		return nil, domain.ErrMailboxNotFound
	}
	entry, ok := bucket[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	message := entry.message
	return &message, nil
}

// DeleteMessagesOlderThan 删除创建时间早于 cutoff 的邮件。
func (s *Store) DeleteMessagesOlderThan(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, bucket := range s.messages {
		for id, entry := range bucket {
			if entry.message.CreatedAt.Before(cutoff) {
				delete(bucket, id)
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Close 内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用。
func (s *Store) Health() error {
	return nil
}
