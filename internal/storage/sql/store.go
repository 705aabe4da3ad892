package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"mailme/backend/internal/config"
	"mailme/backend/internal/domain"
)

// deleteBatchSize 限制单条 DELETE ... IN 的参数个数。
const deleteBatchSize = 500

// Store 基于 GORM 的元数据存储（支持 PostgreSQL 与 MySQL）。
type Store struct {
	db      *gorm.DB
	sqlDB   *sql.DB
	release func()
}

// NewPostgresStore 通过 pgx 连接池创建 PostgreSQL 存储。
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	sqlDB, release, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(postgres.New(postgres.Config{Conn: sqlDB}), sqlDB, release)
	if err != nil {
		sqlDB.Close()
		release()
		return nil, err
	}
	return store, nil
}

// NewMySQLStore 创建 MySQL 存储。
func NewMySQLStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	sqlDB, err := openMySQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(gormmysql.New(gormmysql.Config{Conn: sqlDB}), sqlDB, func() {})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// NewStore 按数据库类型创建存储。
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return NewPostgresStore(ctx, cfg)
	case "mysql":
		return NewMySQLStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", cfg.Type)
	}
}

func newStore(dialector gorm.Dialector, sqlDB *sql.DB, release func()) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{db: db, sqlDB: sqlDB, release: release}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate 自动迁移表结构，生产环境建议使用 cmd/migrate。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(&domain.Mailbox{}, &domain.Message{})
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	err := s.sqlDB.Close()
	s.release()
	return err
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

// ========== Mailbox Repository ==========

// UpsertMailbox 依赖 username 唯一约束：冲突时不插入，随后读取胜出的记录。
func (s *Store) UpsertMailbox(ctx context.Context, mailbox *domain.Mailbox) (*domain.Mailbox, error) {
	if err := insertMailboxIfAbsent(s.db.WithContext(ctx), mailbox).Error; err != nil {
		return nil, unavailable(err)
	}
	return s.FindMailbox(ctx, mailbox.Username)
}

// FindMailbox 根据用户名查找邮箱。
func (s *Store) FindMailbox(ctx context.Context, username string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&mailbox).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMailboxNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &mailbox, nil
}

// DeleteMailbox 在事务中删除邮件和邮箱。
func (s *Store) DeleteMailbox(ctx context.Context, id string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Message{}).Where("mailbox_id = ?", id).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if err := tx.Where("mailbox_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&domain.Mailbox{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrMailboxNotFound
		}
		return nil
	})
	if errors.Is(err, domain.ErrMailboxNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

// DeleteEmptyMailboxes 删除没有邮件的邮箱。
func (s *Store) DeleteEmptyMailboxes(ctx context.Context) (int, error) {
	result := deleteEmptyMailboxes(s.db.WithContext(ctx))
	if result.Error != nil {
		return 0, unavailable(result.Error)
	}
	return int(result.RowsAffected), nil
}

// ========== Message Repository ==========

// SaveMessage 以共享锁确认邮箱仍存在后写入，避免与清理任务交错产生孤儿邮件。
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := lockMailboxForShare(tx, message.MailboxID, &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return domain.ErrMailboxNotFound
		}
		return tx.Create(message).Error
	})
	if errors.Is(err, domain.ErrMailboxNotFound) {
		return err
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListMessages 返回邮箱的邮件列表，最新的在前。
func (s *Store) ListMessages(ctx context.Context, mailboxID string, since time.Time) ([]domain.Message, error) {
	query := s.db.WithContext(ctx).Where("mailbox_id = ?", mailboxID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since.UTC())
	}

	var messages []domain.Message
	if err := query.Order("created_at DESC").Order("id DESC").Find(&messages).Error; err != nil {
		return nil, unavailable(err)
	}
	return messages, nil
}

// GetMessage 获取邮箱内的单封邮件。
func (s *Store) GetMessage(ctx context.Context, mailboxID, messageID string) (*domain.Message, error) {
	var message domain.Message
	err := s.db.WithContext(ctx).
		Where("id = ? AND mailbox_id = ?", messageID, mailboxID).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &message, nil
}

// DeleteMessagesOlderThan 分批删除早于 cutoff 的邮件。
func (s *Store) DeleteMessagesOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	db := s.db.WithContext(ctx)

	var ids []string
	if err := db.Model(&domain.Message{}).Where("created_at < ?", cutoff.UTC()).Pluck("id", &ids).Error; err != nil {
		return nil, unavailable(err)
	}

	deleted := make([]string, 0, len(ids))
	for _, batch := range chunk(ids, deleteBatchSize) {
		if err := db.Where("id IN ?", batch).Delete(&domain.Message{}).Error; err != nil {
			return deleted, unavailable(err)
		}
		deleted = append(deleted, batch...)
	}
	return deleted, nil
}

// insertMailboxIfAbsent 依赖 username 唯一约束，冲突时不写入。
func insertMailboxIfAbsent(tx *gorm.DB, mailbox *domain.Mailbox) *gorm.DB {
	return tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "username"}}, DoNothing: true}).
		Create(mailbox)
}

// deleteEmptyMailboxes 以单条 DELETE ... WHERE NOT EXISTS 删除空邮箱，与并发写入的邮件不交错。
func deleteEmptyMailboxes(tx *gorm.DB) *gorm.DB {
	hasMessages := tx.Session(&gorm.Session{NewDB: true}).
		Model(&domain.Message{}).
		Select("1").
		Where("messages.mailbox_id = mailboxes.id")
	return tx.Where("NOT EXISTS (?)", hasMessages).Delete(&domain.Mailbox{})
}

// lockMailboxForShare 读取邮箱 ID 并持有共享锁直到事务结束。
func lockMailboxForShare(tx *gorm.DB, mailboxID string, ids *[]string) *gorm.DB {
	return tx.Model(&domain.Mailbox{}).
		Clauses(clause.Locking{Strength: clause.LockingStrengthShare}).
		Where("id = ?", mailboxID).
		Pluck("id", ids)
}

func chunk(ids []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
