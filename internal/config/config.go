package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 4000
}

// MailboxConfig 定义邮箱与保留策略
type MailboxConfig struct {
	Domain        string        // 服务域名，只接收该域名下的邮件
	Retention     time.Duration // 邮件保留时长，由 retention_hours 换算
	ContentTTL    time.Duration // 正文独立过期时间
	SweepInterval time.Duration // 清理任务执行间隔
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	Enabled         bool
	BindAddr        string  // 监听地址，格式 "host:port"
	Domain          string  // 用于 HELO/EHLO 响应的主机名
	MaxMessageBytes int64   // 单封邮件大小上限
	MaxConnections  int     // 同时打开的会话上限
	ConnectionRate  float64 // 每秒允许的新连接数
	ConnectionBurst int
}

// WebhookConfig 定义 webhook 鉴权
type WebhookConfig struct {
	Secret             string        // 共享密钥，为空时不校验
	SignatureSecret    string        // HMAC 签名密钥，为空时不校验
	SignatureTolerance time.Duration // 签名时间戳允许的偏差
	MaxBodyBytes       int64
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台格式输出
	File        string // 日志文件路径，为空时只输出到 stdout
	MaxSize     int    // 单个日志文件大小 (MB)
	MaxBackups  int
	MaxAge      int // 天
	Compress    bool
}

// DatabaseConfig 定义元数据存储（为空时使用内存）
type DatabaseConfig struct {
	Type            string // "", "postgres" 或 "mysql"
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig 定义 Redis 连接
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// ContentConfig 定义正文存储后端
type ContentConfig struct {
	Backend string // memory, redis 或 filesystem
	Path    string // filesystem 后端的根目录
}

// EventsConfig 定义新邮件事件发布
type EventsConfig struct {
	AMQPURL  string // 为空时不发布
	Exchange string
}

// Config 是系统配置的根结构体
type Config struct {
	Server   ServerConfig
	Mailbox  MailboxConfig
	SMTP     SMTPConfig
	Webhook  WebhookConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Content  ContentConfig
	Events   EventsConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 优先级：系统环境变量 > .env 文件 > 默认值。环境变量前缀为 MAILME_，
// 例如 MAILME_MAILBOX_DOMAIN、MAILME_WEBHOOK_SECRET。
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("mailme")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("mailbox.domain", "mailme.local")
	v.SetDefault("mailbox.retention_hours", 24)
	v.SetDefault("mailbox.content_ttl", "24h")
	v.SetDefault("mailbox.sweep_interval", "1h")
	v.SetDefault("smtp.enabled", true)
	v.SetDefault("smtp.bind_addr", ":2525")
	v.SetDefault("smtp.domain", "")
	v.SetDefault("smtp.max_message_bytes", 10<<20)
	v.SetDefault("smtp.max_connections", 100)
	v.SetDefault("smtp.connection_rate", 10)
	v.SetDefault("smtp.connection_burst", 20)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.signature_secret", "")
	v.SetDefault("webhook.signature_tolerance", "5m")
	v.SetDefault("webhook.max_body_bytes", 15<<20)
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("database.type", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("content.backend", "memory")
	v.SetDefault("content.path", "./data/content")
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "mailme.events")

	retentionHours := v.GetInt("mailbox.retention_hours")
	if retentionHours <= 0 {
		return nil, fmt.Errorf("mailbox.retention_hours must be positive, got %d", retentionHours)
	}

	contentTTL, err := time.ParseDuration(v.GetString("mailbox.content_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.content_ttl: %w", err)
	}

	sweepInterval, err := time.ParseDuration(v.GetString("mailbox.sweep_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.sweep_interval: %w", err)
	}
	if sweepInterval <= 0 {
		return nil, fmt.Errorf("mailbox.sweep_interval must be positive")
	}

	tolerance, err := time.ParseDuration(v.GetString("webhook.signature_tolerance"))
	if err != nil {
		return nil, fmt.Errorf("invalid webhook.signature_tolerance: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	mailDomain := strings.ToLower(strings.TrimSpace(v.GetString("mailbox.domain")))
	if mailDomain == "" {
		return nil, fmt.Errorf("mailbox.domain must not be empty")
	}

	smtpDomain := v.GetString("smtp.domain")
	if smtpDomain == "" {
		smtpDomain = mailDomain
	}

	contentBackend := strings.ToLower(v.GetString("content.backend"))
	switch contentBackend {
	case "memory", "redis", "filesystem":
	default:
		return nil, fmt.Errorf("unsupported content.backend: %s (supported: memory, redis, filesystem)", contentBackend)
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			Domain:        mailDomain,
			Retention:     time.Duration(retentionHours) * time.Hour,
			ContentTTL:    contentTTL,
			SweepInterval: sweepInterval,
		},
		SMTP: SMTPConfig{
			Enabled:         v.GetBool("smtp.enabled"),
			BindAddr:        v.GetString("smtp.bind_addr"),
			Domain:          smtpDomain,
			MaxMessageBytes: v.GetInt64("smtp.max_message_bytes"),
			MaxConnections:  v.GetInt("smtp.max_connections"),
			ConnectionRate:  v.GetFloat64("smtp.connection_rate"),
			ConnectionBurst: v.GetInt("smtp.connection_burst"),
		},
		Webhook: WebhookConfig{
			Secret:             v.GetString("webhook.secret"),
			SignatureSecret:    v.GetString("webhook.signature_secret"),
			SignatureTolerance: tolerance,
			MaxBodyBytes:       v.GetInt64("webhook.max_body_bytes"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSize:     v.GetInt("log.max_size"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAge:      v.GetInt("log.max_age"),
			Compress:    v.GetBool("log.compress"),
		},
		Database: DatabaseConfig{
			Type:            strings.ToLower(v.GetString("database.type")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Content: ContentConfig{
			Backend: contentBackend,
			Path:    v.GetString("content.path"),
		},
		Events: EventsConfig{
			AMQPURL:  v.GetString("events.amqp_url"),
			Exchange: v.GetString("events.exchange"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片，去除空白项。
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 依次尝试当前目录与父目录的 .env，文件不存在时静默跳过。
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
