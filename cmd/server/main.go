// @title mailme API
// @version 1.0
// @description 按用户名寻址的临时邮箱：认领邮箱、读取邮件、接收 webhook 投递。
// @BasePath /
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailme/backend/internal/config"
	"mailme/backend/internal/events"
	"mailme/backend/internal/health"
	"mailme/backend/internal/logger"
	"mailme/backend/internal/monitoring"
	"mailme/backend/internal/normalize"
	"mailme/backend/internal/pool"
	"mailme/backend/internal/service"
	"mailme/backend/internal/smtp"
	"mailme/backend/internal/storage"
	"mailme/backend/internal/storage/filesystem"
	"mailme/backend/internal/storage/hybrid"
	"mailme/backend/internal/storage/memory"
	"mailme/backend/internal/storage/redis"
	sqlstore "mailme/backend/internal/storage/sql"
	httptransport "mailme/backend/internal/transport/http"
	"mailme/backend/internal/websocket"
)

// main 启动同时包含 HTTP API、SMTP 与清理任务的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mailme server",
		zap.String("domain", cfg.Mailbox.Domain),
		zap.Duration("retention", cfg.Mailbox.Retention),
		zap.String("log_level", cfg.Log.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(nil)

	store, err := initializeStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()

	healthChecker := health.NewChecker(log)
	healthChecker.AddReadiness("store", store)

	// 新邮件通知：WebSocket 直接推送，AMQP 事件经协程池异步发布
	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, log)
	notifiers := []service.Notifier{wsHub}

	workers := pool.NewWorkerPool(4, 1024, log)
	if cfg.Events.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
		if err != nil {
			log.Fatal("failed to initialize event publisher", zap.Error(err))
		}
		defer func() { _ = publisher.Close() }()

		healthChecker.AddReadiness("amqp", health.PingerFunc(func() error {
			if !publisher.IsConnected() {
				return errors.New("amqp connection closed")
			}
			return nil
		}))
		notifiers = append(notifiers, events.NewAsync(workers, publisher, 5*time.Second, log))
	}

	normalizer := normalize.New()
	mailboxService := service.NewMailboxService(store, cfg.Mailbox.Domain, metrics, log)
	messageService := service.NewMessageService(mailboxService, store)
	ingestService := service.NewIngestService(mailboxService, store, events.NewMulti(notifiers...), metrics, log)
	sweeper := service.NewSweeper(store, cfg.Mailbox.Retention, cfg.Mailbox.SweepInterval, metrics, log)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		MessageService: messageService,
		IngestService:  ingestService,
		Normalizer:     normalizer,
		WebSocketHub:   wsHub,
		Health:         healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		limiter := smtp.NewConnectionLimiter(cfg.SMTP.MaxConnections, cfg.SMTP.ConnectionRate, cfg.SMTP.ConnectionBurst)
		backend := smtp.NewBackend(ingestService, normalizer, cfg.Mailbox.Domain, limiter, metrics, log)

		smtpServer = gosmtp.NewServer(backend)
		smtpServer.Addr = cfg.SMTP.BindAddr
		smtpServer.Domain = cfg.SMTP.Domain
		smtpServer.ReadTimeout = 60 * time.Second
		smtpServer.WriteTimeout = 60 * time.Second
		smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageBytes
		smtpServer.MaxRecipients = 50
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// 关闭时 workers.Stop 会排空队列，任务不随信号取消
	workers.Start(context.Background())
	sweeper.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// WebSocket Hub goroutine
	group.Go(func() error {
		wsHub.Run(groupCtx)
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		sweeper.Stop()
		workers.Stop()
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// initializeStorage 按配置组合元数据存储与正文存储
func initializeStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*hybrid.Store, error) {
	var meta storage.MetadataStore
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		sqlStore, err := sqlstore.NewStore(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s metadata store: %w", cfg.Database.Type, err)
		}
		meta = sqlStore
		log.Info("using database metadata store", zap.String("type", cfg.Database.Type))
	} else {
		meta = memory.NewStore()
		log.Info("using memory metadata store (development mode)")
	}

	var content storage.ContentStore
	switch cfg.Content.Backend {
	case "redis":
		client, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		content = redis.NewContentStore(client, cfg.Mailbox.ContentTTL)
	case "filesystem":
		fsStore, err := filesystem.NewContentStore(cfg.Content.Path, cfg.Mailbox.ContentTTL)
		if err != nil {
			_ = meta.Close()
			return nil, fmt.Errorf("failed to initialize filesystem content store: %w", err)
		}
		content = fsStore
	default:
		content = memory.NewContentStore(cfg.Mailbox.ContentTTL)
	}
	log.Info("content store initialized",
		zap.String("backend", cfg.Content.Backend),
		zap.Duration("ttl", cfg.Mailbox.ContentTTL),
	)

	return hybrid.NewStore(meta, content, log), nil
}
