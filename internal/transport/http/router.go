package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"mailme/backend/internal/auth"
	"mailme/backend/internal/config"
	"mailme/backend/internal/health"
	"mailme/backend/internal/middleware"
	"mailme/backend/internal/monitoring"
	"mailme/backend/internal/normalize"
	"mailme/backend/internal/service"
	"mailme/backend/internal/websocket"

	_ "mailme/backend/docs"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	MessageService *service.MessageService
	IngestService  *service.IngestService
	Normalizer     *normalize.Normalizer
	WebSocketHub   *websocket.Hub  // 可为 nil
	Health         *health.Checker // 可为 nil
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.HTTPMetrics(deps.Metrics))
	router.Use(middleware.SecurityHeaders())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			auth.TimestampHeader, auth.SignatureHeader, "X-Email-To", "X-Email-From",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "domain": deps.MailboxService.Domain()})
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	mailboxHandler := NewMailboxHandler(deps.MailboxService, deps.MessageService, deps.WebSocketHub)
	api := router.Group("/api/mails")
	api.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	{
		api.POST("", mailboxHandler.claim)
		api.GET("/:username", mailboxHandler.list)
		api.DELETE("/:username", mailboxHandler.delete)
		api.GET("/:username/ws", mailboxHandler.subscribe)
		api.GET("/:username/:messageId", mailboxHandler.get)
	}

	webhookHandler := NewWebhookHandler(deps.IngestService, deps.Normalizer)
	verifier := auth.NewSignatureVerifier(deps.Config.Webhook.SignatureSecret, deps.Config.Webhook.SignatureTolerance)
	webhooks := router.Group("/webhook")
	webhooks.Use(middleware.BodySizeLimit(deps.Config.Webhook.MaxBodyBytes))
	{
		signed := middleware.WebhookAuth(deps.Config.Webhook.Secret, verifier, deps.Logger)
		webhooks.POST("/forwardemail", signed, webhookHandler.receiveJSON)
		webhooks.POST("/resend", signed, webhookHandler.receiveJSON)
		// 原始邮件路由只校验共享密钥
		webhooks.POST("/cloudflare", middleware.WebhookAuth(deps.Config.Webhook.Secret, nil, deps.Logger), webhookHandler.receiveRaw)
	}

	return router
}
