package httptransport

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/middleware"
	"mailme/backend/internal/normalize"
	"mailme/backend/internal/service"
)

// 投递未成功时返回给 webhook 调用方的原因
const (
	ReasonIgnoredEvent    = "ignored event type"
	ReasonMailboxNotFound = "mailbox not found"
	ReasonDomainMismatch  = "domain not served"
)

// WebhookHandler 处理第三方邮件服务的入站回调
//
// webhook 使用严格路由：收件邮箱必须已被认领，否则返回 200 和 delivered=false，
// 避免上游重试。
type WebhookHandler struct {
	ingest     *service.IngestService
	normalizer *normalize.Normalizer
}

// NewWebhookHandler 创建 webhook 处理器
func NewWebhookHandler(ingest *service.IngestService, normalizer *normalize.Normalizer) *WebhookHandler {
	return &WebhookHandler{ingest: ingest, normalizer: normalizer}
}

// receiveJSON godoc
// @Summary 接收 JSON 邮件
// @Description 接收 {from,to,subject,text,html} 或 {type:"email.received",data:{...}}
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} domain.DeliveryOutcome
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /webhook/forwardemail [post]
// @Router /webhook/resend [post]
func (h *WebhookHandler) receiveJSON(c *gin.Context) {
	body, err := middleware.WebhookBody(c)
	if err != nil {
		BadRequest(c, MsgInvalidPayload)
		return
	}

	msg, err := h.normalizer.FromWebhook(body)
	if errors.Is(err, normalize.ErrIgnoredEvent) {
		Success(c, domain.DeliveryOutcome{Delivered: false, Reason: ReasonIgnoredEvent})
		return
	}
	if err != nil {
		BadRequest(c, MsgInvalidPayload)
		return
	}

	h.deliver(c, service.ChannelWebhook, msg)
}

// receiveRaw godoc
// @Summary 接收原始邮件
// @Description 请求体为 message/rfc822 原文；X-Email-To / X-Email-From 仅在邮件头缺失时使用
// @Tags Webhooks
// @Accept plain
// @Produce json
// @Success 200 {object} domain.DeliveryOutcome
// @Failure 400 {object} errorResponse
// @Failure 401 {object} errorResponse
// @Router /webhook/cloudflare [post]
func (h *WebhookHandler) receiveRaw(c *gin.Context) {
	if c.ContentType() == gin.MIMEJSON {
		BadRequest(c, MsgRawBodyRequired)
		return
	}

	body, err := middleware.WebhookBody(c)
	if err != nil || len(bytes.TrimSpace(body)) == 0 {
		BadRequest(c, MsgMissingRawBody)
		return
	}
	// 无论声明的 Content-Type 是什么，JSON 载荷都不是原始邮件
	if isJSONDocument(body) {
		BadRequest(c, MsgRawBodyRequired)
		return
	}

	msg, err := h.normalizer.FromRFC822(body, normalize.Hints{
		To:   c.GetHeader("X-Email-To"),
		From: c.GetHeader("X-Email-From"),
	})
	if err != nil {
		BadRequest(c, MsgInvalidPayload)
		return
	}

	h.deliver(c, service.ChannelRaw, msg)
}

func (h *WebhookHandler) deliver(c *gin.Context, channel service.Channel, msg *domain.InboundMessage) {
	mailbox, _, err := h.ingest.Deliver(c.Request.Context(), channel, msg, service.Strict)
	switch {
	case err == nil:
		Success(c, domain.DeliveryOutcome{Delivered: true, MailboxUsername: mailbox.Username})
	case errors.Is(err, domain.ErrDomainMismatch):
		Success(c, domain.DeliveryOutcome{Delivered: false, Reason: ReasonDomainMismatch})
	case errors.Is(err, domain.ErrMailboxNotFound):
		Success(c, domain.DeliveryOutcome{Delivered: false, Reason: ReasonMailboxNotFound})
	default:
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, MsgInternalError)
	}
}

func isJSONDocument(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
