package httptransport

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mailme/backend/internal/domain"
	"mailme/backend/internal/service"
	"mailme/backend/internal/websocket"
)

// MailboxHandler 处理邮箱认领与读取
type MailboxHandler struct {
	mailboxes *service.MailboxService
	messages  *service.MessageService
	hub       *websocket.Hub
}

// NewMailboxHandler 创建邮箱处理器，hub 为 nil 时不提供实时推送
func NewMailboxHandler(mailboxes *service.MailboxService, messages *service.MessageService, hub *websocket.Hub) *MailboxHandler {
	return &MailboxHandler{mailboxes: mailboxes, messages: messages, hub: hub}
}

type claimRequest struct {
	Username string `json:"username"`
}

// claim godoc
// @Summary 认领邮箱
// @Description 认领用户名，已存在时返回原邮箱
// @Tags Mailboxes
// @Accept json
// @Produce json
// @Param request body claimRequest true "用户名"
// @Success 200 {object} mailboxResponse
// @Failure 400 {object} errorResponse
// @Router /api/mails [post]
func (h *MailboxHandler) claim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		BadRequest(c, MsgUsernameRequired)
		return
	}

	mailbox, err := h.mailboxes.Claim(c.Request.Context(), req.Username)
	if err != nil {
		respondError(c, err)
		return
	}

	Success(c, mailboxResponse{
		Username:  mailbox.Username,
		Email:     mailbox.Address(),
		CreatedAt: mailbox.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// list godoc
// @Summary 邮件列表
// @Description 返回邮件元数据，最新在前；since 为 RFC3339 时间，只返回其后的邮件
// @Tags Mailboxes
// @Produce json
// @Param username path string true "用户名"
// @Param since query string false "RFC3339 时间"
// @Success 200 {array} domain.Message
// @Failure 404 {object} errorResponse
// @Router /api/mails/{username} [get]
func (h *MailboxHandler) list(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		// 无法解析的 since 被忽略
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			since = t
		}
	}

	messages, err := h.messages.List(c.Request.Context(), c.Param("username"), since)
	if err != nil {
		respondError(c, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	Success(c, messages)
}

// get godoc
// @Summary 邮件详情
// @Description 返回元数据与正文，正文过期时为空字符串
// @Tags Mailboxes
// @Produce json
// @Param username path string true "用户名"
// @Param messageId path string true "邮件 ID"
// @Success 200 {object} domain.StoredMessage
// @Failure 404 {object} errorResponse
// @Router /api/mails/{username}/{messageId} [get]
func (h *MailboxHandler) get(c *gin.Context) {
	msg, err := h.messages.Get(c.Request.Context(), c.Param("username"), c.Param("messageId"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, msg)
}

// delete godoc
// @Summary 删除邮箱
// @Description 删除邮箱及其全部邮件
// @Tags Mailboxes
// @Param username path string true "用户名"
// @Success 204
// @Failure 404 {object} errorResponse
// @Router /api/mails/{username} [delete]
func (h *MailboxHandler) delete(c *gin.Context) {
	if err := h.mailboxes.Delete(c.Request.Context(), c.Param("username")); err != nil {
		respondError(c, err)
		return
	}
	NoContent(c)
}

// subscribe 升级为 WebSocket 并推送该邮箱的新邮件
func (h *MailboxHandler) subscribe(c *gin.Context) {
	if h.hub == nil {
		Error(c, http.StatusNotImplemented, "live updates disabled")
		return
	}

	mailbox, err := h.mailboxes.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.hub.Serve(c.Writer, c.Request, mailbox.Username)
}
