package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailme/backend/internal/domain"
)

// 通用错误消息
const (
	MsgUsernameRequired = "username required"
	MsgInvalidUsername  = "invalid username"
	MsgMailboxNotFound  = "mailbox not found"
	MsgMessageNotFound  = "message not found"
	MsgMissingRawBody   = "missing raw body"
	MsgRawBodyRequired  = "raw RFC822 body required"
	MsgInvalidPayload   = "invalid payload"
	MsgInternalError    = "internal server error"
)

// errorStatus 业务错误 -> HTTP 状态码与消息
var errorStatus = []struct {
	err    error
	status int
	msg    string
}{
	{domain.ErrInvalidUsername, http.StatusBadRequest, MsgInvalidUsername},
	{domain.ErrParse, http.StatusBadRequest, MsgInvalidPayload},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrMessageNotFound, http.StatusNotFound, MsgMessageNotFound},
	{domain.ErrMailboxNotFound, http.StatusNotFound, MsgMailboxNotFound},
}

// GetErrorStatus 返回错误对应的状态码与消息，未知错误视为 500
func GetErrorStatus(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}

// respondError 按错误类别写响应，5xx 同时记入 gin 错误列表供请求日志输出
func respondError(c *gin.Context, err error) {
	status, msg := GetErrorStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	Error(c, status, msg)
}
