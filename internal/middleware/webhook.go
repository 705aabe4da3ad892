package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailme/backend/internal/auth"
	"mailme/backend/internal/domain"
)

// WebhookBodyKey 是已读取请求体在 gin.Context 中的键
const WebhookBodyKey = "webhook.body"

// WebhookAuth 校验共享密钥与可选的 HMAC 签名
//
// 请求体在此一次性读入并放入上下文，处理器通过 WebhookBody 取用。
func WebhookAuth(secret string, verifier *auth.SignatureVerifier, log *zap.Logger) gin.HandlerFunc {
	log = log.Named("webhook")

	return func(c *gin.Context) {
		if err := auth.VerifySharedSecret(c.Request, secret); err != nil {
			log.Warn("webhook rejected", zap.String("path", c.FullPath()), zap.String("ip", c.ClientIP()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
				return
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}

		if verifier != nil && verifier.Enabled() {
			err := verifier.Verify(c.GetHeader(auth.TimestampHeader), c.GetHeader(auth.SignatureHeader), body)
			if err != nil {
				log.Warn("webhook signature rejected", zap.String("path", c.FullPath()), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}

		c.Set(WebhookBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// WebhookBody 返回 WebhookAuth 读取的请求体
func WebhookBody(c *gin.Context) ([]byte, error) {
	if v, ok := c.Get(WebhookBodyKey); ok {
		if body, ok := v.([]byte); ok {
			return body, nil
		}
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.Join(domain.ErrParse, err)
	}
	return body, nil
}
