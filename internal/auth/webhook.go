// Package auth 校验入站 webhook 的共享密钥与 HMAC 签名。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mailme/backend/internal/domain"
)

const (
	// TimestampHeader 携带 Unix 秒级时间戳
	TimestampHeader = "X-Webhook-Timestamp"
	// SignatureHeader 携带一个或多个以空格分隔的签名
	SignatureHeader = "X-Webhook-Signature"
)

// VerifySharedSecret 校验 Authorization: Bearer 或 ?secret= 中的共享密钥；secret 为空时跳过。
func VerifySharedSecret(r *http.Request, secret string) error {
	if secret == "" {
		return nil
	}

	provided := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if provided == "" {
		provided = r.URL.Query().Get("secret")
	}
	if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		return fmt.Errorf("%w: invalid webhook secret", domain.ErrUnauthorized)
	}
	return nil
}

// SignatureVerifier 校验 HMAC-SHA256(secret, timestamp + "." + body)。
//
// 签名头可包含多个候选，任一匹配即通过，以便密钥轮换。候选格式为
// "sha256=<hex>" 或 "v1,<base64>"。
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier 创建签名校验器，secret 为空时校验器处于关闭状态。
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		now:       time.Now,
	}
}

// SetClock 替换时钟。
func (v *SignatureVerifier) SetClock(now func() time.Time) {
	v.now = now
}

// Enabled 返回是否配置了签名密钥。
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify 校验时间戳与签名。
func (v *SignatureVerifier) Verify(timestamp, signatures string, body []byte) error {
	if !v.Enabled() {
		return nil
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid signature timestamp", domain.ErrUnauthorized)
	}
	if v.tolerance > 0 {
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return fmt.Errorf("%w: signature timestamp outside tolerance", domain.ErrUnauthorized)
		}
	}

	expected := computeMAC(v.secret, strings.TrimSpace(timestamp), body)
	for _, candidate := range strings.Fields(signatures) {
		if mac, ok := decodeCandidate(candidate); ok && hmac.Equal(mac, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", domain.ErrUnauthorized)
}

// Sign 生成 "sha256=<hex>" 格式的签名。
func Sign(secret, timestamp string, body []byte) string {
	return "sha256=" + hex.EncodeToString(computeMAC([]byte(secret), timestamp, body))
}

func computeMAC(secret []byte, timestamp string, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return h.Sum(nil)
}

func decodeCandidate(candidate string) ([]byte, bool) {
	switch {
	case strings.HasPrefix(candidate, "sha256="):
		mac, err := hex.DecodeString(strings.TrimPrefix(candidate, "sha256="))
		return mac, err == nil
	case strings.HasPrefix(candidate, "v1,"):
		mac, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(candidate, "v1,"))
		return mac, err == nil
	default:
		return nil, false
	}
}
