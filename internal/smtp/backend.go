package smtp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailme/backend/internal/monitoring"
	"mailme/backend/internal/normalize"
	"mailme/backend/internal/service"
)

// deliverTimeout 限制单封邮件落库的耗时。
const deliverTimeout = 30 * time.Second

// Backend 实现 go-smtp 的 Backend 接口，只接收发往服务域名的邮件，不做中继。
type Backend struct {
	ingest     *service.IngestService
	normalizer *normalize.Normalizer
	domain     string
	limiter    *ConnectionLimiter
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewBackend 创建 SMTP Backend，limiter 可为 nil。
func NewBackend(
	ingest *service.IngestService,
	normalizer *normalize.Normalizer,
	servingDomain string,
	limiter *ConnectionLimiter,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Backend {
	return &Backend{
		ingest:     ingest,
		normalizer: normalizer,
		domain:     strings.ToLower(servingDomain),
		limiter:    limiter,
		metrics:    metrics,
		log:        log.Named("smtp"),
	}
}

// NewSession 创建新的 SMTP 会话，超出连接限制时返回 421。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		b.metrics.SMTPConnectionRejected()
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	b.metrics.SMTPSessionOpened()

	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}
	return &session{backend: b, remote: remote}, nil
}

// sessionState 描述会话在一次事务中的进度。
type sessionState int

const (
	stateConnected sessionState = iota
	stateMailFrom
	stateRcptAccepted
)

type session struct {
	backend   *Backend
	remote    string
	state     sessionState
	from      string
	recipient string
	closeOnce sync.Once
}

// Mail 处理 MAIL FROM，发件人一律接受。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = normalizeAddress(from)
	s.recipient = ""
	s.state = stateMailFrom
	return nil
}

// Rcpt 处理 RCPT TO，域名不匹配时在协议层拒绝。
//
// 只投递到第一个被接受的收件人；后续收件人同样校验域名但不会产生额外副本。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	if s.state == stateConnected {
		return &gosmtp.SMTPError{
			Code:         503,
			EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
			Message:      "need MAIL command first",
		}
	}

	addr := normalizeAddress(to)
	local, host := service.SplitAddress(addr)
	if local == "" || host == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if !strings.EqualFold(host, s.backend.domain) {
		s.backend.log.Info("recipient rejected",
			zap.String("to", addr),
			zap.String("remote", s.remote),
		)
		s.backend.metrics.MessageRejected(string(service.ChannelSMTP), "domain_mismatch")
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not served here",
		}
	}

	if s.recipient == "" {
		s.recipient = addr
	}
	s.state = stateRcptAccepted
	return nil
}

// Data 缓冲邮件并执行投递流水线；解析或落库失败只记录日志，事务仍被接受。
func (s *session) Data(r io.Reader) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		if errors.Is(err, gosmtp.ErrDataTooLarge) {
			return err
		}
		s.backend.log.Warn("failed to read message data", zap.String("remote", s.remote), zap.Error(err))
		return nil
	}
	defer s.resetTransaction()

	if s.recipient == "" {
		return nil
	}

	log := s.backend.log.With(zap.String("to", s.recipient), zap.String("remote", s.remote))

	msg, err := s.backend.normalizer.FromSMTPData(buf.Bytes(), normalize.Hints{From: s.from, To: s.recipient})
	if err != nil {
		s.backend.metrics.MessageRejected(string(service.ChannelSMTP), service.RejectReason(err))
		log.Warn("failed to parse message", zap.Error(err))
		return nil
	}
	// 以信封收件人为准，邮件头中的 To 可能是列表或别名
	msg.To = s.recipient

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if _, _, err := s.backend.ingest.Deliver(ctx, service.ChannelSMTP, msg, service.LazyCreate); err != nil {
		log.Warn("message accepted but not stored", zap.Error(err))
	}
	return nil
}

// Reset 处理 RSET。
func (s *session) Reset() {
	s.resetTransaction()
}

func (s *session) resetTransaction() {
	s.from = ""
	s.recipient = ""
	s.state = stateConnected
}

// Logout 会话结束时释放连接许可。
func (s *session) Logout() error {
	s.closeOnce.Do(func() {
		if s.backend.limiter != nil {
			s.backend.limiter.Release()
		}
		s.backend.metrics.SMTPSessionClosed()
	})
	return nil
}

// normalizeAddress 去除空白与尖括号并转为小写。
func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.TrimPrefix(addr, "<")
	addr = strings.TrimSuffix(addr, ">")
	return strings.ToLower(addr)
}
