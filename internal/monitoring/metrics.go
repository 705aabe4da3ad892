package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标。所有记录方法对 nil 接收者安全，未启用监控时可直接传 nil。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesCreated prometheus.Counter
	MailboxesDeleted prometheus.Counter

	// 投递指标
	MessagesDelivered *prometheus.CounterVec
	MessagesRejected  *prometheus.CounterVec
	IngestDuration    *prometheus.HistogramVec

	// SMTP 连接指标
	SMTPSessions      prometheus.Gauge
	SMTPConnsRejected prometheus.Counter

	// 清理任务指标
	SweepRuns            *prometheus.CounterVec
	SweepMessagesDeleted prometheus.Counter
	SweepMailboxDeleted  prometheus.Counter
	SweepDuration        prometheus.Histogram

	PanicsTotal prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics 在 reg 上注册全部指标；reg 为 nil 时使用默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailme_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailme_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
		),

		MailboxesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_mailboxes_deleted_total",
				Help: "Total number of mailboxes deleted on request",
			},
		),

		MessagesDelivered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailme_messages_delivered_total",
				Help: "Total number of messages persisted, by channel",
			},
			[]string{"channel"},
		),

		MessagesRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailme_messages_rejected_total",
				Help: "Total number of messages not delivered, by channel and reason",
			},
			[]string{"channel", "reason"},
		),

		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailme_ingest_duration_seconds",
				Help:    "Time from resolve to persisted message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		SMTPSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailme_smtp_sessions",
				Help: "Number of open SMTP sessions",
			},
		),

		SMTPConnsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_smtp_connections_rejected_total",
				Help: "SMTP connections refused by the connection limiter",
			},
		),

		SweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailme_sweep_runs_total",
				Help: "Expiry sweeper runs, by result",
			},
			[]string{"result"},
		),

		SweepMessagesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_sweep_messages_deleted_total",
				Help: "Messages deleted by the expiry sweeper",
			},
		),

		SweepMailboxDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_sweep_mailboxes_deleted_total",
				Help: "Empty mailboxes deleted by the expiry sweeper",
			},
		),

		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailme_sweep_duration_seconds",
				Help:    "Expiry sweeper run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailme_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		gatherer: gatherer,
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// MailboxCreated 记录邮箱创建
func (m *Metrics) MailboxCreated() {
	if m == nil {
		return
	}
	m.MailboxesCreated.Inc()
}

// MailboxDeleted 记录邮箱删除
func (m *Metrics) MailboxDeleted() {
	if m == nil {
		return
	}
	m.MailboxesDeleted.Inc()
}

// MessageDelivered 记录一次成功投递
func (m *Metrics) MessageDelivered(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MessagesDelivered.WithLabelValues(channel).Inc()
	m.IngestDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// MessageRejected 记录一次未投递
func (m *Metrics) MessageRejected(channel, reason string) {
	if m == nil {
		return
	}
	m.MessagesRejected.WithLabelValues(channel, reason).Inc()
}

// SMTPSessionOpened 记录 SMTP 会话打开
func (m *Metrics) SMTPSessionOpened() {
	if m == nil {
		return
	}
	m.SMTPSessions.Inc()
}

// SMTPSessionClosed 记录 SMTP 会话关闭
func (m *Metrics) SMTPSessionClosed() {
	if m == nil {
		return
	}
	m.SMTPSessions.Dec()
}

// SMTPConnectionRejected 记录被限流拒绝的连接
func (m *Metrics) SMTPConnectionRejected() {
	if m == nil {
		return
	}
	m.SMTPConnsRejected.Inc()
}

// SweepCompleted 记录一次清理结果
func (m *Metrics) SweepCompleted(messages, mailboxes int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.SweepRuns.WithLabelValues(result).Inc()
	m.SweepMessagesDeleted.Add(float64(messages))
	m.SweepMailboxDeleted.Add(float64(mailboxes))
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordPanic 记录恢复的 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus 指标处理器
func (m *Metrics) HTTPHandler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
