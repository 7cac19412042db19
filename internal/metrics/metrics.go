// Package metrics はPrometheusのメトリクスを提供する。
//
// メトリクスはパッケージ専用のRegistryに登録するため、
// テストごとに独立したインスタンスを生成できる。
// nilの*Metricsに対する記録メソッドは何もしない。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はサービスが公開するメトリクスを保持する。
type Metrics struct {
	registry *prometheus.Registry

	// NotificationsTotal は通知エンジンの処理結果の件数（kind, outcome別）。
	NotificationsTotal *prometheus.CounterVec
	// EventsTotal はイベントバスから受け取ったイベントの件数（type, result別）。
	EventsTotal *prometheus.CounterVec
	// MessagesSentTotal は送信されたメッセージの件数。
	MessagesSentTotal prometheus.Counter
	// ConversationsCreatedTotal は新規作成された会話の件数。
	ConversationsCreatedTotal prometheus.Counter
	// RealtimeConnections は接続中のWebSocketセッション数。
	RealtimeConnections prometheus.Gauge

	// HTTPRequestsTotal はHTTPリクエストの件数（method, route, status別）。
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestDuration はHTTPリクエストの処理時間。
	HTTPRequestDuration *prometheus.HistogramVec
}

// New はメトリクスを生成して専用のRegistryに登録する。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_notifications_total",
				Help: "Total number of notification engine outcomes",
			},
			[]string{"kind", "outcome"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_events_total",
				Help: "Total number of events consumed from the event bus",
			},
			[]string{"type", "result"},
		),
		MessagesSentTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_messages_sent_total",
				Help: "Total number of messages appended to conversations",
			},
		),
		ConversationsCreatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "relay_conversations_created_total",
				Help: "Total number of conversations created",
			},
		),
		RealtimeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_realtime_connections",
				Help: "Number of active realtime websocket sessions",
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry はメトリクスが登録されたRegistryを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler は /metrics 用のHTTPハンドラーを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// NotificationOutcome は通知エンジンの処理結果を記録する。
func (m *Metrics) NotificationOutcome(kind, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

// EventConsumed はイベントの処理結果を記録する。resultは "ok" または "error"。
func (m *Metrics) EventConsumed(eventType, result string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType, result).Inc()
}

// MessageSent はメッセージ送信を記録する。
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesSentTotal.Inc()
}

// ConversationCreated は会話の新規作成を記録する。
func (m *Metrics) ConversationCreated() {
	if m == nil {
		return
	}
	m.ConversationsCreatedTotal.Inc()
}

// ConnectionOpened はWebSocketセッションの開始を記録する。
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Inc()
}

// ConnectionClosed はWebSocketセッションの終了を記録する。
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.RealtimeConnections.Dec()
}

// Middleware はHTTPリクエストの件数と処理時間を記録するGinミドルウェアを返す。
// ルートはパスパラメータ展開前のテンプレート（例: /api/v1/conversations/:id）で集計する。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
