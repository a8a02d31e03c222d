package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsapp_bot_messages_received_total",
		Help: "Total number of inbound messages",
	}, []string{"chat_type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsapp_bot_messages_processed_total",
		Help: "Total number of messages by triage outcome",
	}, []string{"outcome"})

	repliesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsapp_bot_replies_sent_total",
		Help: "Total number of replies delivered",
	}, []string{"chat_type"})

	replyDelay = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whatsapp_bot_reply_delay_seconds",
		Help:    "Pacing delay applied before a reply",
		Buckets: prometheus.LinearBuckets(3, 1, 8),
	})

	// AI metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whatsapp_bot_ai_request_duration_seconds",
		Help:    "Duration of completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsapp_bot_ai_requests_total",
		Help: "Total number of completion requests",
	}, []string{"model", "status"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whatsapp_bot_rate_limit_exceeded_total",
		Help: "Total number of replies suppressed by the per-chat limiter",
	})

	// Settings
	settingsVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsapp_bot_settings_version",
		Help: "Version of the active reply settings snapshot",
	})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsapp_bot_messages_in_flight",
		Help: "Messages currently being processed",
	})

	connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whatsapp_bot_connected",
		Help: "1 when the WhatsApp session is connected",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records an inbound message
func (m *Metrics) RecordMessageReceived(chatType string) {
	messagesReceived.WithLabelValues(chatType).Inc()
}

// RecordMessageProcessed records how a message left the pipeline
func (m *Metrics) RecordMessageProcessed(outcome string) {
	messagesProcessed.WithLabelValues(outcome).Inc()
}

// RecordReplySent records a delivered reply and its pacing delay
func (m *Metrics) RecordReplySent(chatType string, delay time.Duration) {
	repliesSent.WithLabelValues(chatType).Inc()
	replyDelay.Observe(delay.Seconds())
}

// RecordAIRequest records a completion request
func (m *Metrics) RecordAIRequest(model, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(model, status).Inc()
}

// RecordRateLimitExceeded records a suppressed reply
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// SetSettingsVersion sets the active settings version
func (m *Metrics) SetSettingsVersion(version uint64) {
	settingsVersion.Set(float64(version))
}

// TrackInFlight adjusts the in-flight gauge
func (m *Metrics) TrackInFlight(delta float64) {
	inFlight.Add(delta)
}

// SetConnected sets the session connection gauge
func (m *Metrics) SetConnected(ok bool) {
	if ok {
		connected.Set(1)
		return
	}
	connected.Set(0)
}
