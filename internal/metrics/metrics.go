// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// インジェストパイプラインやサービス層から利用する。
type MetricsCollector interface {
	RecordWebhookReceived()
	RecordWebhookAccepted(eventType string)
	RecordWebhookRejected(reason string)
	RecordVerifyLatency(duration time.Duration)
	RecordMemberCreated()
	RecordMemberApproved()
	RecordSubscriberCount(count int)
	RecordBroadcastFrame(frameType string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhooksReceived prometheus.Counter
	webhooksAccepted *prometheus.CounterVec
	webhooksRejected *prometheus.CounterVec
	verifyLatency    prometheus.Histogram
	membersCreated   prometheus.Counter
	membersApproved  prometheus.Counter
	subscribers      prometheus.Gauge
	broadcastFrames  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhooksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookgate_webhooks_received_total",
			Help: "受信したWebhookリクエストの合計数",
		}),
		webhooksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookgate_webhooks_accepted_total",
			Help: "受理されたWebhookのイベントタイプ別合計数",
		}, []string{"event_type"}),
		webhooksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookgate_webhooks_rejected_total",
			Help: "拒否されたWebhookの理由別合計数",
		}, []string{"reason"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hookgate_verify_latency_seconds",
			Help:    "署名検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		membersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookgate_members_created_total",
			Help: "member.createdイベントから作成されたメンバーの合計数",
		}),
		membersApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hookgate_members_approved_total",
			Help: "管理APIで承認されたメンバーの合計数",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hookgate_broadcast_subscribers",
			Help: "接続中のリアルタイムサブスクライバー数",
		}),
		broadcastFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookgate_broadcast_frames_total",
			Help: "配信したフレームのタイプ別合計数",
		}, []string{"frame_type"}),
	}

	reg.MustRegister(
		c.webhooksReceived,
		c.webhooksAccepted,
		c.webhooksRejected,
		c.verifyLatency,
		c.membersCreated,
		c.membersApproved,
		c.subscribers,
		c.broadcastFrames,
	)

	return c
}

// RecordWebhookReceived はWebhook受信を記録する。
func (c *Collector) RecordWebhookReceived() {
	c.webhooksReceived.Inc()
}

// RecordWebhookAccepted はWebhook受理を記録する。
func (c *Collector) RecordWebhookAccepted(eventType string) {
	c.webhooksAccepted.WithLabelValues(eventType).Inc()
}

// RecordWebhookRejected はWebhook拒否を理由付きで記録する。
func (c *Collector) RecordWebhookRejected(reason string) {
	c.webhooksRejected.WithLabelValues(reason).Inc()
}

// RecordVerifyLatency は署名検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// RecordMemberCreated はメンバー作成を記録する。
func (c *Collector) RecordMemberCreated() {
	c.membersCreated.Inc()
}

// RecordMemberApproved はメンバー承認を記録する。
func (c *Collector) RecordMemberApproved() {
	c.membersApproved.Inc()
}

// RecordSubscriberCount は接続中サブスクライバー数を記録する。
func (c *Collector) RecordSubscriberCount(count int) {
	c.subscribers.Set(float64(count))
}

// RecordBroadcastFrame は配信フレームを記録する。
func (c *Collector) RecordBroadcastFrame(frameType string) {
	c.broadcastFrames.WithLabelValues(frameType).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
