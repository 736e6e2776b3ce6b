// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期ワーカーと通知ディスパッチャから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(category string)
	RecordSyncFailure(category string)
	RecordSyncLatency(duration time.Duration)
	RecordRecordsUpserted(category string, count int)
	RecordDigestSent()
	RecordDigestSkipped()
	RecordDigestFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     *prometheus.CounterVec
	syncFail        *prometheus.CounterVec
	syncLatency     prometheus.Histogram
	recordsUpserted *prometheus.CounterVec
	digestSent      prometheus.Counter
	digestSkipped   prometheus.Counter
	digestFail      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantman_sync_success_total",
			Help: "カテゴリ別のテナント同期成功の合計数",
		}, []string{"category"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantman_sync_fail_total",
			Help: "カテゴリ別のテナント同期失敗の合計数",
		}, []string{"category"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenantman_sync_latency_seconds",
			Help:    "テナント同期1回あたりのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		recordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenantman_records_upserted_total",
			Help: "カテゴリ別のアップサートされたレコードの合計数",
		}, []string{"category"}),
		digestSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantman_digest_sent_total",
			Help: "送信されたダイジェストメールの合計数",
		}),
		digestSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantman_digest_skipped_total",
			Help: "新着なしでスキップされたダイジェストの合計数",
		}),
		digestFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenantman_digest_fail_total",
			Help: "送信に失敗したダイジェストの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncLatency,
		c.recordsUpserted,
		c.digestSent,
		c.digestSkipped,
		c.digestFail,
	)

	return c
}

// RecordSyncSuccess はカテゴリ同期の成功を記録する。
func (c *Collector) RecordSyncSuccess(category string) {
	c.syncSuccess.WithLabelValues(category).Inc()
}

// RecordSyncFailure はカテゴリ同期の失敗を記録する。
func (c *Collector) RecordSyncFailure(category string) {
	c.syncFail.WithLabelValues(category).Inc()
}

// RecordSyncLatency はテナント同期のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordRecordsUpserted はアップサートされたレコード数を記録する。
func (c *Collector) RecordRecordsUpserted(category string, count int) {
	c.recordsUpserted.WithLabelValues(category).Add(float64(count))
}

// RecordDigestSent はダイジェスト送信成功を記録する。
func (c *Collector) RecordDigestSent() {
	c.digestSent.Inc()
}

// RecordDigestSkipped は新着なしによるスキップを記録する。
func (c *Collector) RecordDigestSkipped() {
	c.digestSkipped.Inc()
}

// RecordDigestFailure はダイジェスト送信失敗を記録する。
func (c *Collector) RecordDigestFailure() {
	c.digestFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
