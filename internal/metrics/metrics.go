// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スナップショットのポーラー、クリーンアップ、ダウンロードプロキシから利用する。
type MetricsCollector interface {
	RecordRefresh(result string)
	RecordRefreshLatency(duration time.Duration)
	RecordSnapshotChanged()
	RecordCleanupDeleted(count int)
	RecordDownloadAttempt()
	RecordDownloadResult(success bool, attempts int)
	RecordUpstreamStatus(statusCode int)
}

// リフレッシュ結果のラベル値。
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshSkipped = "skipped"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	refreshes       *prometheus.CounterVec
	refreshLatency  prometheus.Histogram
	snapshotChanged prometheus.Counter
	cleanupDeleted  prometheus.Counter
	downloadAttempt prometheus.Counter
	downloadResult  *prometheus.CounterVec
	downloadTries   prometheus.Histogram
	upstreamStatus  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bannerboard_snapshot_refresh_total",
			Help: "スナップショット取得の結果別回数",
		}, []string{"result"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bannerboard_snapshot_refresh_latency_seconds",
			Help:    "スナップショット取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		snapshotChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bannerboard_snapshot_changed_total",
			Help: "内容が変化してスナップショットを差し替えた回数",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bannerboard_cleanup_deleted_total",
			Help: "保持期間超過で自動削除したバナーの合計数",
		}),
		downloadAttempt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bannerboard_download_attempts_total",
			Help: "ダウンロードプロキシの上流リクエスト試行回数",
		}),
		downloadResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bannerboard_download_total",
			Help: "ダウンロードプロキシの結果別回数",
		}, []string{"result"}),
		downloadTries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bannerboard_download_attempts_per_request",
			Help:    "1リクエストあたりの試行回数",
			Buckets: []float64{1, 2, 3},
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bannerboard_download_upstream_status_total",
			Help: "上流のHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.refreshes,
		c.refreshLatency,
		c.snapshotChanged,
		c.cleanupDeleted,
		c.downloadAttempt,
		c.downloadResult,
		c.downloadTries,
		c.upstreamStatus,
	)

	return c
}

// RecordRefresh はスナップショット取得の結果を記録する。
func (c *Collector) RecordRefresh(result string) {
	c.refreshes.WithLabelValues(result).Inc()
}

// RecordRefreshLatency はスナップショット取得のレイテンシを記録する。
func (c *Collector) RecordRefreshLatency(duration time.Duration) {
	c.refreshLatency.Observe(duration.Seconds())
}

// RecordSnapshotChanged はスナップショットの差し替えを記録する。
func (c *Collector) RecordSnapshotChanged() {
	c.snapshotChanged.Inc()
}

// RecordCleanupDeleted は自動削除件数を記録する。
func (c *Collector) RecordCleanupDeleted(count int) {
	c.cleanupDeleted.Add(float64(count))
}

// RecordDownloadAttempt は上流への試行を1回記録する。
func (c *Collector) RecordDownloadAttempt() {
	c.downloadAttempt.Inc()
}

// RecordDownloadResult はダウンロードの最終結果と試行回数を記録する。
func (c *Collector) RecordDownloadResult(success bool, attempts int) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.downloadResult.WithLabelValues(result).Inc()
	c.downloadTries.Observe(float64(attempts))
}

// RecordUpstreamStatus は上流のHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
