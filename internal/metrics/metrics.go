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
// 詳細ビューの状態機械、リポジトリクライアント、インポーター、サーバーから利用する。
type MetricsCollector interface {
	RecordLoadOutcome(outcome string)
	RecordSubmitOutcome(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(operation string, duration time.Duration)
	RecordFeedbackCreated()
	RecordImportFailure(reason string)
	RecordResourcesImported(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loadOutcome       *prometheus.CounterVec
	submitOutcome     *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	feedbackCreated   prometheus.Counter
	importFail        *prometheus.CounterVec
	resourcesImported prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loadOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescat_load_outcome_total",
			Help: "リソース読み込みサイクルの結果別の合計数",
		}, []string{"outcome"}),
		submitOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescat_submit_outcome_total",
			Help: "フィードバック投稿サイクルの結果別の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescat_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rescat_request_latency_seconds",
			Help:    "リソースリポジトリへのリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		feedbackCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rescat_feedback_created_total",
			Help: "サーバーが保存したフィードバックの合計数",
		}),
		importFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rescat_import_fail_total",
			Help: "フィードインポート失敗の理由別の合計数",
		}, []string{"reason"}),
		resourcesImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rescat_resources_imported_total",
			Help: "インポートで作成されたリソースの合計数",
		}),
	}

	reg.MustRegister(
		c.loadOutcome,
		c.submitOutcome,
		c.httpStatus,
		c.requestLatency,
		c.feedbackCreated,
		c.importFail,
		c.resourcesImported,
	)

	return c
}

// RecordLoadOutcome は読み込みサイクルの結果を記録する。
func (c *Collector) RecordLoadOutcome(outcome string) {
	c.loadOutcome.WithLabelValues(outcome).Inc()
}

// RecordSubmitOutcome は投稿サイクルの結果を記録する。
func (c *Collector) RecordSubmitOutcome(outcome string) {
	c.submitOutcome.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(operation string, duration time.Duration) {
	c.requestLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFeedbackCreated は保存されたフィードバックを1件記録する。
func (c *Collector) RecordFeedbackCreated() {
	c.feedbackCreated.Inc()
}

// RecordImportFailure はインポート失敗を記録する。
func (c *Collector) RecordImportFailure(reason string) {
	c.importFail.WithLabelValues(reason).Inc()
}

// RecordResourcesImported はインポートで作成されたリソース数を記録する。
func (c *Collector) RecordResourcesImported(count int) {
	c.resourcesImported.Add(float64(count))
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
