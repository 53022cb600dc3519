// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する。
// 利用側（accountパッケージ・ミドルウェア）はそれぞれ必要なメソッドだけを
// 切り出した狭いインターフェースを定義する。
type Collector struct {
	operationTotal  *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	providerLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_operation_total",
			Help: "アカウント操作の結果別合計数",
		}, []string{"operation", "result"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_provider_errors_total",
			Help: "IDプロバイダーから返されたエラーコード別の合計数",
		}, []string{"operation", "code"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authgate_provider_latency_seconds",
			Help:    "IDプロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.operationTotal,
		c.providerErrors,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordOperation はアカウント操作の結果を記録する。
func (c *Collector) RecordOperation(operation string, result string) {
	c.operationTotal.WithLabelValues(operation, result).Inc()
}

// RecordProviderError はプロバイダーのエラーコードを記録する。
func (c *Collector) RecordProviderError(operation string, code string) {
	c.providerErrors.WithLabelValues(operation, code).Inc()
}

// RecordProviderLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
