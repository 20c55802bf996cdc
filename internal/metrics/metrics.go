package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mandeep511/lora-forger/pkg/domain"
)

const namespace = "lora_forger"

// Metrics は生成呼び出しと HTTP リクエストの計測値をまとめて保持します。
// workflow.Recorder を実装します。
type Metrics struct {
	registry *prometheus.Registry

	generationCalls    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	generationInFlight *prometheus.GaugeVec
	itemsByStatus      *prometheus.GaugeVec
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
}

// New は専用のレジストリに計測値を登録した Metrics を作成します。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		generationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Total number of Gemini generation calls",
		}, []string{"op", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Gemini generation call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"op"}),
		generationInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generation_in_flight",
			Help:      "Number of Gemini generation calls in flight",
		}, []string{"op"}),
		itemsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_items",
			Help:      "Number of dataset items by status",
		}, []string{"status"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "path", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.generationCalls,
		m.generationDuration,
		m.generationInFlight,
		m.itemsByStatus,
		m.apiRequests,
		m.apiDuration,
	)
	return m
}

// ObserveCall は外部呼び出し1回の結果と所要時間を記録します。
func (m *Metrics) ObserveCall(op, outcome string, elapsed time.Duration) {
	m.generationCalls.WithLabelValues(op, outcome).Inc()
	m.generationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddInFlight は実行中の呼び出し数を増減します。
func (m *Metrics) AddInFlight(op string, delta int) {
	m.generationInFlight.WithLabelValues(op).Add(float64(delta))
}

// SetItemCounts は状態ごとの項目数を反映します。無い状態は 0 にします。
func (m *Metrics) SetItemCounts(counts map[domain.ItemStatus]int) {
	for _, s := range domain.ItemStatuses() {
		m.itemsByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// Middleware は API リクエストの件数と所要時間を記録する gin ミドルウェアです。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.apiRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.apiDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler は Prometheus 形式で計測値を返す HTTP ハンドラです。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はテストや追加の登録に使うレジストリを返します。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
