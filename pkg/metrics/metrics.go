// Package metrics 在 pkg/metrics 统一 Registry 之上注册风控业务指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	libmetrics "github.com/wyfcoding/pkg/metrics"
)

// Namespace 业务指标命名空间
const Namespace = "portfolio"

// Metrics 标准 HTTP/gRPC 指标由内嵌的 pkg/metrics 提供，这里只补充业务指标
type Metrics struct {
	*libmetrics.Metrics

	AssessmentsTotal    *prometheus.CounterVec
	OrderChecksTotal    *prometheus.CounterVec
	StressTestsTotal    *prometheus.CounterVec
	MonteCarloDuration  *prometheus.HistogramVec
	CriticalAlertsTotal *prometheus.CounterVec
}

// New 创建并注册指标
func New(serviceName string) *Metrics {
	base := libmetrics.NewMetrics(serviceName)
	return &Metrics{
		Metrics: base,
		AssessmentsTotal: base.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: serviceName,
			Name:      "assessments_total",
			Help:      "Portfolio risk assessments by overall level",
		}, []string{"level"}),
		OrderChecksTotal: base.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: serviceName,
			Name:      "order_checks_total",
			Help:      "Pre-trade order checks by decision",
		}, []string{"decision"}),
		StressTestsTotal: base.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: serviceName,
			Name:      "stress_tests_total",
			Help:      "Stress tests by scenario",
		}, []string{"scenario"}),
		MonteCarloDuration: base.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: serviceName,
			Name:      "monte_carlo_duration_seconds",
			Help:      "Monte Carlo simulation duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"partial"}),
		CriticalAlertsTotal: base.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: serviceName,
			Name:      "critical_alerts_total",
			Help:      "Critical risk alerts raised",
		}, nil),
	}
}

// GinMiddleware 记录 HTTP 请求数与耗时，path 使用路由模板避免高基数
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HttpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HttpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveAssessment 记录一次组合评估
func (m *Metrics) ObserveAssessment(level string) {
	m.AssessmentsTotal.WithLabelValues(level).Inc()
}

// ObserveOrderCheck 记录一次事前风控
func (m *Metrics) ObserveOrderCheck(approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.OrderChecksTotal.WithLabelValues(decision).Inc()
}

// ObserveStressTest 记录一次压力测试
func (m *Metrics) ObserveStressTest(scenario string) {
	m.StressTestsTotal.WithLabelValues(scenario).Inc()
}

// ObserveMonteCarlo 记录一次蒙特卡洛模拟耗时
func (m *Metrics) ObserveMonteCarlo(d time.Duration, partial bool) {
	m.MonteCarloDuration.WithLabelValues(strconv.FormatBool(partial)).Observe(d.Seconds())
}

// ObserveCriticalAlert 记录一条严重告警
func (m *Metrics) ObserveCriticalAlert() {
	m.CriticalAlertsTotal.WithLabelValues().Inc()
}
