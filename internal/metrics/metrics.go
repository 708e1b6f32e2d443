package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标收集器
//
// 每个实例持有独立的注册表，测试中可以重复创建。
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	RuleHitsTotal       *prometheus.CounterVec
	FaultsInjectedTotal *prometheus.CounterVec
	MaintenanceCounter  prometheus.Gauge

	RateLimitRequestsTotal *prometheus.CounterVec
	ActiveConnections      prometheus.Gauge
	SystemUptime           prometheus.Gauge

	startTime time.Time
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP请求总数",
			},
			[]string{"method", "path", "status_code"},
		),

		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP请求持续时间",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP响应大小",
				Buckets: prometheus.ExponentialBuckets(16, 2, 8),
			},
			[]string{"method", "path"},
		),

		RuleHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatcher_rule_hits_total",
				Help: "决策表规则命中次数",
			},
			[]string{"rule"},
		),

		FaultsInjectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatcher_faults_injected_total",
				Help: "注入的模拟故障次数",
			},
			[]string{"rule", "status_code"},
		),

		MaintenanceCounter: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dispatcher_maintenance_counter",
			Help: "maintenance 请求计数器当前值",
		}),

		RateLimitRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_requests_total",
				Help: "速率限制请求总数",
			},
			[]string{"result"}, // allowed, denied
		),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "当前活跃连接数",
		}),

		SystemUptime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "system_uptime_seconds",
			Help: "系统运行时间（秒）",
		}),

		startTime: time.Now(),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration, responseSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	if responseSize > 0 {
		m.ResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
	}
}

// RecordRule 记录规则命中，fault 为真时同时记录故障注入
func (m *Metrics) RecordRule(rule string, statusCode int, fault bool) {
	m.RuleHitsTotal.WithLabelValues(rule).Inc()
	if fault {
		m.FaultsInjectedTotal.WithLabelValues(rule, strconv.Itoa(statusCode)).Inc()
	}
}

// SetMaintenanceCounter 更新维护计数器指标
func (m *Metrics) SetMaintenanceCounter(value int64) {
	m.MaintenanceCounter.Set(float64(value))
}

// RecordRateLimit 记录速率限制指标
func (m *Metrics) RecordRateLimit(allowed bool) {
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.RateLimitRequestsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementActiveConnections() {
	m.ActiveConnections.Inc()
}

func (m *Metrics) DecrementActiveConnections() {
	m.ActiveConnections.Dec()
}

// UpdateSystemMetrics 更新系统运行时间
func (m *Metrics) UpdateSystemMetrics() {
	m.SystemUptime.Set(time.Since(m.startTime).Seconds())
}
