// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/scoreflow/workflow"
)

var _ workflow.MetricsRecorder = (*Collector)(nil)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 工作流指标
	workflowsStarted  prometheus.Counter
	workflowsFinished *prometheus.CounterVec
	workflowDuration  *prometheus.HistogramVec
	workflowsActive   prometheus.Gauge

	// 处理器指标
	processorExecutions *prometheus.CounterVec
	processorDuration   *prometheus.HistogramVec
	fallbackExecutions  *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 状态镜像指标
	mirrorWrites *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时注册到 prometheus.DefaultRegisterer。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 工作流指标
	c.workflowsStarted = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_started_total",
			Help:      "Total number of workflows that started running",
		},
	)

	c.workflowsFinished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_finished_total",
			Help:      "Total number of workflows that reached a terminal status",
		},
		[]string{"status"},
	)

	c.workflowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"status"},
	)

	c.workflowsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Number of workflows currently holding a run slot",
		},
	)

	// 处理器指标
	c.processorExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processor_executions_total",
			Help:      "Total number of processor invocations",
		},
		[]string{"processor", "status"},
	)

	c.processorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processor_duration_seconds",
			Help:      "Processor execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"processor"},
	)

	c.fallbackExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_executions_total",
			Help:      "Total number of fallback processor invocations",
		},
		[]string{"primary", "fallback", "status"},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests to the ops endpoint",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 状态镜像指标
	c.mirrorWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_mirror_writes_total",
			Help:      "Total number of workflow snapshot writes to the state mirror",
		},
		[]string{"result"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔄 工作流指标记录
// =============================================================================

// RecordWorkflowStarted 记录工作流开始
func (c *Collector) RecordWorkflowStarted(_ string) {
	c.workflowsStarted.Inc()
	c.workflowsActive.Inc()
}

// RecordWorkflowFinished 记录工作流结束
func (c *Collector) RecordWorkflowFinished(status string, duration time.Duration) {
	c.workflowsActive.Dec()
	c.workflowsFinished.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// =============================================================================
// ⚙️ 处理器指标记录
// =============================================================================

// RecordProcessor 记录处理器执行
func (c *Collector) RecordProcessor(name string, success bool, duration time.Duration) {
	c.processorExecutions.WithLabelValues(name, outcome(success)).Inc()
	c.processorDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordFallback 记录降级处理器执行
func (c *Collector) RecordFallback(primary, fallback string, success bool) {
	c.fallbackExecutions.WithLabelValues(primary, fallback, outcome(success)).Inc()
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 💾 状态镜像指标记录
// =============================================================================

// RecordMirrorWrite 记录状态镜像写入
func (c *Collector) RecordMirrorWrite(ok bool) {
	c.mirrorWrites.WithLabelValues(outcome(ok)).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
