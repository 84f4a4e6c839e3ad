package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 富化阶段指标
	StagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_stages_total",
			Help: "Total number of enrichment stage completions",
		},
		[]string{"stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardflow_stage_duration_seconds",
			Help:    "Enrichment stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// 工作流指标
	WorkflowsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_workflows_started_total",
			Help: "Total number of workflows started",
		},
		[]string{"kind", "mode"},
	)

	WorkflowsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_workflows_completed_total",
			Help: "Total number of workflows completed",
		},
		[]string{"kind", "status"},
	)

	// 截图重试指标
	ScreenshotRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_screenshot_retries_total",
			Help: "Total number of screenshot retries by error type",
		},
		[]string{"error_type"},
	)

	// 批处理指标
	BackfillCardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_backfill_cards_total",
			Help: "Total number of cards touched by AI backfill",
		},
		[]string{"status"},
	)

	CleanupCardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_cleanup_cards_total",
			Help: "Total number of cards purged by cleanup",
		},
		[]string{"status"},
	)

	// 数据库连接池指标
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardflow_db_connections_in_use",
			Help: "Number of database connections in use",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardflow_db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	DBConnectionsMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardflow_db_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 错误指标
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardflow_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "type"},
	)
)

// RecordHTTPRequest 记录 HTTP 请求
func RecordHTTPRequest(method, path string, status int, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordStage 记录一次阶段执行
func RecordStage(stage, status string, duration float64) {
	StagesTotal.WithLabelValues(stage, status).Inc()
	if duration > 0 {
		StageDuration.WithLabelValues(stage).Observe(duration)
	}
}

// RecordWorkflowStarted 记录工作流启动（mode: sync/async）
func RecordWorkflowStarted(kind, mode string) {
	WorkflowsStartedTotal.WithLabelValues(kind, mode).Inc()
}

// RecordWorkflowCompleted 记录工作流结束
func RecordWorkflowCompleted(kind, status string) {
	WorkflowsCompletedTotal.WithLabelValues(kind, status).Inc()
}

// RecordScreenshotRetry 记录一次截图重试
func RecordScreenshotRetry(errorType string) {
	ScreenshotRetriesTotal.WithLabelValues(errorType).Inc()
}

// RecordBackfillCard 记录补齐批处理触达的卡片
func RecordBackfillCard(status string) {
	BackfillCardsTotal.WithLabelValues(status).Inc()
}

// RecordCleanupCard 记录清理批处理触达的卡片
func RecordCleanupCard(status string) {
	CleanupCardsTotal.WithLabelValues(status).Inc()
}

// UpdateDBPoolStats 更新数据库连接池统计
func UpdateDBPoolStats(inUse, idle, max int32) {
	DBConnectionsInUse.Set(float64(inUse))
	DBConnectionsIdle.Set(float64(idle))
	DBConnectionsMax.Set(float64(max))
}

// RecordError 记录错误
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// statusClass 将 HTTP 状态码转为类别
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
