// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector holds every Prometheus instrument emitted by the orchestrator,
// grouped by domain: the SSE API surface, vision-model calls, worker state
// transitions, the per-user context cache, and batch/breaker/captcha
// internals specific to the fan-out run loop.
type Collector struct {
	// HTTP 指标 (SSE stream endpoint)
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标 (vision-model calls: readiness probe, extraction, analyzer)
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// Worker 指标 (per date-pair state machine, spec §4.G)
	workerExecutionsTotal   *prometheus.CounterVec
	workerExecutionDuration *prometheus.HistogramVec
	workerStateTransitions  *prometheus.CounterVec

	// 缓存指标 (per-user context cache, internal/usercache)
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Batch/breaker/captcha 指标 (orchestrator run loop internals)
	batchDuration     *prometheus.HistogramVec
	breakerState      *prometheus.GaugeVec
	captchaIterations *prometheus.HistogramVec
	sessionsCreated   *prometheus.CounterVec
}

// NewCollector constructs a Collector and registers every instrument with
// the default Prometheus registry via promauto.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of vision-model calls",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Vision-model call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Total vision-model cost in USD",
		},
		[]string{"provider", "model"},
	)

	// Worker 指标
	c.workerExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_executions_total",
			Help:      "Total number of date-pair worker runs",
		},
		[]string{"status"}, // status: done, failed
	)

	c.workerExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_execution_duration_seconds",
			Help:      "Worker run duration in seconds, from session creation to terminal state",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"status"},
	)

	c.workerStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_state_transitions_total",
			Help:      "Total number of worker state machine transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Batch/breaker/captcha 指标
	c.batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestrator_batch_duration_seconds",
			Help:      "Duration of one sequential concurrency-limited worker batch",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 90, 120, 180},
		},
		[]string{"search_mode"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state: 0=closed, 1=half_open, 2=open",
		},
		[]string{"breaker"},
	)

	c.captchaIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "captcha_solve_iterations",
			Help:      "Number of solve iterations spent per CAPTCHA delegation",
			Buckets:   []float64{1, 2, 3, 5, 8, 10, 15},
		},
		[]string{"mode", "resolved"},
	)

	c.sessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_sessions_created_total",
			Help:      "Total number of remote browser sessions created by workers",
		},
		[]string{"status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest records one HTTP request against the SSE stream endpoint.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest records one vision-model call (readiness probe, extraction
// iteration, or progressive analysis digest).
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// =============================================================================
// 🧑‍✈️ Worker 指标记录
// =============================================================================

// RecordWorkerExecution records one terminal worker run (status is "done" or
// "failed" per the worker state machine's terminal states).
func (c *Collector) RecordWorkerExecution(status string, duration time.Duration) {
	c.workerExecutionsTotal.WithLabelValues(status).Inc()
	c.workerExecutionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWorkerStateTransition records one worker state machine transition.
func (c *Collector) RecordWorkerStateTransition(fromState, toState string) {
	c.workerStateTransitions.WithLabelValues(fromState, toState).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit records a per-user context cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a per-user context cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 📦 Batch/breaker/captcha 指标记录
// =============================================================================

// RecordBatchDuration records the wall-clock duration of one sequential,
// concurrency-limited worker batch.
func (c *Collector) RecordBatchDuration(searchMode string, duration time.Duration) {
	c.batchDuration.WithLabelValues(searchMode).Observe(duration.Seconds())
}

// SetBreakerState reflects a circuit breaker's current state as a gauge:
// 0=closed, 1=half_open, 2=open.
func (c *Collector) SetBreakerState(breaker string, state int) {
	c.breakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordCaptchaSolve records how many solve iterations one CAPTCHA
// delegation spent, labeled by mode ("sidecar"/"human") and whether it
// ultimately resolved.
func (c *Collector) RecordCaptchaSolve(mode string, resolved bool, iterations int) {
	c.captchaIterations.WithLabelValues(mode, resolvedLabel(resolved)).Observe(float64(iterations))
}

// RecordSessionCreated records a browser session creation attempt.
func (c *Collector) RecordSessionCreated(status string) {
	c.sessionsCreated.WithLabelValues(status).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode converts an HTTP status code into its class string.
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

func resolvedLabel(resolved bool) string {
	if resolved {
		return "true"
	}
	return "false"
}
