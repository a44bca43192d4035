// Package metrics 专家组分析的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expert_panel"

// Metrics 一组已注册的采集器，nil 接收者上的方法均为空操作
type Metrics struct {
	registry *prometheus.Registry

	llmCalls    *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	stageTotal  *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// New 创建并注册全部采集器，reg 为空时新建独立的 Registry
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM calls by model, call type and outcome.",
		}, []string{"model", "call", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "LLM call latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"call"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"kind"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Per-stage work unit results (ok, failed, fallback, unavailable).",
		}, []string{"stage", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end analysis run duration.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		}),
	}
	reg.MustRegister(m.llmCalls, m.llmLatency, m.llmTokens, m.stageTotal, m.runs, m.runDuration)
	return m
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall 记录一次 LLM 调用
func (m *Metrics) ObserveCall(modelID, call, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(modelID, call, outcome).Inc()
	m.llmLatency.WithLabelValues(call).Observe(d.Seconds())
}

// ObserveTokens 记录 token 用量
func (m *Metrics) ObserveTokens(prompt, completion int) {
	if m == nil {
		return
	}
	m.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	m.llmTokens.WithLabelValues("completion").Add(float64(completion))
}

// ObserveStage 记录阶段内单个工作单元的结果
func (m *Metrics) ObserveStage(stage, result string) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, result).Inc()
}

// ObserveRun 记录一次完整运行
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}
