// Package metrics holds the Prometheus collectors of the service.
// Each Metrics owns its registry so tests can build as many as they like.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "curator"

type Metrics struct {
	reg *prometheus.Registry

	topicsFetched   *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	rankingDuration prometheus.Histogram
	clusters        prometheus.Gauge
	llmCalls        *prometheus.CounterVec
	llmDuration     prometheus.Histogram
	postsGenerated  *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	actionRuns      *prometheus.CounterVec
	actionsSkipped  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		topicsFetched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topics_fetched_total",
			Help:      "New topics stored per source",
		}, []string{"source"}),
		sourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed source fetches",
		}, []string{"source"}),
		rankingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Duration of ranking passes",
			Buckets:   prometheus.DefBuckets,
		}),
		clusters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ranking_clusters",
			Help:      "Clusters produced by the last ranking pass",
		}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM completions by outcome",
		}, []string{"status"}),
		llmDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_duration_seconds",
			Help:      "Duration of LLM completions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		postsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_generated_total",
			Help:      "Generated posts by trigger",
		}, []string{"trigger"}),
		publishes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish attempts by trigger and outcome",
		}, []string{"trigger", "status"}),
		actionRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_action_runs_total",
			Help:      "Scheduler actions by name and outcome",
		}, []string{"action", "status"}),
		actionsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_actions_skipped_total",
			Help:      "Scheduler actions skipped by reason",
		}, []string{"action", "reason"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) TopicsFetched(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.topicsFetched.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) SourceError(source string) {
	if m == nil {
		return
	}
	m.sourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) RankingPass(d time.Duration, clusters int) {
	if m == nil {
		return
	}
	m.rankingDuration.Observe(d.Seconds())
	m.clusters.Set(float64(clusters))
}

func (m *Metrics) LLMCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmDuration.Observe(d.Seconds())
	m.llmCalls.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) PostGenerated(trigger string) {
	if m == nil {
		return
	}
	m.postsGenerated.WithLabelValues(trigger).Inc()
}

func (m *Metrics) Publish(trigger, status string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(trigger, status).Inc()
}

func (m *Metrics) ActionRun(action string, err error) {
	if m == nil {
		return
	}
	m.actionRuns.WithLabelValues(action, outcome(err)).Inc()
}

func (m *Metrics) ActionSkipped(action, reason string) {
	if m == nil {
		return
	}
	m.actionsSkipped.WithLabelValues(action, reason).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, codeClass(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func codeClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
