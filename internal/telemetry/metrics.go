// Package telemetry exposes the pipeline's Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's instrument set, registered on a single
// registry exposed at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	jobsProcessed  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	postsScraped   *prometheus.CounterVec
	enrichFailures *prometheus.CounterVec
	rateLimitSkips *prometheus.CounterVec
	llmCalls       *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		jobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_jobs_processed_total",
			Help: "Jobs processed by kind and outcome.",
		}, []string{"kind", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_job_duration_seconds",
			Help:    "Job handler duration by kind.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		postsScraped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_posts_scraped_total",
			Help: "Posts upserted by platform.",
		}, []string{"platform"}),
		enrichFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_enrich_failures_total",
			Help: "Per-post comment enrichment failures by platform.",
		}, []string{"platform"}),
		rateLimitSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_rate_limit_skips_total",
			Help: "Scrape sub-steps skipped due to exhausted platform quota.",
		}, []string{"platform"}),
		llmCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_llm_calls_total",
			Help: "LLM completions by pipeline stage.",
		}, []string{"stage"}),
		llmTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_llm_tokens_total",
			Help: "LLM token usage by stage and direction.",
		}, []string{"stage", "direction"}),
	}
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveJob(kind string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobsProcessed.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) AddPostsScraped(platform string, n int) {
	m.postsScraped.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) AddEnrichFailures(platform string, n int) {
	m.enrichFailures.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) AddRateLimitSkips(platform string, n int) {
	m.rateLimitSkips.WithLabelValues(platform).Add(float64(n))
}

func (m *Metrics) ObserveLLM(stage string, inputTokens, outputTokens int64) {
	m.llmCalls.WithLabelValues(stage).Inc()
	m.llmTokens.WithLabelValues(stage, "input").Add(float64(inputTokens))
	m.llmTokens.WithLabelValues(stage, "output").Add(float64(outputTokens))
}
