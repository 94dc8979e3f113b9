package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "packd"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	cacheLookups     *prom.CounterVec
	buildOutcome     *prom.CounterVec
	buildDuration    prom.Histogram
	stageDuration    *prom.HistogramVec
	buildsInFlight   prom.Gauge
	joinedWaiters    prom.Counter
	artifactSize     prom.Histogram
	registryDuration *prom.HistogramVec
	registryRetries  prom.Counter
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		cacheLookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Artifact cache lookups by result",
		}, []string{"result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build duration including install, bundle and minify",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
		}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildsInFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_in_flight",
			Help:      "Builds currently running",
		}),
		joinedWaiters: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_joined_waiters_total",
			Help:      "Requests that joined an in-flight build instead of starting one",
		}),
		artifactSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Compressed artifact size",
			Buckets:   prom.ExponentialBuckets(1024, 4, 8),
		}),
		registryDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_fetch_duration_seconds",
			Help:      "Registry metadata fetch duration by result",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		registryRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "registry_retries_total",
			Help:      "Registry fetch retries after transient failures",
		}),
	}
	reg.MustRegister(
		pr.cacheLookups, pr.buildOutcome, pr.buildDuration, pr.stageDuration,
		pr.buildsInFlight, pr.joinedWaiters, pr.artifactSize,
		pr.registryDuration, pr.registryRetries,
	)
	return pr
}

func (p *PrometheusRecorder) IncCacheLookup(result CacheResult) {
	p.cacheLookups.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddBuildsInFlight(delta int) {
	p.buildsInFlight.Add(float64(delta))
}

func (p *PrometheusRecorder) IncJoinedWaiters() { p.joinedWaiters.Inc() }

func (p *PrometheusRecorder) ObserveArtifactSize(bytes int) {
	p.artifactSize.Observe(float64(bytes))
}

func (p *PrometheusRecorder) ObserveRegistryFetch(d time.Duration, result RegistryResult) {
	p.registryDuration.WithLabelValues(string(result)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRegistryRetry() { p.registryRetries.Inc() }

var _ Recorder = (*PrometheusRecorder)(nil)
