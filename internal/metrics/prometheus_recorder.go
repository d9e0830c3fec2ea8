package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once               sync.Once
	generationDuration prom.Histogram
	jobDuration        prom.Histogram
	jobResults         *prom.CounterVec
	generationOutcome  *prom.CounterVec
	cacheBytes         prom.Gauge
	cacheEntries       prom.Gauge
	livereloadClients  prom.Gauge
	livereloadCasts    prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.generationDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docforge",
			Name:      "generation_duration_seconds",
			Help:      "Total duration of one build generation",
			Buckets:   prom.DefBuckets,
		})
		pr.jobDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "docforge",
			Name:      "job_duration_seconds",
			Help:      "Duration of individual document build jobs",
			Buckets:   prom.DefBuckets,
		})
		pr.jobResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docforge",
			Name:      "job_results_total",
			Help:      "Job result counts by outcome",
		}, []string{"result"})
		pr.generationOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "docforge",
			Name:      "generation_outcomes_total",
			Help:      "Generation outcomes by final status",
		}, []string{"outcome"})
		pr.cacheBytes = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docforge",
			Name:      "cache_resident_bytes",
			Help:      "Bytes held by the artifact cache",
		})
		pr.cacheEntries = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docforge",
			Name:      "cache_entries",
			Help:      "Entries held by the artifact cache",
		})
		pr.livereloadClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: "docforge",
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		})
		pr.livereloadCasts = prom.NewCounter(prom.CounterOpts{
			Namespace: "docforge",
			Name:      "livereload_broadcasts_total",
			Help:      "Live-reload broadcasts sent",
		})
		reg.MustRegister(pr.generationDuration, pr.jobDuration, pr.jobResults,
			pr.generationOutcome, pr.cacheBytes, pr.cacheEntries,
			pr.livereloadClients, pr.livereloadCasts)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveGenerationDuration(d time.Duration) {
	if p == nil || p.generationDuration == nil {
		return
	}
	p.generationDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveJobDuration(d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobResult(result JobResult) {
	if p == nil || p.jobResults == nil {
		return
	}
	p.jobResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncGenerationOutcome(outcome string) {
	if p == nil || p.generationOutcome == nil {
		return
	}
	p.generationOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetCacheBytes(n int64) {
	if p == nil || p.cacheBytes == nil {
		return
	}
	p.cacheBytes.Set(float64(n))
}

func (p *PrometheusRecorder) SetCacheEntries(n int) {
	if p == nil || p.cacheEntries == nil {
		return
	}
	p.cacheEntries.Set(float64(n))
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil || p.livereloadClients == nil {
		return
	}
	p.livereloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncLiveReloadBroadcasts() {
	if p == nil || p.livereloadCasts == nil {
		return
	}
	p.livereloadCasts.Inc()
}
