// Package metrics owns the Prometheus registry of the service. All methods
// are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docqa"

type Metrics struct {
	registry       *prometheus.Registry
	ingestChunks   *prometheus.CounterVec
	embedCalls     *prometheus.CounterVec
	documents      *prometheus.CounterVec
	retrievalTime  prometheus.Histogram
	generationTime prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestChunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks processed by ingestion, by outcome.",
		}, []string{"outcome"}),
		embedCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embed_calls_total",
			Help:      "Embedding calls made during ingestion, by outcome.",
		}, []string{"outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents submitted for ingestion, by outcome.",
		}, []string{"outcome"}),
		retrievalTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_seconds",
			Help:      "Latency of question retrieval.",
			Buckets:   prometheus.DefBuckets,
		}),
		generationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Latency of answer generation.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestChunks, m.embedCalls, m.documents, m.retrievalTime, m.generationTime,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ChunkOutcome counts one chunk as "stored", "skipped" or "failed".
func (m *Metrics) ChunkOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestChunks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EmbedCall(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.embedCalls.WithLabelValues(outcome).Inc()
}

// Document counts one document as "ingested", "duplicate" or "partial".
func (m *Metrics) Document(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetrieval(start time.Time) {
	if m == nil {
		return
	}
	m.retrievalTime.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveGeneration(start time.Time) {
	if m == nil {
		return
	}
	m.generationTime.Observe(time.Since(start).Seconds())
}
