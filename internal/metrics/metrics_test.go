package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ChunkOutcome("stored")
	m.ChunkOutcome("stored")
	m.ChunkOutcome("skipped")
	m.EmbedCall(nil)
	m.EmbedCall(errors.New("boom"))
	m.Document("duplicate")
	m.ObserveRetrieval(time.Now())

	assert.InDelta(t, 2, testutil.ToFloat64(m.ingestChunks.WithLabelValues("stored")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ingestChunks.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.embedCalls.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.documents.WithLabelValues("duplicate")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "docqa_ingest_chunks_total")
	assert.Contains(t, rec.Body.String(), "docqa_retrieval_seconds")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChunkOutcome("stored")
		m.EmbedCall(nil)
		m.Document("ingested")
		m.ObserveGeneration(time.Now())
	})
	assert.Nil(t, m.Registry())
}
