package kb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - счётчики загрузки и поиска. Нулевой *Metrics ничего не пишет.
type Metrics struct {
	documentsIngested prometheus.Counter
	documentsFailed   prometheus.Counter
	chunksAdded       prometheus.Counter
	ingestDuration    prometheus.Histogram
	retrieveDuration  prometheus.Histogram
	retrieveResults   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voice_rag",
			Name:      "documents_ingested_total",
			Help:      "Documents successfully added to the knowledge base.",
		}),
		documentsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voice_rag",
			Name:      "documents_failed_total",
			Help:      "Documents that failed to load, chunk or embed.",
		}),
		chunksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voice_rag",
			Name:      "chunks_added_total",
			Help:      "Chunks written to the vector index.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voice_rag",
			Name:      "ingest_duration_seconds",
			Help:      "Time spent ingesting one batch of documents.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		retrieveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voice_rag",
			Name:      "retrieve_duration_seconds",
			Help:      "Time spent embedding a query and searching the index.",
			Buckets:   prometheus.DefBuckets,
		}),
		retrieveResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voice_rag",
			Name:      "retrieve_results",
			Help:      "Chunks returned per query after the similarity threshold.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),
	}
	reg.MustRegister(
		m.documentsIngested,
		m.documentsFailed,
		m.chunksAdded,
		m.ingestDuration,
		m.retrieveDuration,
		m.retrieveResults,
	)
	return m
}

func (m *Metrics) observeIngest(report IngestReport, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.documentsIngested.Add(float64(report.DocumentsAdded))
	m.documentsFailed.Add(float64(len(report.Failed)))
	m.chunksAdded.Add(float64(report.ChunksAdded))
	m.ingestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) observeLoadFailures(n int) {
	if m == nil || n == 0 {
		return
	}
	m.documentsFailed.Add(float64(n))
}

func (m *Metrics) observeRetrieve(results int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.retrieveResults.Observe(float64(results))
	m.retrieveDuration.Observe(elapsed.Seconds())
}
