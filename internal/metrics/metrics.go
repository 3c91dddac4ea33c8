package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters for the scan pipeline.
type Metrics struct {
	chunksScanned prometheus.Counter
	chunksSkipped prometheus.Counter
	fetchRetries  prometheus.Counter
	eventsWritten prometheus.Counter
	eventsDropped prometheus.Counter
	rpcErrors     *prometheus.CounterVec
	lastBlock     prometheus.Gauge
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = newMetrics()
		prometheus.MustRegister(
			metrics.chunksScanned,
			metrics.chunksSkipped,
			metrics.fetchRetries,
			metrics.eventsWritten,
			metrics.eventsDropped,
			metrics.rpcErrors,
			metrics.lastBlock,
		)
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		chunksScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_collector_chunks_scanned_total",
			Help: "Total number of block ranges fetched successfully",
		}),
		chunksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_collector_chunks_skipped_total",
			Help: "Total number of block ranges skipped after fetch failures",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_collector_fetch_retries_total",
			Help: "Total number of log fetch retries",
		}),
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_collector_events_written_total",
			Help: "Total number of order events appended to the output",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trade_collector_events_dropped_total",
			Help: "Total number of logs dropped because their block or transaction was unavailable",
		}),
		rpcErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trade_collector_rpc_errors_total",
			Help: "Log fetch errors by class",
		}, []string{"class"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trade_collector_last_block",
			Help: "End block of the last processed range",
		}),
	}
}

// ChunkScanned records a fetched range ending at end.
func (m *Metrics) ChunkScanned(end uint64) {
	if m != nil {
		m.chunksScanned.Inc()
		m.lastBlock.Set(float64(end))
	}
}

// ChunkSkipped increments the skipped ranges counter.
func (m *Metrics) ChunkSkipped() {
	if m != nil {
		m.chunksSkipped.Inc()
	}
}

// FetchRetried increments the retry counter.
func (m *Metrics) FetchRetried() {
	if m != nil {
		m.fetchRetries.Inc()
	}
}

// EventsWritten adds n appended events.
func (m *Metrics) EventsWritten(n int) {
	if m != nil {
		m.eventsWritten.Add(float64(n))
	}
}

// EventsDropped adds n dropped logs.
func (m *Metrics) EventsDropped(n int) {
	if m != nil && n > 0 {
		m.eventsDropped.Add(float64(n))
	}
}

// RPCError counts a fetch error of the given class.
func (m *Metrics) RPCError(class string) {
	if m != nil {
		m.rpcErrors.WithLabelValues(class).Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
