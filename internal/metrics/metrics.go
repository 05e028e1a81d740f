// Package metrics provides Prometheus metrics for the auction ledger.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the auction ledger.
// Every method is safe to call on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	PagesFetched  prometheus.Counter
	RowsCaptured  prometheus.Counter
	CaptureErrors *prometheus.CounterVec

	// Normalize metrics
	RecordsNormalized *prometheus.CounterVec
	QualityFlags      *prometheus.CounterVec

	// Merge metrics
	AuctionsInserted prometheus.Counter
	SnapshotRows     prometheus.Gauge

	// Validation metrics
	ValidationRuns *prometheus.CounterVec

	// Timing metrics
	StageDuration *prometheus.HistogramVec
}

// Init creates the metrics on a fresh registry. Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "auction_ledger"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		PagesFetched: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of API pages captured",
			},
		),
		RowsCaptured: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_captured_total",
				Help:      "Total number of raw auction rows captured",
			},
		),
		CaptureErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_errors_total",
				Help:      "Total number of aborted captures",
			},
			[]string{"reason"},
		),
		RecordsNormalized: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_normalized_total",
				Help:      "Total number of normalized records by tail kind",
			},
			[]string{"tail_kind"},
		),
		QualityFlags: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quality_flags_total",
				Help:      "Total number of data-quality flags raised",
			},
			[]string{"flag"},
		),
		AuctionsInserted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auctions_inserted_total",
				Help:      "Total number of new auctions written to the relational index",
			},
		),
		SnapshotRows: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_rows",
				Help:      "Row count of the historical snapshot after the last merge",
			},
		),
		ValidationRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_runs_total",
				Help:      "Validation outcomes by failing check (\"none\" when passed)",
			},
			[]string{"result", "check"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"stage"},
		),
	}

	return m
}

// Handler returns the HTTP routes serving /metrics and /healthz.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if m != nil {
		r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func (m *Metrics) StartServer(address string) error {
	return http.ListenAndServe(address, m.Handler())
}

// AddPagesFetched adds to the captured pages counter.
func (m *Metrics) AddPagesFetched(pages int) {
	if m == nil {
		return
	}
	m.PagesFetched.Add(float64(pages))
}

// AddRowsCaptured adds to the captured rows counter.
func (m *Metrics) AddRowsCaptured(rows int) {
	if m == nil {
		return
	}
	m.RowsCaptured.Add(float64(rows))
}

// IncCaptureErrors increments the aborted capture counter.
func (m *Metrics) IncCaptureErrors(reason string) {
	if m == nil {
		return
	}
	m.CaptureErrors.WithLabelValues(reason).Inc()
}

// AddRecordsNormalized adds to the normalized records counter for a tail kind.
func (m *Metrics) AddRecordsNormalized(tailKind string, count int) {
	if m == nil {
		return
	}
	m.RecordsNormalized.WithLabelValues(tailKind).Add(float64(count))
}

// AddQualityFlags adds to the data-quality flag counter.
func (m *Metrics) AddQualityFlags(flag string, count int) {
	if m == nil {
		return
	}
	m.QualityFlags.WithLabelValues(flag).Add(float64(count))
}

// AddAuctionsInserted adds to the relational inserts counter.
func (m *Metrics) AddAuctionsInserted(count int) {
	if m == nil {
		return
	}
	m.AuctionsInserted.Add(float64(count))
}

// SetSnapshotRows sets the snapshot row count gauge.
func (m *Metrics) SetSnapshotRows(rows int) {
	if m == nil {
		return
	}
	m.SnapshotRows.Set(float64(rows))
}

// IncValidation records a validation outcome.
func (m *Metrics) IncValidation(passed bool, check string) {
	if m == nil {
		return
	}
	result := "fail"
	if passed {
		result = "pass"
		check = "none"
	}
	m.ValidationRuns.WithLabelValues(result, check).Inc()
}

// ObserveStageDuration records how long a stage took.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}
