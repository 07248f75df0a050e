package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics instruments ledger operations and custody movements. A nil
// *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	operations       *prometheus.CounterVec
	durations        *prometheus.HistogramVec
	custodyTransfers *prometheus.CounterVec
	custodyLamports  *prometheus.CounterVec
	overdueQuestions prometheus.Gauge
	rateLimited      *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors with reg
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qa_escrow",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome code.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qa_escrow",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent executing ledger operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		custodyTransfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qa_escrow",
			Subsystem: "custody",
			Name:      "transfers_total",
			Help:      "Custody movements by kind (deposit, payout, refund, reversal).",
		}, []string{"kind"}),
		custodyLamports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qa_escrow",
			Subsystem: "custody",
			Name:      "lamports_total",
			Help:      "Lamports moved through custody by kind.",
		}, []string{"kind"}),
		overdueQuestions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "qa_escrow",
			Subsystem: "ledger",
			Name:      "overdue_questions",
			Help:      "Questions past their deadline that still hold a deposit.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qa_escrow",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by subject kind and route.",
		}, []string{"subject", "route"}),
	}

	reg.MustRegister(
		m.operations,
		m.durations,
		m.custodyTransfers,
		m.custodyLamports,
		m.overdueQuestions,
		m.rateLimited,
	)
	return m
}

// ObserveOperation records one ledger operation and its outcome
func (m *LedgerMetrics) ObserveOperation(operation, result string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.durations.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObserveCustody records one custody movement. A transfer whose outcome is
// unknown is recorded under "<kind>_unresolved".
func (m *LedgerMetrics) ObserveCustody(kind string, lamports uint64) {
	if m == nil {
		return
	}
	m.custodyTransfers.WithLabelValues(kind).Inc()
	m.custodyLamports.WithLabelValues(kind).Add(float64(lamports))
}

// SetOverdueQuestions publishes the latest overdue count
func (m *LedgerMetrics) SetOverdueQuestions(n int) {
	if m == nil {
		return
	}
	m.overdueQuestions.Set(float64(n))
}

// ObserveRateLimited records one request turned away by the limiter
func (m *LedgerMetrics) ObserveRateLimited(subject, route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.rateLimited.WithLabelValues(subject, route).Inc()
}
