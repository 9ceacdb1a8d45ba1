// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transfer guard metrics
	TransferDecisions *prometheus.CounterVec
	ProtectionOps     *prometheus.CounterVec

	// Escrow metrics
	EscrowOps       *prometheus.CounterVec
	EscrowLockedLP  prometheus.Counter
	EscrowReleased  prometheus.Counter
	AttestationsBad *prometheus.CounterVec

	// Event log metrics
	EventsRecorded     *prometheus.CounterVec
	EventRecordErrors  prometheus.Counter
	MonitorTxProcessed prometheus.Counter
	MonitorTxErrors    *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	HTTPReqDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "launch_guard"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		TransferDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "transfer_decisions_total",
			Help:      "Transfer guard verdicts by outcome and reason",
		}, []string{"outcome", "reason"}),
		ProtectionOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "protection_operations_total",
			Help:      "Protection registry operations by result",
		}, []string{"operation", "result"}),

		EscrowOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "operations_total",
			Help:      "Escrow ledger operations by result",
		}, []string{"operation", "result"}),
		EscrowLockedLP: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "lp_locked_total",
			Help:      "Total LP units moved into custody vaults",
		}),
		EscrowReleased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "lp_released_total",
			Help:      "Total LP units withdrawn from custody vaults",
		}),
		AttestationsBad: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "attestations_rejected_total",
			Help:      "Attestations rejected before threshold evaluation",
		}, []string{"reason"}),

		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Policy events appended to the log by kind",
		}, []string{"kind"}),
		EventRecordErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "record_errors_total",
			Help:      "Policy events that failed to persist",
		}),
		MonitorTxProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "transactions_processed_total",
			Help:      "Transactions evaluated by the live transfer monitor",
		}),
		MonitorTxErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "transaction_errors_total",
			Help:      "Monitor failures by stage",
		}, []string{"stage"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPReqDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordTransferDecision counts a guard verdict.
func RecordTransferDecision(outcome, reason string) {
	DefaultMetrics.TransferDecisions.WithLabelValues(outcome, reason).Inc()
}

// RecordProtectionOp counts a protection registry operation.
func RecordProtectionOp(operation string, err error) {
	DefaultMetrics.ProtectionOps.WithLabelValues(operation, result(err)).Inc()
}

// RecordEscrowOp counts an escrow ledger operation.
func RecordEscrowOp(operation string, err error) {
	DefaultMetrics.EscrowOps.WithLabelValues(operation, result(err)).Inc()
}

// RecordLocked adds LP units moved into custody.
func RecordLocked(amount uint64) {
	DefaultMetrics.EscrowLockedLP.Add(float64(amount))
}

// RecordReleased adds LP units withdrawn from custody.
func RecordReleased(amount uint64) {
	DefaultMetrics.EscrowReleased.Add(float64(amount))
}

// RecordAttestationRejected counts an attestation refused by the attestor.
func RecordAttestationRejected(reason string) {
	DefaultMetrics.AttestationsBad.WithLabelValues(reason).Inc()
}

// RecordEvent counts a persisted policy event, or a persistence failure.
func RecordEvent(kind string, err error) {
	if err != nil {
		DefaultMetrics.EventRecordErrors.Inc()
		return
	}
	DefaultMetrics.EventsRecorded.WithLabelValues(kind).Inc()
}

// RecordMonitorTx counts a monitored transaction, labelling the failed stage if any.
func RecordMonitorTx(stage string, err error) {
	DefaultMetrics.MonitorTxProcessed.Inc()
	if err != nil {
		DefaultMetrics.MonitorTxErrors.WithLabelValues(stage).Inc()
	}
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordHTTPRequest records API request latency.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPReqDuration.WithLabelValues(route, code).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
