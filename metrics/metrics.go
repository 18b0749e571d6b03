// Package metrics provides Prometheus instrumentation for the curator engine:
// chain operations, alpha protocol phases, partial contributions, codec
// throughput and HTTP requests. It also serves them on a dedicated listener.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

const (
	// Namespace is the Prometheus namespace for all curator metrics
	Namespace = "curator"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelPhase      = "phase"
	LabelCipher     = "cipher"
	LabelDirection  = "direction"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Chain operation names
	OpCreate      = "create"
	OpRecover     = "recover"
	OpBreakGlass  = "break_glass"
	OpDeriveAlpha = "derive_alpha"
	OpHistory     = "history"
	OpEmergency   = "emergency_kit"

	// Alpha protocol phases
	PhaseQuorum   = "quorum"
	PhasePartials = "partials"
	PhaseCombine  = "combine"
)

var cryptoBuckets = []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1}

var (
	// ChainOperationsTotal counts chain operations by type and status.
	ChainOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "operations_total",
			Help:      "Total number of chain operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// ChainOperationDuration tracks chain operation latency in seconds.
	ChainOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "operation_duration_seconds",
			Help:      "Duration of chain operations in seconds",
			Buckets:   cryptoBuckets,
		},
		[]string{LabelOperation},
	)

	// ChainLength is the number of links in the most recently updated chain.
	ChainLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "chain",
			Name:      "length",
			Help:      "Number of links in the most recently updated chain",
		},
	)

	// ProtocolPhaseDuration tracks the duration of each alpha protocol phase.
	ProtocolPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "alpha",
			Name:      "phase_duration_seconds",
			Help:      "Duration of alpha protocol phases in seconds",
			Buckets:   cryptoBuckets,
		},
		[]string{LabelPhase},
	)

	// ContributionsTotal counts partial contributions served by curators.
	ContributionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "alpha",
			Name:      "contributions_total",
			Help:      "Total number of partial contributions by status",
		},
		[]string{LabelStatus},
	)

	// CodecThroughput is the last measured codec throughput in bytes per second.
	CodecThroughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "codec",
			Name:      "throughput_bytes_per_second",
			Help:      "Last measured codec throughput in bytes per second",
		},
		[]string{LabelCipher, LabelDirection},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	enabled = atomic.NewBool(true)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordChainOperation records a chain operation with its duration and outcome.
//
// Example:
//
//	start := time.Now()
//	secret, err := chain.Recover(ctx, epoch)
//	metrics.RecordChainOperation(metrics.OpRecover, err, time.Since(start))
func RecordChainOperation(operation string, err error, d time.Duration) {
	if !enabled.Load() {
		return
	}
	ChainOperationsTotal.WithLabelValues(operation, Status(err)).Inc()
	ChainOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetChainLength records the length of a chain after an append.
func SetChainLength(n int) {
	if !enabled.Load() {
		return
	}
	ChainLength.Set(float64(n))
}

// RecordPhase records the duration of an alpha protocol phase.
func RecordPhase(phase string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	ProtocolPhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordContribution counts a partial contribution served by a curator.
func RecordContribution(err error) {
	if !enabled.Load() {
		return
	}
	ContributionsTotal.WithLabelValues(Status(err)).Inc()
}

// SetThroughput records a codec throughput measurement.
func SetThroughput(cipher, direction string, bytesPerSecond float64) {
	if !enabled.Load() {
		return
	}
	CodecThroughput.WithLabelValues(cipher, direction).Set(bytesPerSecond)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, d time.Duration) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
