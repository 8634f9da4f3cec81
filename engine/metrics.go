package engine

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus-compatible execution metrics, modeled on the
// teacher's graph.PrometheusMetrics (graph/metrics.go). Namespace is
// "enginecore" rather than "langgraph"; labels shift from run_id/node_id to
// flow_id/step_id to match this package's vocabulary.
//
// Metrics exposed:
//
//  1. executions_active (gauge): executions currently in a non-terminal
//     status. Labels: flow_id.
//  2. step_latency_ms (histogram): handler execution duration. Labels:
//     flow_id, step_id, outcome (success/failure/wait).
//  3. retries_total (counter): retry attempts. Labels: flow_id, step_id.
//  4. pipe_failures_total (counter): pipe write failures. Labels: flow_id,
//     pipe_id.
//  5. cancellations_total (counter): executions cancelled. Labels: flow_id,
//     cause (the cancel source: user/timeout/system/parent).
type Metrics struct {
	executionsActive *prometheus.GaugeVec
	stepLatency      *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	pipeFailures     *prometheus.CounterVec
	cancellations    *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers engine metrics with registry. Pass nil
// to use prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.executionsActive = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "enginecore",
		Name:      "executions_active",
		Help:      "Executions currently in a non-terminal status",
	}, []string{"flow_id"})

	m.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "enginecore",
		Name:      "step_latency_ms",
		Help:      "Handler execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"flow_id", "step_id", "outcome"})

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enginecore",
		Name:      "retries_total",
		Help:      "Cumulative count of step retry attempts",
	}, []string{"flow_id", "step_id"})

	m.pipeFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enginecore",
		Name:      "pipe_failures_total",
		Help:      "Pipe writes that failed to reach their target table",
	}, []string{"flow_id", "pipe_id"})

	m.cancellations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "enginecore",
		Name:      "cancellations_total",
		Help:      "Executions moved to cancelled, by cause",
	}, []string{"flow_id", "cause"})

	return m
}

func (m *Metrics) RecordStepLatency(flowID, stepID string, latency time.Duration, outcome string) {
	if m == nil || !m.enabled {
		return
	}
	m.stepLatency.WithLabelValues(flowID, stepID, outcome).Observe(float64(latency.Milliseconds()))
}

func (m *Metrics) IncrementRetries(flowID, stepID string) {
	if m == nil || !m.enabled {
		return
	}
	m.retries.WithLabelValues(flowID, stepID).Inc()
}

func (m *Metrics) IncrementPipeFailures(flowID, pipeID string) {
	if m == nil || !m.enabled {
		return
	}
	m.pipeFailures.WithLabelValues(flowID, pipeID).Inc()
}

func (m *Metrics) IncrementCancellations(flowID, cause string) {
	if m == nil || !m.enabled {
		return
	}
	m.cancellations.WithLabelValues(flowID, cause).Inc()
}

func (m *Metrics) SetExecutionsActive(flowID string, count int) {
	if m == nil || !m.enabled {
		return
	}
	m.executionsActive.WithLabelValues(flowID).Set(float64(count))
}
