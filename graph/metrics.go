package graph

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects execution metrics for Prometheus.
//
// Metrics exposed (all namespaced with "wavegraph_"):
//
//   - waves_total (counter): completed or failed waves. Labels: status.
//   - wave_latency_ms (histogram): wall time of a wave, dispatch to merge.
//   - node_latency_ms (histogram): node execution time. Labels: node_id, status.
//   - inflight_nodes (gauge): nodes currently running.
//   - frontier_size (gauge): size of the most recently scheduled frontier.
//   - interrupts_total (counter): pauses before an interrupt node. Labels: node_id.
//   - run_outcomes_total (counter): how Invoke/Resume calls ended. Labels: outcome.
//
// Thread ids are deliberately not used as labels; they are unbounded.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type PrometheusMetrics struct {
	waves         *prometheus.CounterVec
	waveLatency   prometheus.Histogram
	nodeLatency   *prometheus.HistogramVec
	inflightNodes prometheus.Gauge
	frontierSize  prometheus.Gauge
	interrupts    *prometheus.CounterVec
	outcomes      *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// Outcome label values for run_outcomes_total.
const (
	OutcomeTerminal        = "terminal"
	OutcomePaused          = "paused"
	OutcomeNodeError       = "node_error"
	OutcomeRouterError     = "router_error"
	OutcomeCeilingExceeded = "ceiling_exceeded"
	OutcomeConflict        = "conflict"
)

// NewPrometheusMetrics creates and registers all metrics with registry
// (prometheus.DefaultRegisterer if nil).
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	latencyBuckets := []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000}

	return &PrometheusMetrics{
		enabled: true,
		waves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavegraph",
			Name:      "waves_total",
			Help:      "Waves executed, by outcome",
		}, []string{"status"}),
		waveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wavegraph",
			Name:      "wave_latency_ms",
			Help:      "Wave duration in milliseconds from dispatch to merge",
			Buckets:   latencyBuckets,
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wavegraph",
			Name:      "node_latency_ms",
			Help:      "Node execution duration in milliseconds",
			Buckets:   latencyBuckets,
		}, []string{"node_id", "status"}),
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wavegraph",
			Name:      "inflight_nodes",
			Help:      "Nodes currently executing",
		}),
		frontierSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wavegraph",
			Name:      "frontier_size",
			Help:      "Number of nodes in the most recently scheduled frontier",
		}),
		interrupts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavegraph",
			Name:      "interrupts_total",
			Help:      "Pauses before interrupt nodes",
		}, []string{"node_id"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wavegraph",
			Name:      "run_outcomes_total",
			Help:      "Invoke and Resume calls by outcome",
		}, []string{"outcome"}),
	}
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordWave records a finished wave. status is "success" or "error".
func (pm *PrometheusMetrics) RecordWave(latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.waves.WithLabelValues(status).Inc()
	pm.waveLatency.Observe(float64(latency.Milliseconds()))
}

// RecordNodeLatency records one node execution.
func (pm *PrometheusMetrics) RecordNodeLatency(nodeID string, latency time.Duration, status string) {
	if !pm.on() {
		return
	}
	pm.nodeLatency.WithLabelValues(nodeID, status).Observe(float64(latency.Milliseconds()))
}

// AddInflightNodes adjusts the inflight gauge by delta.
func (pm *PrometheusMetrics) AddInflightNodes(delta int) {
	if !pm.on() {
		return
	}
	pm.inflightNodes.Add(float64(delta))
}

// UpdateFrontierSize sets the frontier gauge.
func (pm *PrometheusMetrics) UpdateFrontierSize(n int) {
	if !pm.on() {
		return
	}
	pm.frontierSize.Set(float64(n))
}

// IncrementInterrupts counts a pause before nodeID.
func (pm *PrometheusMetrics) IncrementInterrupts(nodeID string) {
	if !pm.on() {
		return
	}
	pm.interrupts.WithLabelValues(nodeID).Inc()
}

// RecordOutcome counts how an Invoke or Resume call ended.
func (pm *PrometheusMetrics) RecordOutcome(outcome string) {
	if !pm.on() {
		return
	}
	pm.outcomes.WithLabelValues(outcome).Inc()
}

// Disable stops recording. Useful in tests that share a registry.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable resumes recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}
