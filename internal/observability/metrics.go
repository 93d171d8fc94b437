// Package observability exposes Prometheus metrics for the monitoring path.
// Monitoring failures surface here and in logs, never as errors on the
// wrapped response path.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the SDK's Prometheus instruments. A nil *Metrics is valid
// and turns every record call into a no-op, so components don't need to
// guard their instrumentation.
type Metrics struct {
	interactions   prometheus.Counter
	sampled        prometheus.Counter
	reports        prometheus.Counter
	reportFailures prometheus.Counter
	reportsDropped prometheus.Counter
	batchesFlushed prometheus.Counter
	batchesDropped prometheus.Counter
	healCycles     prometheus.Counter
	heals          *prometheus.CounterVec
	queueLength    prometheus.Gauge
	batchLength    prometheus.Gauge
	reportLatency  prometheus.Histogram
}

// New creates and registers the SDK metrics on the given registerer.
// Passing nil registers on the default registry.
func New(reg prometheus.Registerer, agentID string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{"agent_id": agentID}

	m := &Metrics{
		interactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_interactions_total", Help: "Total wrapped inference calls.", ConstLabels: labels,
		}),
		sampled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_sampled_total", Help: "Interactions selected for quality reporting.", ConstLabels: labels,
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_reports_total", Help: "Feedback reports submitted to the backend.", ConstLabels: labels,
		}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_report_failures_total", Help: "Feedback submissions that failed after retries.", ConstLabels: labels,
		}),
		reportsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_reports_dropped_total", Help: "Reports dropped due to queue backpressure.", ConstLabels: labels,
		}),
		batchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_batches_flushed_total", Help: "Batches handed to the reporter.", ConstLabels: labels,
		}),
		batchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_batches_dropped_total", Help: "Batches dropped after exhausting send retries.", ConstLabels: labels,
		}),
		healCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentmon_heal_cycles_total", Help: "Self-healing scan cycles started.", ConstLabels: labels,
		}),
		heals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentmon_heals_total", Help: "Heal attempts by result.", ConstLabels: labels,
		}, []string{"result"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentmon_report_queue_length", Help: "Current async report queue depth.", ConstLabels: labels,
		}),
		batchLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentmon_batch_queue_length", Help: "Current batch buffer depth.", ConstLabels: labels,
		}),
		reportLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "agentmon_report_latency_seconds",
			Help:        "Latency of feedback submissions to the backend.",
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 12),
			ConstLabels: labels,
		}),
	}

	collectors := []prometheus.Collector{
		m.interactions, m.sampled, m.reports, m.reportFailures, m.reportsDropped,
		m.batchesFlushed, m.batchesDropped, m.healCycles, m.heals,
		m.queueLength, m.batchLength, m.reportLatency,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Interaction() {
	if m != nil {
		m.interactions.Inc()
	}
}

func (m *Metrics) Sampled() {
	if m != nil {
		m.sampled.Inc()
	}
}

func (m *Metrics) Report() {
	if m != nil {
		m.reports.Inc()
	}
}

func (m *Metrics) ReportFailure() {
	if m != nil {
		m.reportFailures.Inc()
	}
}

func (m *Metrics) ReportDropped() {
	if m != nil {
		m.reportsDropped.Inc()
	}
}

func (m *Metrics) BatchFlushed() {
	if m != nil {
		m.batchesFlushed.Inc()
	}
}

func (m *Metrics) BatchDropped() {
	if m != nil {
		m.batchesDropped.Inc()
	}
}

func (m *Metrics) HealCycle() {
	if m != nil {
		m.healCycles.Inc()
	}
}

// HealResult records a heal attempt outcome ("healed", "failed",
// "suggested").
func (m *Metrics) HealResult(result string) {
	if m != nil {
		m.heals.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetQueueLength(n int) {
	if m != nil {
		m.queueLength.Set(float64(n))
	}
}

func (m *Metrics) SetBatchLength(n int) {
	if m != nil {
		m.batchLength.Set(float64(n))
	}
}

func (m *Metrics) ObserveReportLatency(seconds float64) {
	if m != nil {
		m.reportLatency.Observe(seconds)
	}
}
