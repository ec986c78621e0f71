package observability

import (
	"net/http"

	"github.com/kestrel-sim/worldkernel/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TickMetrics exposes per-tick phase timings and action accept/reject
// counts as Prometheus collectors. One instance is shared by the
// Runner across the process lifetime.
type TickMetrics struct {
	tickDuration   prometheus.Histogram
	phaseDuration  *prometheus.HistogramVec
	accepted       prometheus.Counter
	rejected       prometheus.Counter
	overloadedGate prometheus.Counter
	cpuPercent     prometheus.Gauge
	rssBytes       prometheus.Gauge
}

// NewTickMetrics builds and registers the collectors. Call once per
// process; registering twice panics via prometheus.MustRegister.
func NewTickMetrics() *TickMetrics {
	tm := &TickMetrics{
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worldkernel",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a full RunTick call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "worldkernel",
			Name:      "tick_phase_duration_seconds",
			Help:      "Wall-clock duration of one kernel phase within a tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"phase"}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldkernel",
			Name:      "actions_accepted_total",
			Help:      "Actions that passed validation and were applied.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldkernel",
			Name:      "actions_rejected_total",
			Help:      "Actions rejected during validation or application.",
		}),
		overloadedGate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldkernel",
			Name:      "intents_overloaded_total",
			Help:      "Intents refused at the door because the load sampler reported sustained saturation.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldkernel",
			Name:      "process_cpu_percent",
			Help:      "Most recent CPU percent reading from the load sampler.",
		}),
		rssBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldkernel",
			Name:      "process_rss_bytes",
			Help:      "Most recent resident set size reading from the load sampler.",
		}),
	}

	prometheus.MustRegister(
		tm.tickDuration, tm.phaseDuration, tm.accepted, tm.rejected,
		tm.overloadedGate, tm.cpuPercent, tm.rssBytes,
	)
	return tm
}

// StartHTTP serves Prometheus's /metrics at addr (e.g. ":9091"),
// non-blocking.
func (tm *TickMetrics) StartHTTP(addr string) {
	go func() {
		logging.LogInfo("observability: prometheus /metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logging.LogError("observability: prometheus http server: %v", err)
		}
	}()
}

// ObserveTick records one RunTick's total wall-clock duration.
func (tm *TickMetrics) ObserveTick(seconds float64) { tm.tickDuration.Observe(seconds) }

// ObservePhase records one phase's wall-clock duration within a tick.
func (tm *TickMetrics) ObservePhase(phase string, seconds float64) {
	tm.phaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordAccepted increments the accepted-action counter by n.
func (tm *TickMetrics) RecordAccepted(n int) {
	if n > 0 {
		tm.accepted.Add(float64(n))
	}
}

// RecordRejected increments the rejected-action counter by n.
func (tm *TickMetrics) RecordRejected(n int) {
	if n > 0 {
		tm.rejected.Add(float64(n))
	}
}

// RecordOverloadedRefusal counts one intent turned away by the
// backpressure gate before it ever reached the kernel.
func (tm *TickMetrics) RecordOverloadedRefusal() { tm.overloadedGate.Inc() }

// RecordLoadSample mirrors a LoadSampler reading into gauges so it's
// visible alongside tick timings on the same dashboard.
func (tm *TickMetrics) RecordLoadSample(s LoadSample) {
	tm.cpuPercent.Set(s.CPUPercent)
	tm.rssBytes.Set(float64(s.RSSBytes))
}
