package eventbus

import (
	"net/http"
	"time"

	"github.com/kestrel-sim/worldkernel/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsExporter exposes a bus's Stats as Prometheus gauges/counters
// and refreshes them on a ticker. It makes no assumption about which
// EventBus implementation it's given.
type MetricsExporter struct {
	bus  EventBus
	quit chan struct{}
	done chan struct{}

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
}

// NewMetricsExporter builds an exporter but does not start its HTTP
// endpoint.
func NewMetricsExporter(bus EventBus) *MetricsExporter {
	me := &MetricsExporter{
		bus:  bus,
		quit: make(chan struct{}),
		done: make(chan struct{}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_published_total",
			Help:      "Total events published to the bus.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_consumed_total",
			Help:      "Total events delivered to subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventbus",
			Name:      "messages_dropped_total",
			Help:      "Events dropped by backpressure or delivery failure.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventbus",
			Name:      "messages_inflight",
			Help:      "Events buffered but not yet delivered.",
		}),
	}

	prometheus.MustRegister(me.published, me.consumed, me.dropped, me.inflight)
	return me
}

// StartHTTP serves Prometheus's /metrics at addr (e.g. ":9090").
// Non-blocking: the HTTP server and the refresh loop both run in their
// own goroutine.
func (m *MetricsExporter) StartHTTP(addr string) {
	go func() {
		logging.LogInfo("eventbus: prometheus /metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
			logging.LogError("eventbus: prometheus http server: %v", err)
		}
	}()
	go m.loop()
}

// Stop halts the refresh loop. The HTTP server keeps running; kill the
// process to take it down too.
func (m *MetricsExporter) Stop() {
	close(m.quit)
	<-m.done
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer close(m.done)

	// Counters only move forward, so track the last Stats snapshot and
	// add the delta each tick rather than re-Set-ing an absolute value.
	var prev Stats

	for {
		select {
		case <-ticker.C:
			stats := m.bus.Metrics()

			deltaPub := stats.Published - prev.Published
			deltaCons := stats.Consumed - prev.Consumed
			deltaDrop := stats.Dropped - prev.Dropped

			if deltaPub > 0 {
				m.published.Add(float64(deltaPub))
			}
			if deltaCons > 0 {
				m.consumed.Add(float64(deltaCons))
			}
			if deltaDrop > 0 {
				m.dropped.Add(float64(deltaDrop))
			}

			m.inflight.Set(float64(stats.InFlight))
			prev = stats
		case <-m.quit:
			return
		}
	}
}
