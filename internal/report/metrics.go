package report

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the report counters exported on /metrics. A nil *Metrics
// records nothing.
type Metrics struct {
	reports   *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	failures  prometheus.Counter
	signals   prometheus.Counter
	coalesced prometheus.Counter
	duration  prometheus.Histogram
	bytes     prometheus.Counter
}

// NewMetrics creates the report metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procreport_reports_total",
			Help: "Reports written, by triggering event.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "procreport_triggers_dropped_total",
			Help: "Triggers that did not produce a report, by reason.",
		}, []string{"reason"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procreport_sink_failures_total",
			Help: "Reports abandoned because the output could not be opened.",
		}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procreport_signals_accepted_total",
			Help: "Signal deliveries accepted into the pending slot.",
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procreport_signals_coalesced_total",
			Help: "Signal deliveries dropped because one was already pending.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "procreport_report_duration_seconds",
			Help:    "Time spent building a report.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "procreport_report_bytes_total",
			Help: "Bytes written to report sinks.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.reports, m.dropped, m.failures, m.signals, m.coalesced, m.duration, m.bytes} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) reportWritten(ev DumpEvent, d time.Duration, n int64) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(ev.String()).Inc()
	m.duration.Observe(d.Seconds())
	m.bytes.Add(float64(n))
}

func (m *Metrics) triggerDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) sinkFailed() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

func (m *Metrics) signalDelivered(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.signals.Inc()
		return
	}
	m.coalesced.Inc()
}
