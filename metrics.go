package lsmkv

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "lsmkv"

// dbMetrics exports DB activity to Prometheus. A nil *dbMetrics records
// nothing.
type dbMetrics struct {
	puts          prometheus.Counter
	deletes       prometheus.Counter
	gets          *prometheus.CounterVec
	scans         prometheus.Counter
	flushes       prometheus.Counter
	retired       prometheus.Counter
	runs          prometheus.Gauge
	flushDuration prometheus.Histogram

	reg        prometheus.Registerer
	registered []prometheus.Collector
}

func newDBMetrics(reg prometheus.Registerer) (*dbMetrics, error) {
	m := &dbMetrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "puts_total", Help: "Values written.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "deletes_total", Help: "Tombstones written.",
		}),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "gets_total", Help: "Point lookups by where they were answered.",
		}, []string{"source"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "scans_total", Help: "Range scans served.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "flushes_total", Help: "Memtable flushes.",
		}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "runs_retired_total", Help: "Runs merged away and deleted.",
		}),
		runs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "runs", Help: "Live runs in the catalog.",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "flush_duration_seconds", Help: "Time spent cascading a flush.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}
	m.reg = reg
	for _, c := range []prometheus.Collector{m.puts, m.deletes, m.gets, m.scans, m.flushes, m.retired, m.runs, m.flushDuration} {
		if err := reg.Register(c); err != nil {
			m.unregister()
			return nil, err
		}
		m.registered = append(m.registered, c)
	}
	return m, nil
}

// unregister releases the collectors so the registry can take a new handle.
func (m *dbMetrics) unregister() {
	if m == nil {
		return
	}
	for _, c := range m.registered {
		m.reg.Unregister(c)
	}
	m.registered = nil
}

func (m *dbMetrics) put(tombstone bool) {
	if m == nil {
		return
	}
	if tombstone {
		m.deletes.Inc()
	} else {
		m.puts.Inc()
	}
}

// get records the outcome of a lookup: "memtable", "run" or "miss".
func (m *dbMetrics) get(source string) {
	if m != nil {
		m.gets.WithLabelValues(source).Inc()
	}
}

func (m *dbMetrics) scan() {
	if m != nil {
		m.scans.Inc()
	}
}

func (m *dbMetrics) flushed(start time.Time, retired, live int) {
	if m == nil {
		return
	}
	m.flushes.Inc()
	m.retired.Add(float64(retired))
	m.runs.Set(float64(live))
	m.flushDuration.Observe(time.Since(start).Seconds())
}

func (m *dbMetrics) liveRuns(n int) {
	if m != nil {
		m.runs.Set(float64(n))
	}
}
