package bufferpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports pool activity to Prometheus. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	extends   prometheus.Counter
	rehashes  prometheus.Counter
	pages     prometheus.Gauge
	capacity  prometheus.Gauge

	reg        prometheus.Registerer
	registered []prometheus.Collector
}

// NewMetrics creates the pool collectors and registers them on reg when it
// is not nil.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bufferpool", Name: name, Help: help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bufferpool", Name: name, Help: help,
		})
	}
	m := &Metrics{
		hits:      counter("hits_total", "Page lookups served from the pool."),
		misses:    counter("misses_total", "Page lookups not found in the pool."),
		evictions: counter("evictions_total", "Pages given up to make room."),
		extends:   counter("extends_total", "Directory doublings."),
		rehashes:  counter("rehashes_total", "Bucket splits after a doubling."),
		pages:     gauge("pages", "Pages currently cached."),
		capacity:  gauge("directory_slots", "Current directory size."),
	}
	if reg != nil {
		m.reg = reg
		for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.extends, m.rehashes, m.pages, m.capacity} {
			if err := reg.Register(c); err != nil {
				m.Unregister()
				return nil, err
			}
			m.registered = append(m.registered, c)
		}
	}
	return m, nil
}

// Unregister removes the collectors from the registry they were registered
// on, so a later NewMetrics on the same registry succeeds.
func (m *Metrics) Unregister() {
	if m == nil || m.reg == nil {
		return
	}
	for _, c := range m.registered {
		m.reg.Unregister(c)
	}
	m.registered = nil
}

func (m *Metrics) hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) evicted(n int) {
	if m != nil {
		m.evictions.Add(float64(n))
	}
}

func (m *Metrics) extended() {
	if m != nil {
		m.extends.Inc()
	}
}

func (m *Metrics) rehashed() {
	if m != nil {
		m.rehashes.Inc()
	}
}

func (m *Metrics) size(pages, slots int) {
	if m != nil {
		m.pages.Set(float64(pages))
		m.capacity.Set(float64(slots))
	}
}
