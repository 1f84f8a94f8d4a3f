package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors updated during a run. All methods
// accept a nil receiver.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  prometheus.Counter
	records  *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics registers the crawl collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_requests_total",
			Help: "HTTP request attempts by fetch mode and outcome.",
		}, []string{"mode", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_retries_total",
			Help: "Retries scheduled after transient failures.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_records_total",
			Help: "Finalized visit records by status.",
		}, []string{"status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkcheck_inflight",
			Help: "Targets currently dispatched to workers.",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.retries, m.records, m.inflight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(mode FetchMode, st Status) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(string(mode), string(st.Kind)).Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observeRecord(st Status) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(st.Kind)).Inc()
}

func (m *Metrics) setInflight(n int) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(n))
}
