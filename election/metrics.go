package election

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names spec.md section 6 specifies: a legacy name carried forward
// for dashboards built against it, and the current name new instrumentation
// should use.
const (
	MetricLegacyCurrentLeaderLookup = "current-leader-host-port"
	MetricCurrentLeaderRetrieval    = "debug.current-leader.retrieval.duration"
)

// Metrics is the minimal timer surface the watch/poll loop needs around
// each participant read (spec.md section 5, "Shared resources": "Two
// metrics timers are shared... both are invoked around each participant
// read"). The election core is otherwise indifferent to how timers are
// reported, per spec.md section 1 ("Metrics plumbing... the core is
// otherwise indifferent to the reporter").
type Metrics interface {
	// Timer starts timing an operation under the given metric name and
	// returns a function that records the elapsed duration when called.
	Timer(name string) func()
}

// NoopMetrics discards all timings. It is the default when no Metrics
// handle is supplied.
type NoopMetrics struct{}

// Timer implements Metrics.
func (NoopMetrics) Timer(string) func() { return func() {} }

// PrometheusMetrics reports both named timers as a prometheus histogram
// vector keyed by metric name.
type PrometheusMetrics struct {
	histogram *prometheus.HistogramVec
}

// NewPrometheusMetrics registers (via the supplied registerer) a histogram
// vector for the election core's timers and returns a Metrics handle backed
// by it.
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Subsystem: "election",
		Name:      "operation_duration_seconds",
		Help:      "Duration of leader-election store operations, by metric name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"name"})
	if registerer != nil {
		registerer.MustRegister(hv)
	}
	return &PrometheusMetrics{histogram: hv}
}

// Timer implements Metrics.
func (m *PrometheusMetrics) Timer(name string) func() {
	start := time.Now()
	return func() {
		m.histogram.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// recordRetrievalDuration invokes both named timers around fn, per
// spec.md's requirement that both be invoked around each participant read.
func recordRetrievalDuration(m Metrics, fn func() error) error {
	stopLegacy := m.Timer(MetricLegacyCurrentLeaderLookup)
	stopCurrent := m.Timer(MetricCurrentLeaderRetrieval)
	err := fn()
	stopCurrent()
	stopLegacy()
	return err
}
