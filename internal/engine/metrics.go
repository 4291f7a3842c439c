package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the four collectors the engine reports, each labelled
// by {component_type, component_id}. Registration tolerates a collector with
// the same name already present in the registry — the Go analogue of the
// source's get_counter helper.
type Metrics struct {
	running    *prometheus.GaugeVec
	startsTotal *prometheus.CounterVec
	bytesTotal  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var processingDurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics registers (or reuses) the engine's metrics against reg. A nil
// reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	labels := []string{"component_type", "component_id"}

	running := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "engine_running",
		Help: "Whether the engine is running (1) or stopped (0).",
	}, labels)

	starts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_starts_total",
		Help: "Number of times the engine transitioned from non-running to running.",
	}, labels)

	bytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "data_processed_bytes_total",
		Help: "Total bytes of non-empty payloads received by the engine, before processing.",
	}, labels)

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processing_duration_seconds",
		Help:    "Duration of each processor invocation.",
		Buckets: processingDurationBuckets,
	}, labels)

	return &Metrics{
		running:     registerGaugeVec(reg, running),
		startsTotal: registerCounterVec(reg, starts),
		bytesTotal:  registerCounterVec(reg, bytesTotal),
		duration:    registerHistogramVec(reg, duration),
	}
}

func registerGaugeVec(reg prometheus.Registerer, c *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) setRunning(componentType, componentID string, running bool) {
	v := 0.0
	if running {
		v = 1.0
	}
	m.running.WithLabelValues(componentType, componentID).Set(v)
}

func (m *Metrics) incStarts(componentType, componentID string) {
	m.startsTotal.WithLabelValues(componentType, componentID).Inc()
}

func (m *Metrics) addBytes(componentType, componentID string, n int) {
	m.bytesTotal.WithLabelValues(componentType, componentID).Add(float64(n))
}

func (m *Metrics) observeDuration(componentType, componentID string, seconds float64) {
	m.duration.WithLabelValues(componentType, componentID).Observe(seconds)
}
