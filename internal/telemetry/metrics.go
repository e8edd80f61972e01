package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finassist"

// Metrics holds the detection counters.
type Metrics struct {
	Detections *prometheus.CounterVec
	Fallbacks  prometheus.Counter
	Anomalies  *prometheus.CounterVec
	Checks     *prometheus.CounterVec
}

// NewMetrics registers the counters with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Detections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Category detections completed, by detector method.",
		}, []string{"method"}),
		Fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Category detections where the outlier model failed and the window detector ran.",
		}),
		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomalies flagged, by detector method.",
		}, []string{"method"}),
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_checks_total",
			Help:      "Single-transaction checks, by outcome.",
		}, []string{"outcome"}),
	}
}

// Check outcomes.
const (
	CheckAnomalous    = "anomalous"
	CheckNormal       = "normal"
	CheckInsufficient = "insufficient_data"
)

// ObserveDetection records one finished category detection.
func (m *Metrics) ObserveDetection(method string, anomalies int, fellBack bool) {
	if m == nil {
		return
	}
	m.Detections.WithLabelValues(method).Inc()
	m.Anomalies.WithLabelValues(method).Add(float64(anomalies))
	if fellBack {
		m.Fallbacks.Inc()
	}
}

// ObserveCheck records one single-transaction check.
func (m *Metrics) ObserveCheck(outcome string) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome).Inc()
}
