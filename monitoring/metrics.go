package monitoring

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nutriscan/pipeline"
)

// InferenceMetrics records pipeline outcomes. It implements
// pipeline.Observer.
type InferenceMetrics struct {
	Inferences      *prometheus.CounterVec
	Errors          *prometheus.CounterVec
	UnexpectedClass prometheus.Counter
	CacheHits       prometheus.Counter
	Duration        prometheus.Histogram
	Ready           prometheus.Gauge
	ArtifactChanges prometheus.Counter
	FeedSubscribers prometheus.Gauge
}

// NewInferenceMetrics registers every collector on reg.
func NewInferenceMetrics(reg prometheus.Registerer) *InferenceMetrics {
	factory := promauto.With(reg)
	return &InferenceMetrics{
		Inferences: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nutriscan_inferences_total",
			Help: "Classifications served, by label",
		}, []string{"label"}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nutriscan_inference_errors_total",
			Help: "Failed classifications, by error kind",
		}, []string{"kind"}),
		UnexpectedClass: factory.NewCounter(prometheus.CounterOpts{
			Name: "nutriscan_unexpected_class_total",
			Help: "Predictions outside {0,1} that were reported as UNHEALTHY",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "nutriscan_cache_hits_total",
			Help: "Classifications answered from the result cache",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "nutriscan_inference_duration_seconds",
			Help:    "Time spent in the inference pipeline",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}),
		Ready: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nutriscan_inference_ready",
			Help: "1 when both artifacts are loaded and agree with the feature width",
		}),
		ArtifactChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "nutriscan_artifact_changes_total",
			Help: "Artifact files changed on disk since startup",
		}),
		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nutriscan_feed_subscribers",
			Help: "Connected verdict feed clients",
		}),
	}
}

func (m *InferenceMetrics) ObserveResult(result pipeline.Result, cached bool, elapsed time.Duration) {
	m.Inferences.WithLabelValues(string(result.Label)).Inc()
	if cached {
		m.CacheHits.Inc()
	}
	m.Duration.Observe(elapsed.Seconds())
}

func (m *InferenceMetrics) ObserveError(err error) {
	m.Errors.WithLabelValues(ErrorKind(err)).Inc()
}

func (m *InferenceMetrics) ObserveUnexpectedClass(int) {
	m.UnexpectedClass.Inc()
}

// SetReady flips the readiness gauge.
func (m *InferenceMetrics) SetReady(ready bool) {
	if ready {
		m.Ready.Set(1)
		return
	}
	m.Ready.Set(0)
}

// ErrorKind names the taxonomy bucket of a pipeline error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, pipeline.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, pipeline.ErrTransformUnavailable):
		return "transform_unavailable"
	case errors.Is(err, pipeline.ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "internal"
	}
}
