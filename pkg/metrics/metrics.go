// Package metrics exposes training progress to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boristopalov/tangle/pkg/core"
)

const namespace = "tangle"

// Recorder owns one registry per experiment run
type Recorder struct {
	registry *prometheus.Registry

	generation      prometheus.Gauge
	vertices        prometheus.Gauge
	trainingScore   *prometheus.GaugeVec
	validationScore *prometheus.GaugeVec
	meanAccuracy    prometheus.Gauge
	duration        prometheus.Histogram
}

func New(experiment string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"experiment": experiment}

	return &Recorder{
		registry: reg,
		generation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "training",
			Name:        "generation",
			Help:        "Last completed generation",
			ConstLabels: labels,
		}),
		vertices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "graph",
			Name:        "vertices",
			Help:        "Vertices in the graph after the last generation",
			ConstLabels: labels,
		}),
		trainingScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "training",
			Name:        "score",
			Help:        "Root scores of the last training evaluation",
			ConstLabels: labels,
		}, []string{"stat"}),
		validationScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "validation",
			Name:        "score",
			Help:        "Root scores of the last validation evaluation",
			ConstLabels: labels,
		}, []string{"stat"}),
		meanAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "evaluation",
			Name:        "mean_accuracy",
			Help:        "Unweighted mean of per-class accuracies of the last evaluation",
			ConstLabels: labels,
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "training",
			Name:        "generation_duration_seconds",
			Help:        "Wall time of one training generation",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
}

func setScores(v *prometheus.GaugeVec, stats core.GenerationStats) {
	v.WithLabelValues("min").Set(stats.Min)
	v.WithLabelValues("avg").Set(stats.Avg)
	v.WithLabelValues("max").Set(stats.Max)
}

func (r *Recorder) ObserveTraining(stats core.GenerationStats, d time.Duration) {
	r.generation.Set(float64(stats.Generation))
	r.vertices.Set(float64(stats.NbVertices))
	setScores(r.trainingScore, stats)
	r.duration.Observe(d.Seconds())
}

func (r *Recorder) ObserveValidation(stats core.GenerationStats) {
	setScores(r.validationScore, stats)
}

func (r *Recorder) ObserveAccuracy(mean float64) {
	r.meanAccuracy.Set(mean)
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
