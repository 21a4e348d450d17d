package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes production timing metrics on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	batchesCreated prometheus.Counter
	activeBatches  prometheus.Gauge
	stepDuration   *prometheus.HistogramVec
	batchDuration  prometheus.Histogram
	verdicts       *prometheus.CounterVec
}

// NewCollector creates and registers all collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		batchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "halwa_batches_created_total",
			Help: "Number of production batches created",
		}),
		activeBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "halwa_batches_active",
			Help: "Batches currently in progress",
		}),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "halwa_step_duration_minutes",
				Help:    "Recorded process step durations",
				Buckets: prometheus.LinearBuckets(0, 5, 20),
			},
			[]string{"process_type"},
		),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "halwa_batch_total_duration_minutes",
			Help:    "Total recorded duration of finished batches",
			Buckets: prometheus.LinearBuckets(0, 30, 20),
		}),
		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "halwa_validation_verdicts_total",
				Help: "Validation verdicts by severity",
			},
			[]string{"verdict"},
		),
	}

	c.registry.MustRegister(
		c.batchesCreated,
		c.activeBatches,
		c.stepDuration,
		c.batchDuration,
		c.verdicts,
	)
	return c
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// BatchCreated records a new in-progress batch.
func (c *Collector) BatchCreated() {
	c.batchesCreated.Inc()
	c.activeBatches.Inc()
}

// StepStopped records one completed step timing.
func (c *Collector) StepStopped(processType string, minutes float64) {
	c.stepDuration.WithLabelValues(processType).Observe(minutes)
}

// BatchFinished records a completed batch total.
func (c *Collector) BatchFinished(totalMinutes float64) {
	c.activeBatches.Dec()
	c.batchDuration.Observe(totalMinutes)
}

// BatchValidated records the assigned verdict.
func (c *Collector) BatchValidated(verdict string) {
	c.verdicts.WithLabelValues(verdict).Inc()
}
