package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the per-invocation Prometheus collectors. lampctl is a
// short-lived process, so collectors live in a private registry that is
// written to a node_exporter textfile at exit instead of being scraped.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter
	preflight    *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		stepTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lampctl_step_total",
			Help: "Plan steps executed, by command, step and result status",
		}, []string{"command", "step", "status"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lampctl_step_duration_seconds",
			Help:    "Duration of each plan step",
			Buckets: prometheus.DefBuckets,
		}, []string{"command", "step"}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lampctl_lock_wait_seconds",
			Help:    "Time spent waiting for the package manager lock",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900},
		}),
		lockTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lampctl_lock_timeouts_total",
			Help: "Package manager lock waits that exhausted their budget",
		}),
		preflight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lampctl_preflight_failed_checks",
			Help: "Failed preflight checks of the last run, by command and severity",
		}, []string{"command", "severity"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStep records one step outcome.
func (r *Recorder) ObserveStep(command, step, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.stepTotal.WithLabelValues(command, step, status).Inc()
	r.stepDuration.WithLabelValues(command, step).Observe(d.Seconds())
}

// ObserveLockWait records how long a lock wait took and whether it timed out.
func (r *Recorder) ObserveLockWait(d time.Duration, timedOut bool) {
	if r == nil {
		return
	}
	r.lockWait.Observe(d.Seconds())
	if timedOut {
		r.lockTimeouts.Inc()
	}
}

// SetPreflight records the number of failed checks per severity.
func (r *Recorder) SetPreflight(command string, blocking, advisory int) {
	if r == nil {
		return
	}
	r.preflight.WithLabelValues(command, "blocking").Set(float64(blocking))
	r.preflight.WithLabelValues(command, "advisory").Set(float64(advisory))
}

// WriteTextfile writes all collected metrics to path in the text exposition
// format, atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
