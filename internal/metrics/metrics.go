// Package metrics holds the Prometheus collectors exported in daemon mode.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Period outcomes.
const (
	OutcomeWritten         = "written"
	OutcomeSkippedExisting = "skipped_existing"
	OutcomeSkippedConflict = "skipped_conflict"
	OutcomeSkippedEmpty    = "skipped_empty"
)

// Recorder counts pipeline runs and per-period outcomes.
type Recorder struct {
	Registry *prometheus.Registry
	runs     *prometheus.CounterVec
	periods  *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_tracker_runs_total",
			Help: "Pipeline runs by result.",
		}, []string{"result"}),
		periods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weather_tracker_periods_total",
			Help: "Per-period outcomes of pipeline runs.",
		}, []string{"outcome"}),
	}
	r.Registry.MustRegister(r.runs, r.periods)
	return r
}

// Run records a finished run; result is "ok" or an error kind label.
func (r *Recorder) Run(result string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
}

// Period records the outcome of a single period.
func (r *Recorder) Period(outcome string) {
	if r == nil {
		return
	}
	r.periods.WithLabelValues(outcome).Inc()
}
