package obs

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	ecs "github.com/hollowforge/simcore"
)

// PrometheusObserver publishes per-stage scheduler metrics to a
// prometheus.Registry, replacing any hand-rolled text exposition with
// real collectors the standard /metrics HTTP handler can serve.
type PrometheusObserver struct {
	duration        *prometheus.HistogramVec
	systemsExecuted *prometheus.CounterVec
	systemsSkipped  *prometheus.CounterVec
	commandsApplied *prometheus.CounterVec
	errors          *prometheus.CounterVec
}

// NewPrometheusObserver constructs and registers the collectors against
// reg. Passing a fresh prometheus.NewRegistry() keeps these metrics
// isolated from the default global registry.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "simcore",
			Subsystem: "scheduler",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		systemsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simcore",
			Subsystem: "scheduler",
			Name:      "systems_executed_total",
			Help:      "Systems executed per stage.",
		}, []string{"stage"}),
		systemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simcore",
			Subsystem: "scheduler",
			Name:      "systems_skipped_total",
			Help:      "Systems skipped per stage due to their tick interval.",
		}, []string{"stage"}),
		commandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simcore",
			Subsystem: "scheduler",
			Name:      "commands_applied_total",
			Help:      "Deferred commands drained and applied per stage.",
		}, []string{"stage"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simcore",
			Subsystem: "scheduler",
			Name:      "system_errors_total",
			Help:      "System errors observed per stage.",
		}, []string{"stage"}),
	}

	reg.MustRegister(o.duration, o.systemsExecuted, o.systemsSkipped, o.commandsApplied, o.errors)
	return o
}

func (o *PrometheusObserver) StageCompleted(summary ecs.StageSummary) {
	label := stageLabel(summary.StageIndex)
	o.duration.WithLabelValues(label).Observe(summary.Duration.Seconds())
	o.systemsExecuted.WithLabelValues(label).Add(float64(summary.SystemsExecuted))
	o.systemsSkipped.WithLabelValues(label).Add(float64(summary.SystemsSkipped))
	o.commandsApplied.WithLabelValues(label).Add(float64(summary.CommandsApplied))
	if len(summary.Errors) > 0 {
		o.errors.WithLabelValues(label).Add(float64(len(summary.Errors)))
	}
}

func stageLabel(index int) string {
	return strconv.Itoa(index)
}

var _ ecs.SchedulerObserver = (*PrometheusObserver)(nil)
