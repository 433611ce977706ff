package obs

import (
	"time"

	ecs "github.com/hollowforge/simcore"
)

// PerformanceLogger emits one structured log line per stage on ticks
// selected by Every, matching setup's log_frequency option (spec.md
// §6): Every == 0 logs every tick, Every == N logs only ticks that are
// a multiple of N. Callers construct one only when log_frequency is
// present in the config; an absent option means no PerformanceLogger
// is ever wired, so nothing is logged.
type PerformanceLogger struct {
	logger ecs.Logger
	every  uint32
}

// NewPerformanceLogger builds a PerformanceLogger that logs through
// logger at the given tick frequency.
func NewPerformanceLogger(logger ecs.Logger, every uint32) *PerformanceLogger {
	return &PerformanceLogger{logger: logger, every: every}
}

func (p *PerformanceLogger) StageCompleted(summary ecs.StageSummary) {
	if p.every > 0 && summary.Tick%uint64(p.every) != 0 {
		return
	}
	p.logger.Info("tick performance",
		"tick", summary.Tick,
		"stage", summary.StageIndex,
		"duration_ms", float64(summary.Duration)/float64(time.Millisecond),
		"systems_executed", summary.SystemsExecuted,
		"systems_skipped", summary.SystemsSkipped,
		"commands_applied", summary.CommandsApplied,
	)
}

var _ ecs.SchedulerObserver = (*PerformanceLogger)(nil)

// MultiObserver fans a single StageCompleted call out to every observer
// it wraps, in order. cmd/simd uses it to combine the Prometheus
// observer with an optional PerformanceLogger under one
// ecs.InstrumentationConfig.Observer value.
type MultiObserver []ecs.SchedulerObserver

func (m MultiObserver) StageCompleted(summary ecs.StageSummary) {
	for _, o := range m {
		if o != nil {
			o.StageCompleted(summary)
		}
	}
}

var _ ecs.SchedulerObserver = MultiObserver(nil)
