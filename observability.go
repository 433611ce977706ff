package ecs

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

type compositeObserver struct {
	observers []SchedulerObserver
}

func (c compositeObserver) StageCompleted(summary StageSummary) {
	for _, observer := range c.observers {
		observer.StageCompleted(summary)
	}
}

// ObservationLogFormat selects how the logging observer renders a stage
// summary.
type ObservationLogFormat uint8

const (
	ObservationLogFormatJSON ObservationLogFormat = iota
	ObservationLogFormatKeyValue
)

type loggingObserver struct {
	logger Logger
	format ObservationLogFormat
}

func newLoggingObserver(logger Logger, format ObservationLogFormat) SchedulerObserver {
	if logger == nil {
		return noopObserver{}
	}
	return loggingObserver{logger: logger, format: format}
}

func (o loggingObserver) StageCompleted(summary StageSummary) {
	switch o.format {
	case ObservationLogFormatKeyValue:
		o.logKeyValue(summary)
	default:
		o.logJSON(summary)
	}
}

func (o loggingObserver) logJSON(summary StageSummary) {
	payload := map[string]any{
		"stage_index":      summary.StageIndex,
		"tick":             summary.Tick,
		"duration_ms":      float64(summary.Duration) / float64(time.Millisecond),
		"systems_total":    summary.SystemsTotal,
		"systems_executed": summary.SystemsExecuted,
		"systems_skipped":  summary.SystemsSkipped,
		"commands_applied": summary.CommandsApplied,
		"component_reads":  summary.ComponentReads,
		"component_writes": summary.ComponentWrites,
		"resource_reads":   summary.ResourceReads,
		"resource_writes":  summary.ResourceWrites,
	}
	if len(summary.Errors) > 0 {
		errs := make(map[string]string, len(summary.Errors))
		for name, err := range summary.Errors {
			errs[name] = err.Error()
		}
		payload["errors"] = errs
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.With("stage", summary.StageIndex).Error("stage summary marshal error", "err", err)
		return
	}
	o.logger.Info(string(data))
}

func (o loggingObserver) logKeyValue(summary StageSummary) {
	builder := o.logger.With("stage", summary.StageIndex)
	args := []any{
		"tick", summary.Tick,
		"duration", summary.Duration,
		"systems_total", summary.SystemsTotal,
		"systems_executed", summary.SystemsExecuted,
		"systems_skipped", summary.SystemsSkipped,
		"commands_applied", summary.CommandsApplied,
		"component_reads", strings.Join(convertComponentTypes(summary.ComponentReads), ","),
		"component_writes", strings.Join(convertComponentTypes(summary.ComponentWrites), ","),
		"resource_reads", strings.Join(summary.ResourceReads, ","),
		"resource_writes", strings.Join(summary.ResourceWrites, ","),
	}
	if len(summary.Errors) > 0 {
		names := make([]string, 0, len(summary.Errors))
		for name := range summary.Errors {
			names = append(names, name)
		}
		sort.Strings(names)
		args = append(args, "errors", strings.Join(names, ","))
	}
	builder.Info("stage summary", args...)
}

func convertComponentTypes(types []ComponentType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// buildObserverChain assembles the observers active for a scheduler: any
// caller-supplied observer plus a structured-logging observer whenever a
// logger is configured. Real metrics backends (Prometheus) attach by
// passing a SchedulerObserver implementation as cfg.Observer rather than
// through a built-in toggle, since the collector itself needs a registry
// the core package has no business owning.
func buildObserverChain(logger Logger, cfg InstrumentationConfig) SchedulerObserver {
	var observers []SchedulerObserver

	if cfg.Observer != nil {
		observers = append(observers, cfg.Observer)
	}

	if logger != nil {
		if _, isNoop := logger.(noopLogger); !isNoop {
			observers = append(observers, newLoggingObserver(logger, ObservationLogFormatKeyValue))
		}
	}

	if len(observers) == 0 {
		return noopObserver{}
	}
	if len(observers) == 1 {
		return observers[0]
	}
	return compositeObserver{observers: observers}
}
