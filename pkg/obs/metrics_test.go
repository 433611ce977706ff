package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	ecs "github.com/hollowforge/simcore"
)

func TestPrometheusObserverRecordsStageSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer := NewPrometheusObserver(reg)

	observer.StageCompleted(ecs.StageSummary{
		StageIndex:      0,
		Duration:        5 * time.Millisecond,
		SystemsExecuted: 2,
		SystemsSkipped:  1,
		Errors:          map[string]error{"sys": errTest{}},
	})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	if _, ok := byName["simcore_scheduler_stage_duration_seconds"]; !ok {
		t.Fatalf("expected stage duration histogram to be registered")
	}
	executed, ok := byName["simcore_scheduler_systems_executed_total"]
	if !ok {
		t.Fatalf("expected systems executed counter to be registered")
	}
	if got := executed.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("systems_executed_total = %v, want 2", got)
	}
	errs, ok := byName["simcore_scheduler_system_errors_total"]
	if !ok {
		t.Fatalf("expected system errors counter to be registered")
	}
	if got := errs.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("system_errors_total = %v, want 1", got)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
