package ecs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hollowforge/simcore"
)

type testSystem struct {
	name      string
	desc      ecs.SystemDescriptor
	executed  *[]string
	deferCmd  func(ctx ecs.ExecutionContext)
	mu        sync.Mutex
	failLimit int
	failCount int
}

func (s *testSystem) Descriptor() ecs.SystemDescriptor {
	if s.desc.Name == "" {
		s.desc.Name = s.name
	}
	return s.desc
}

func (s *testSystem) Run(_ context.Context, ctx ecs.ExecutionContext) ecs.SystemResult {
	if s.deferCmd != nil {
		s.deferCmd(ctx)
	}
	if s.executed != nil {
		s.mu.Lock()
		*s.executed = append(*s.executed, s.name)
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLimit > 0 && s.failCount < s.failLimit {
		s.failCount++
		return ecs.SystemResult{Err: fmt.Errorf("forced failure %s", s.name)}
	}
	return ecs.SystemResult{}
}

type recordingObserver struct {
	mu        sync.Mutex
	summaries []ecs.StageSummary
}

func (o *recordingObserver) StageCompleted(summary ecs.StageSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, summary)
}

func newScheduler(t *testing.T, world *ecs.World) ecs.Scheduler {
	t.Helper()
	scheduler, err := ecs.NewScheduler(world)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return scheduler
}

func TestSchedulerRunsIndependentSystemsInOneStage(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	order := make([]string, 0)
	sysA := &testSystem{name: "A", executed: &order}
	sysB := &testSystem{name: "B", executed: &order}

	if _, err := scheduler.Register(sysA); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if _, err := scheduler.Register(sysB); err != nil {
		t.Fatalf("register B: %v", err)
	}

	stages, err := scheduler.Stages()
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(stages) != 1 || len(stages[0]) != 2 {
		t.Fatalf("expected both systems to land in one stage, got %#v", stages)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected both systems to run, got %#v", order)
	}
}

func TestSchedulerSeparatesConflictingWriters(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	order := make([]string, 0)
	writerA := &testSystem{name: "writerA", executed: &order, desc: ecs.SystemDescriptor{Writes: []ecs.ComponentType{"comp"}}}
	writerB := &testSystem{name: "writerB", executed: &order, desc: ecs.SystemDescriptor{Writes: []ecs.ComponentType{"comp"}}}

	if _, err := scheduler.Register(writerA); err != nil {
		t.Fatalf("register writerA: %v", err)
	}
	if _, err := scheduler.Register(writerB); err != nil {
		t.Fatalf("register writerB: %v", err)
	}

	stages, err := scheduler.Stages()
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("expected conflicting writers to land in separate stages, got %#v", stages)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(order) != 2 || order[0] != "writerA" || order[1] != "writerB" {
		t.Fatalf("expected registration-order execution, got %#v", order)
	}
}

func TestSchedulerAppliesDeferredCommands(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	var created ecs.EntityID
	sys := &testSystem{
		name: "creator",
		deferCmd: func(ctx ecs.ExecutionContext) {
			ctx.Defer(ecs.NewCreateEntityCommand(&created))
		},
	}

	if _, err := scheduler.Register(sys); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if created.IsZero() {
		t.Fatalf("expected deferred command to populate entity")
	}
	if !world.Registry().IsAlive(created) {
		t.Fatalf("expected entity to exist after tick")
	}
}

func TestSchedulerRunsStageAcrossAsyncWorkers(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)
	scheduler.WithAsyncWorkers(2)

	order := make([]string, 0)
	sysA := &testSystem{name: "A", executed: &order}
	sysB := &testSystem{name: "B", executed: &order}

	if _, err := scheduler.Register(sysA); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if _, err := scheduler.Register(sysB); err != nil {
		t.Fatalf("register B: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected both systems to execute, got %#v", order)
	}
}

func TestSchedulerHonorsTickInterval(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	executions := make([]string, 0)
	sys := &testSystem{
		name:     "periodic",
		desc:     ecs.SystemDescriptor{RunEvery: ecs.TickInterval{Every: 2}},
		executed: &executions,
	}

	if _, err := scheduler.Register(sys); err != nil {
		t.Fatalf("register: %v", err)
	}

	runCounts := 0
	for i := 0; i < 4; i++ {
		if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		runCounts += len(executions)
		executions = executions[:0]
	}

	if runCounts != 2 {
		t.Fatalf("expected system to run twice in four ticks, got %d", runCounts)
	}
}

func TestSchedulerRejectsDuplicateSystemNames(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	if _, err := scheduler.Register(&testSystem{name: "dup"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := scheduler.Register(&testSystem{name: "dup"}); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	} else if !errors.Is(err, ecs.ErrDuplicateSystem) {
		t.Fatalf("expected ErrDuplicateSystem, got %v", err)
	}
}

func TestSchedulerObserverReceivesStageSummary(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	observer := &recordingObserver{}
	scheduler.WithInstrumentation(ecs.InstrumentationConfig{Observer: observer})

	if _, err := scheduler.Register(&testSystem{name: "observed"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(observer.summaries))
	}
	summary := observer.summaries[0]
	if summary.SystemsExecuted != 1 {
		t.Fatalf("expected 1 executed system, got %d", summary.SystemsExecuted)
	}
	if summary.Tick != 0 {
		t.Fatalf("expected first tick to report Tick=0, got %d", summary.Tick)
	}
}

func TestSchedulerRetryPolicyRerunsOnce(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	failing := &testSystem{name: "flaky", failLimit: 1}
	if _, err := scheduler.Register(failing, ecs.WithErrorPolicy(ecs.ErrorPolicyRetry)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if failing.failCount != 1 {
		t.Fatalf("expected exactly one failure before the retry succeeded, got %d", failing.failCount)
	}
}

func TestSchedulerContinuePolicySwallowsError(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	order := make([]string, 0)
	failing := &testSystem{name: "broken", failLimit: 1000}
	after := &testSystem{name: "after", executed: &order, desc: ecs.SystemDescriptor{Writes: []ecs.ComponentType{"comp"}}}

	if _, err := scheduler.Register(failing, ecs.WithErrorPolicy(ecs.ErrorPolicyContinue)); err != nil {
		t.Fatalf("register failing: %v", err)
	}
	if _, err := scheduler.Register(after); err != nil {
		t.Fatalf("register after: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected tick to succeed under ErrorPolicyContinue, got %v", err)
	}
}

func TestSchedulerAbortPolicyStopsTheTick(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	failing := &testSystem{name: "fatal", failLimit: 1000}
	if _, err := scheduler.Register(failing); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := scheduler.Tick(context.Background(), time.Millisecond); err == nil {
		t.Fatalf("expected the default Abort policy to surface the system error")
	}
}

func TestSchedulerOrdersMutuallyConflictingPairByRegistration(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	// A writes X and reads Y; B writes Y and reads X. Conflict edges only
	// run from the earlier-registered system to the later one, so the pair
	// forms no cycle: A takes the first stage and B the second.
	a := &testSystem{name: "a", desc: ecs.SystemDescriptor{Writes: []ecs.ComponentType{"x"}, Reads: []ecs.ComponentType{"y"}}}
	b := &testSystem{name: "b", desc: ecs.SystemDescriptor{Writes: []ecs.ComponentType{"y"}, Reads: []ecs.ComponentType{"x"}}}

	if _, err := scheduler.Register(a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := scheduler.Register(b); err != nil {
		t.Fatalf("register b: %v", err)
	}

	stages, err := scheduler.Stages()
	if err != nil {
		t.Fatalf("stages: %v", err)
	}
	if len(stages) != 2 || len(stages[0]) != 1 || stages[0][0] != "a" || len(stages[1]) != 1 || stages[1][0] != "b" {
		t.Fatalf("expected conflicting pair staged as [[a] [b]], got %v", stages)
	}
}

func TestSchedulerRunStepsAdvancesTickIndex(t *testing.T) {
	world := ecs.NewWorld()
	scheduler := newScheduler(t, world)

	if _, err := scheduler.Register(&testSystem{name: "noop"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := scheduler.Run(context.Background(), 3, time.Millisecond); err != nil {
		t.Fatalf("run: %v", err)
	}
	if scheduler.TickIndex() != 3 {
		t.Fatalf("expected TickIndex 3, got %d", scheduler.TickIndex())
	}
}
