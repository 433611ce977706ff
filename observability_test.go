package ecs

import (
	"strings"
	"testing"
	"time"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) With(key string, value any) Logger { return l }

func (l *recordingLogger) Info(msg string, args ...any) {
	l.lines = append(l.lines, msg)
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.lines = append(l.lines, "ERROR:"+msg)
}

func TestLoggingObserverKeyValueFormat(t *testing.T) {
	logger := &recordingLogger{}
	observer := newLoggingObserver(logger, ObservationLogFormatKeyValue)

	observer.StageCompleted(StageSummary{
		StageIndex:      1,
		Tick:            42,
		Duration:        5 * time.Millisecond,
		SystemsTotal:    2,
		SystemsExecuted: 2,
		ComponentWrites: []ComponentType{"position"},
	})

	if len(logger.lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(logger.lines))
	}
	if logger.lines[0] != "stage summary" {
		t.Fatalf("unexpected message: %q", logger.lines[0])
	}
}

func TestLoggingObserverJSONFormat(t *testing.T) {
	logger := &recordingLogger{}
	observer := newLoggingObserver(logger, ObservationLogFormatJSON)

	observer.StageCompleted(StageSummary{StageIndex: 0, Tick: 1})

	if len(logger.lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(logger.lines))
	}
	if !strings.Contains(logger.lines[0], "\"stage_index\":0") {
		t.Fatalf("expected JSON payload, got %q", logger.lines[0])
	}
}

func TestLoggingObserverNilLoggerIsNoop(t *testing.T) {
	observer := newLoggingObserver(nil, ObservationLogFormatJSON)
	// Must not panic.
	observer.StageCompleted(StageSummary{})
}

func TestCompositeObserverFansOutToEveryObserver(t *testing.T) {
	var calls []string
	a := observerFunc(func(StageSummary) { calls = append(calls, "a") })
	b := observerFunc(func(StageSummary) { calls = append(calls, "b") })

	composite := compositeObserver{observers: []SchedulerObserver{a, b}}
	composite.StageCompleted(StageSummary{})

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected both observers invoked in order, got %v", calls)
	}
}

func TestBuildObserverChainCombinesCallerObserverAndLogger(t *testing.T) {
	logger := &recordingLogger{}
	var customCalled bool
	custom := observerFunc(func(StageSummary) { customCalled = true })

	chain := buildObserverChain(logger, InstrumentationConfig{Observer: custom})
	chain.StageCompleted(StageSummary{})

	if !customCalled {
		t.Fatalf("expected the caller-supplied observer to run")
	}
	if len(logger.lines) != 1 {
		t.Fatalf("expected the logging observer to also run")
	}
}

func TestBuildObserverChainWithNoopLoggerSkipsLogging(t *testing.T) {
	chain := buildObserverChain(noopLogger{}, InstrumentationConfig{})
	if _, ok := chain.(noopObserver); !ok {
		t.Fatalf("expected noopObserver when no real logger or observer is configured")
	}
}

type observerFunc func(StageSummary)

func (f observerFunc) StageCompleted(summary StageSummary) { f(summary) }
