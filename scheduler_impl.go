package ecs

import (
	"context"
	"fmt"
	"io"
	"runtime/trace"
	"sort"
	"sync"
	"time"
)

// NewScheduler constructs a scheduler bound to the provided world.
func NewScheduler(world *World) (Scheduler, error) {
	if world == nil {
		world = NewWorld()
	}
	s := &basicScheduler{
		world:      world,
		states:     make(map[string]*systemState),
		names:      make([]string, 0),
		pool:       NewCommandBufferPool(),
		logger:     noopLogger{},
		tracer:     noopTracer{},
		observer:   noopObserver{},
		stageDirty: true,
	}
	s.applyInstrumentation(InstrumentationConfig{})
	return s, nil
}

type basicScheduler struct {
	mu         sync.RWMutex
	world      *World
	states     map[string]*systemState
	names      []string
	stages     [][]*systemState
	stageDirty bool

	pool      *CommandBufferPool
	asyncPool *workerPool
	workers   int

	logger          Logger
	tracer          Tracer
	instrumentation InstrumentationConfig
	observer        SchedulerObserver

	tickIndex uint64
}

type systemState struct {
	name           string
	sys            System
	desc           SystemDescriptor
	policy         ErrorPolicy
	lastRun        uint64
	readSet        map[ComponentType]struct{}
	writeSet       map[ComponentType]struct{}
	resourceReads  map[string]struct{}
	resourceWrites map[string]struct{}
}

type systemHandle struct {
	name string
}

func (h systemHandle) Name() string { return h.name }

func (s *basicScheduler) Register(sys System, opts ...RegisterOption) (SystemHandle, error) {
	if sys == nil {
		return nil, fmt.Errorf("ecs: nil system")
	}
	desc := sys.Descriptor()
	name := desc.Name
	if name == "" {
		return nil, fmt.Errorf("ecs: system requires non-empty name")
	}

	options := registerOptions{errorPolicy: ErrorPolicyAbort}
	for _, opt := range opts {
		opt(&options)
	}

	reads := make(map[ComponentType]struct{}, len(desc.Reads))
	for _, c := range desc.Reads {
		reads[c] = struct{}{}
	}
	writes := make(map[ComponentType]struct{}, len(desc.Writes))
	for _, c := range desc.Writes {
		writes[c] = struct{}{}
	}
	resourceReads := make(map[string]struct{})
	resourceWrites := make(map[string]struct{})
	for _, r := range desc.Resources {
		if r.Name == "" {
			continue
		}
		if r.Mode == AccessModeWrite {
			resourceWrites[r.Name] = struct{}{}
		} else {
			resourceReads[r.Name] = struct{}{}
		}
	}

	state := &systemState{
		name:           name,
		sys:            sys,
		desc:           desc,
		policy:         options.errorPolicy,
		readSet:        reads,
		writeSet:       writes,
		resourceReads:  resourceReads,
		resourceWrites: resourceWrites,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.states[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSystem, name)
	}

	s.states[name] = state
	s.names = append(s.names, name)
	s.stageDirty = true

	return systemHandle{name: name}, nil
}

// conflicts reports whether two systems' declared access cannot safely
// run concurrently: any shared component where at least one side writes,
// or any shared resource where at least one side writes.
func conflicts(a, b *systemState) bool {
	for c := range a.writeSet {
		if _, ok := b.readSet[c]; ok {
			return true
		}
		if _, ok := b.writeSet[c]; ok {
			return true
		}
	}
	for c := range a.readSet {
		if _, ok := b.writeSet[c]; ok {
			return true
		}
	}
	for r := range a.resourceWrites {
		if _, ok := b.resourceReads[r]; ok {
			return true
		}
		if _, ok := b.resourceWrites[r]; ok {
			return true
		}
	}
	for r := range a.resourceReads {
		if _, ok := b.resourceWrites[r]; ok {
			return true
		}
	}
	return false
}

// rebuildStages constructs a conflict graph over registered systems (an
// edge i->j for every conflicting pair with i registered before j) and
// partitions it into parallel-safe stages using Kahn's algorithm: each
// stage is the current frontier of systems with no unresolved inbound
// edges, so independent systems collapse into the same stage while
// conflicting ones are pushed apart in registration order.
func (s *basicScheduler) rebuildStages() error {
	names := append([]string(nil), s.names...)

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, n := range names {
		indegree[n] = 0
	}

	for i := 0; i < len(names); i++ {
		a := s.states[names[i]]
		for j := i + 1; j < len(names); j++ {
			b := s.states[names[j]]
			if conflicts(a, b) {
				dependents[a.name] = append(dependents[a.name], b.name)
				indegree[b.name]++
			}
		}
	}

	remaining := len(names)
	var stages [][]*systemState
	for remaining > 0 {
		var frontier []string
		for _, n := range names {
			if indegree[n] == 0 {
				frontier = append(frontier, n)
			}
		}
		if len(frontier) == 0 {
			return ErrCycleDetected
		}
		sort.Strings(frontier)

		stageStates := make([]*systemState, 0, len(frontier))
		for _, n := range frontier {
			stageStates = append(stageStates, s.states[n])
			indegree[n] = -1
			remaining--
		}
		for _, n := range frontier {
			for _, dep := range dependents[n] {
				if indegree[dep] > 0 {
					indegree[dep]--
				}
			}
		}
		stages = append(stages, stageStates)
	}

	s.stages = stages
	s.stageDirty = false
	return nil
}

func (s *basicScheduler) Stages() ([][]string, error) {
	s.mu.Lock()
	if s.stageDirty {
		if err := s.rebuildStages(); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	stages := append([][]*systemState(nil), s.stages...)
	s.mu.Unlock()

	out := make([][]string, len(stages))
	for i, stage := range stages {
		names := make([]string, len(stage))
		for j, st := range stage {
			names[j] = st.name
		}
		out[i] = names
	}
	return out, nil
}

func (s *basicScheduler) applyInstrumentation(cfg InstrumentationConfig) {
	s.instrumentation = cfg
	if cfg.Logger != nil {
		s.logger = cfg.Logger
	}
	s.observer = buildObserverChain(s.logger, cfg)
}

func (s *basicScheduler) WithInstrumentation(cfg InstrumentationConfig) Scheduler {
	s.mu.Lock()
	s.applyInstrumentation(cfg)
	s.mu.Unlock()
	return s
}

func (s *basicScheduler) WithAsyncWorkers(count int) Scheduler {
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	s.workers = count
	if s.asyncPool != nil {
		s.asyncPool.Close()
		s.asyncPool = nil
	}
	if count > 0 {
		s.asyncPool = newWorkerPool(count)
	}
	s.mu.Unlock()
	return s
}

func (s *basicScheduler) Tick(ctx context.Context, dt time.Duration) error {
	s.mu.Lock()
	if s.stageDirty {
		if err := s.rebuildStages(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	stages := append([][]*systemState(nil), s.stages...)
	pool := s.asyncPool
	logger := s.logger
	tracer := s.tracer
	tick := s.tickIndex
	world := s.world
	s.mu.Unlock()

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	for stageIndex, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary, stageErr := s.runStage(ctx, stageIndex, stage, world, dt, tick, buf, logger, tracer, pool)

		// Commands deferred by systems that already returned in this stage
		// must still be applied even when a later system in the same stage
		// failed: spec.md §4.4 propagates a fatal error "after draining
		// commands for the current stage," it never discards them.
		drained := buf.Drain()
		summary.commandsApplied = len(drained)
		if len(drained) > 0 {
			if applyErr := world.ApplyCommands(drained); applyErr != nil {
				s.publishStageSummary(summary)
				if stageErr != nil {
					return stageErr
				}
				return applyErr
			}
		}

		s.publishStageSummary(summary)
		if stageErr != nil {
			return stageErr
		}
	}

	s.mu.Lock()
	for _, stage := range stages {
		for _, st := range stage {
			st.lastRun = tick
		}
	}
	s.tickIndex++
	s.mu.Unlock()
	return nil
}

func (s *basicScheduler) runStage(ctx context.Context, index int, stage []*systemState, world *World, dt time.Duration, tick uint64, buf *CommandBuffer, logger Logger, tracer Tracer, pool *workerPool) (stageRunSummary, error) {
	summary := stageRunSummary{
		index: index,
		tick:  tick,
	}
	for _, st := range stage {
		summary.systemsTotal++
		summary.componentReads = append(summary.componentReads, componentSetToSlice(st.readSet)...)
		summary.componentWrites = append(summary.componentWrites, componentSetToSlice(st.writeSet)...)
		summary.resourceReads = append(summary.resourceReads, stringSetToSlice(st.resourceReads)...)
		summary.resourceWrites = append(summary.resourceWrites, stringSetToSlice(st.resourceWrites)...)
	}

	start := time.Now()

	if pool == nil || len(stage) <= 1 {
		for _, st := range stage {
			skipped, err := s.runOne(ctx, st, world, dt, tick, buf, logger, tracer)
			if err != nil {
				summary.errors = recordError(summary.errors, st.name, err)
				summary.duration = time.Since(start)
				return summary, err
			}
			if skipped {
				summary.systemsSkipped++
			} else {
				summary.systemsExecuted++
			}
		}
		summary.duration = time.Since(start)
		return summary, nil
	}

	handles := make([]*jobHandle, len(stage))
	for i, st := range stage {
		st := st
		// Each concurrent system in the stage gets its own buffer so
		// concurrent Defer calls never race on the same slice; drawn
		// from the shared pool rather than allocated fresh so a stage
		// with many parallel systems doesn't churn one CommandBuffer
		// per system per tick.
		stageBuf := s.pool.Get()
		handles[i] = pool.Submit(ctx, func(jobCtx context.Context) jobResult {
			skipped, err := s.runOne(jobCtx, st, world, dt, tick, stageBuf, logger, tracer)
			drained := stageBuf.Drain()
			s.pool.Put(stageBuf)
			return jobResult{err: err, commands: drained, skipped: skipped}
		})
	}

	var firstErr error
	for i, handle := range handles {
		res := handle.Wait()
		if res.err != nil {
			summary.errors = recordError(summary.errors, stage[i].name, res.err)
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		for _, cmd := range res.commands {
			buf.Push(cmd)
		}
		if res.skipped {
			summary.systemsSkipped++
		} else {
			summary.systemsExecuted++
		}
	}

	summary.duration = time.Since(start)
	return summary, firstErr
}

func (s *basicScheduler) runOne(ctx context.Context, st *systemState, world *World, dt time.Duration, tick uint64, buf *CommandBuffer, logger Logger, tracer Tracer) (skipped bool, err error) {
	if !shouldRunTick(tick, st.desc.RunEvery) {
		return true, nil
	}

	systemLogger := logger.With("system", st.name)
	execCtx := &systemExecutionContext{
		world:    world,
		dt:       dt,
		tick:     tick,
		logger:   systemLogger,
		tracer:   tracer,
		commands: buf,
	}

	snapshot := buf.Snapshot()
	result := st.sys.Run(ctx, execCtx)
	if result.Err != nil {
		if st.policy == ErrorPolicyRetry {
			systemLogger.Error("system failed, retrying", "err", result.Err)
			buf.Restore(snapshot)
			result = st.sys.Run(ctx, execCtx)
		}
	}
	if result.Err != nil {
		buf.Restore(snapshot)
		wrapped := fmt.Errorf("ecs: system %s failed: %w", st.name, result.Err)
		if st.policy == ErrorPolicyContinue {
			systemLogger.Error("system error", "err", wrapped)
			return false, nil
		}
		return false, wrapped
	}
	if result.Skipped {
		return true, nil
	}
	systemLogger.Info("system executed")
	return false, nil
}

func (s *basicScheduler) publishStageSummary(summary stageRunSummary) {
	if s.observer == nil {
		return
	}
	s.observer.StageCompleted(summary.toPublic())
}

type stageRunSummary struct {
	index           int
	tick            uint64
	componentReads  []ComponentType
	componentWrites []ComponentType
	resourceReads   []string
	resourceWrites  []string
	systemsTotal    int
	systemsExecuted int
	systemsSkipped  int
	commandsApplied int
	duration        time.Duration
	errors          map[string]error
}

func (summary stageRunSummary) toPublic() StageSummary {
	return StageSummary{
		StageIndex:      summary.index,
		Tick:            summary.tick,
		Duration:        summary.duration,
		SystemsTotal:    summary.systemsTotal,
		SystemsExecuted: summary.systemsExecuted,
		SystemsSkipped:  summary.systemsSkipped,
		CommandsApplied: summary.commandsApplied,
		Errors:          summary.errors,
		ComponentReads:  dedupeComponents(summary.componentReads),
		ComponentWrites: dedupeComponents(summary.componentWrites),
		ResourceReads:   dedupeStrings(summary.resourceReads),
		ResourceWrites:  dedupeStrings(summary.resourceWrites),
	}
}

func recordError(errs map[string]error, name string, err error) map[string]error {
	if errs == nil {
		errs = make(map[string]error)
	}
	errs[name] = err
	return errs
}

func componentSetToSlice(set map[ComponentType]struct{}) []ComponentType {
	if len(set) == 0 {
		return nil
	}
	out := make([]ComponentType, 0, len(set))
	for comp := range set {
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func stringSetToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for val := range set {
		out = append(out, val)
	}
	sort.Strings(out)
	return out
}

func dedupeComponents(in []ComponentType) []ComponentType {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[ComponentType]struct{}, len(in))
	out := make([]ComponentType, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func shouldRunTick(tick uint64, interval TickInterval) bool {
	every := uint64(interval.Every)
	if every == 0 {
		return true
	}
	offset := uint64(interval.Offset) % every
	return (tick+offset)%every == 0
}

// Run calls Tick repeatedly. A positive steps runs exactly that many
// ticks; steps <= 0 runs until ctx is cancelled or a tick returns an
// error other than context cancellation.
func (s *basicScheduler) Run(ctx context.Context, steps int, dt time.Duration) error {
	if steps > 0 {
		for i := 0; i < steps; i++ {
			if err := s.Tick(ctx, dt); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Tick(ctx, dt); err != nil {
			return err
		}
	}
}

func (s *basicScheduler) RunWithTrace(ctx context.Context, w io.Writer, fn func() error) error {
	if s.instrumentation.EnableTrace && w != nil {
		if err := trace.Start(w); err != nil {
			return err
		}
		defer trace.Stop()
	}
	return fn()
}

func (s *basicScheduler) TickIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickIndex
}

// Internal execution context used during system runs.
type systemExecutionContext struct {
	world    *World
	dt       time.Duration
	tick     uint64
	logger   Logger
	tracer   Tracer
	commands *CommandBuffer
}

func (c *systemExecutionContext) World() *World { return c.world }

func (c *systemExecutionContext) TimeDelta() time.Duration { return c.dt }

func (c *systemExecutionContext) TickIndex() uint64 { return c.tick }

func (c *systemExecutionContext) Logger() Logger { return c.logger }

func (c *systemExecutionContext) Defer(cmd Command) { c.commands.Push(cmd) }

// noopLogger is used until a real logger is supplied.
type noopLogger struct{}

func (noopLogger) With(string, any) Logger { return noopLogger{} }
func (noopLogger) Info(string, ...any)     {}
func (noopLogger) Error(string, ...any)    {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, name string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End() {}

type noopObserver struct{}

func (noopObserver) StageCompleted(StageSummary) {}

var _ Scheduler = (*basicScheduler)(nil)
