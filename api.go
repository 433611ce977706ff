package ecs

import (
	"context"
	"io"
	"time"
)

// Scheduler derives execution stages from registered systems' declared
// access and drives per-tick parallel execution within each stage.
type Scheduler interface {
	// Register adds a system. Registration order is the tiebreaker used
	// to build the conflict graph; it is not the execution order.
	Register(sys System, opts ...RegisterOption) (SystemHandle, error)
	// Tick advances the simulation by one frame, running every computed
	// stage in order and draining deferred commands between stages.
	Tick(ctx context.Context, dt time.Duration) error
	// Run calls Tick repeatedly. A positive steps runs exactly that many
	// ticks; steps <= 0 runs until ctx is cancelled or a tick errors.
	Run(ctx context.Context, steps int, dt time.Duration) error
	// RunWithTrace wraps fn with runtime/trace instrumentation when
	// tracing is enabled via WithInstrumentation.
	RunWithTrace(ctx context.Context, w io.Writer, fn func() error) error
	// Stages returns the currently computed stage plan as system names,
	// recomputing it if the registered set has changed since the last
	// call. Returns ErrCycleDetected if no valid plan exists.
	Stages() ([][]string, error)
	// TickIndex reports the number of ticks completed so far.
	TickIndex() uint64
	// WithInstrumentation attaches logging/metrics observers.
	WithInstrumentation(cfg InstrumentationConfig) Scheduler
	// WithAsyncWorkers sizes the shared worker pool used for in-stage
	// parallel execution. A size of zero runs stages sequentially on the
	// calling goroutine instead of fanning out to a pool.
	WithAsyncWorkers(count int) Scheduler
}

// RegisterOption customizes a single system's registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	errorPolicy ErrorPolicy
}

// WithErrorPolicy overrides the default Abort policy for one system.
func WithErrorPolicy(policy ErrorPolicy) RegisterOption {
	return func(o *registerOptions) { o.errorPolicy = policy }
}

// SystemHandle references a registered system for diagnostics.
type SystemHandle interface {
	Name() string
}

// ErrorPolicy defines how the scheduler responds to a system failure.
type ErrorPolicy uint8

const (
	ErrorPolicyAbort ErrorPolicy = iota
	ErrorPolicyContinue
	ErrorPolicyRetry
)

// TickInterval controls how frequently a system runs; Every == 0 means
// every tick.
type TickInterval struct {
	Every  uint32
	Offset uint32
}

// InstrumentationConfig configures logging, tracing, and metrics sinks.
type InstrumentationConfig struct {
	EnableTrace bool
	Observer    SchedulerObserver
	Logger      Logger
}

// SchedulerObserver receives a summary after each stage completes.
type SchedulerObserver interface {
	StageCompleted(summary StageSummary)
}

// StageSummary captures execution metadata for one computed stage.
type StageSummary struct {
	StageIndex      int
	Tick            uint64
	Duration        time.Duration
	SystemsTotal    int
	SystemsExecuted int
	SystemsSkipped  int
	CommandsApplied int
	Errors          map[string]error
	ComponentReads  []ComponentType
	ComponentWrites []ComponentType
	ResourceReads   []string
	ResourceWrites  []string
}

// System represents executable logic with a static access declaration.
type System interface {
	Descriptor() SystemDescriptor
	Run(ctx context.Context, exec ExecutionContext) SystemResult
}

// SystemDescriptor describes resource usage and metadata for a system.
type SystemDescriptor struct {
	Name      string
	Reads     []ComponentType
	Writes    []ComponentType
	Resources []ResourceAccess
	RunEvery  TickInterval
}

// SystemResult indicates how a system behaved during execution.
type SystemResult struct {
	Skipped bool
	Err     error
}

// ExecutionContext supplies a system with scoped access to the world.
type ExecutionContext interface {
	World() *World
	TimeDelta() time.Duration
	TickIndex() uint64
	Logger() Logger
	Defer(cmd Command)
}

// World encapsulates entity/component storage and resources.
type World struct {
	registry  *EntityRegistry
	storage   StorageProvider
	resources ResourceContainer
}

// StorageProvider manages component storage backends.
type StorageProvider interface {
	RegisterComponent(ComponentType, StorageStrategy) error
	View(ComponentType) (ComponentView, error)
	Apply(*World, []Command) error
	RegisteredTypes() []ComponentType
	// RemoveEntity clears id's row from every registered component store.
	// Called when an entity is destroyed so a later Create that reuses
	// its index never observes a stale component value (spec invariant
	// I1).
	RemoveEntity(EntityID)
}

// StorageStrategy describes how a component type is stored internally.
type StorageStrategy interface {
	Name() string
	NewStore(ComponentType) ComponentStore
}

// ComponentType identifies a component storage bucket.
type ComponentType string

// ResourceAccess declares mutable or immutable access to a resource.
type ResourceAccess struct {
	Name string
	Mode AccessMode
}

// AccessMode indicates read or write intent when using a resource.
type AccessMode uint8

const (
	AccessModeRead AccessMode = iota
	AccessModeWrite
)

// ComponentStore permits read/write access to component instances.
// Implementations guard their contents with a per-column lock (spec
// invariants I2/I3): each method holds that lock only for its own
// duration, never across a system invocation.
type ComponentStore interface {
	ComponentView
	Set(EntityID, any) error
	Remove(EntityID) bool
	Clear()
}

// ComponentView exposes read-only iteration over stored components.
type ComponentView interface {
	ComponentType() ComponentType
	Len() int
	Has(EntityID) bool
	Get(EntityID) (any, bool)
	Iterate(func(EntityID, any) bool)
}

// Command represents a deferred mutation applied outside system execution.
type Command interface {
	Apply(world *World) error
}

// Logger captures structured log output from systems.
type Logger interface {
	With(key string, value any) Logger
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ResourceContainer holds shared resources accessible to systems.
type ResourceContainer interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Delete(name string)
	Range(func(string, any) bool)
}

// Tracer coordinates tracing spans for observability tooling.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, TraceSpan)
}

// TraceSpan represents an active tracing region.
type TraceSpan interface {
	End()
}
