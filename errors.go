package ecs

import "errors"

var (
	// ErrComponentAlreadyRegistered indicates an attempt to register the same component twice.
	ErrComponentAlreadyRegistered = errors.New("ecs: component already registered")
	// ErrComponentNotRegistered signals lookup on an unknown component type.
	ErrComponentNotRegistered = errors.New("ecs: component not registered")
	// ErrNilStorageStrategy is returned when storage registration receives a nil strategy.
	ErrNilStorageStrategy = errors.New("ecs: nil storage strategy")
	// ErrNilComponentStore is returned when a strategy produces a nil store.
	ErrNilComponentStore = errors.New("ecs: strategy returned nil store")
	// ErrWorkerPoolClosed indicates jobs cannot be submitted because the pool closed.
	ErrWorkerPoolClosed = errors.New("ecs: worker pool closed")
	// ErrDuplicateSystem indicates a system name was registered twice.
	ErrDuplicateSystem = errors.New("ecs: system already registered")
	// ErrCycleDetected indicates the scheduler could not stage all registered systems.
	ErrCycleDetected = errors.New("ecs: cycle detected while staging systems")
	// ErrAccessConflict indicates a runtime borrow contradicted a system's declared access.
	ErrAccessConflict = errors.New("ecs: borrow contradicts declared access")
	// ErrMissing indicates a requested entity, component, or resource does not exist.
	ErrMissing = errors.New("ecs: missing entity, component, or resource")
	// ErrSerialization indicates a serializer failed to encode a snapshot.
	ErrSerialization = errors.New("ecs: serialization failed")
	// ErrTransport indicates a sender failed to deliver a payload.
	ErrTransport = errors.New("ecs: transport failed")
)
