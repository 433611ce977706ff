// Package snapshot holds the only domain-adjacent component the core
// engine defines: position. It exists purely so the snapshot/transport
// pipeline has something concrete to copy and serialize; it carries no
// gameplay rules.
package snapshot

import (
	"context"
	"time"

	ecs "github.com/hollowforge/simcore"
)

// ComponentPosition is the component type token under which Position
// values are stored.
const ComponentPosition ecs.ComponentType = "simcore.position"

// ResourceSnapshot names the resource slot holding the most recently
// published Snapshot.
const ResourceSnapshot = "simcore.snapshot"

// ResourceSelection names the resource slot holding the active
// Selection policy.
const ResourceSelection = "simcore.snapshot.selection"

// Position is the only component the engine itself defines: a 2D
// location backing the wire format's x/y fields.
type Position struct {
	X float32
	Y float32
}

// EntityRecord is one entity's contribution to a published Snapshot.
type EntityRecord struct {
	EntityID uint32
	X        float32
	Y        float32
}

// Snapshot is the plain, serializer-agnostic payload the snapshot system
// publishes each tick it runs. Domain carries any additional named
// collections a Selection's extenders choose to attach; the core
// transport path never looks inside it.
type Snapshot struct {
	FrameNumber uint64
	Timestamp   time.Time
	Records     []EntityRecord
	Domain      map[string]any
}

// DomainExtender lets a caller attach additional named collections to a
// Snapshot beyond the built-in position records, resolving the selection
// hook the design notes call for.
type DomainExtender func(world *ecs.World) (name string, value any, ok bool)

// Selection lists the DomainExtenders whose collections the snapshot
// system attaches to the published Snapshot. It does not filter entities
// or component types: the position records always cover every entity
// carrying Position, and the zero value attaches no domain collections.
type Selection struct {
	Extenders []DomainExtender
}

// RegisterComponents registers the Position component against the given
// world using the given storage strategy, as expected by every system in
// this package.
func RegisterComponents(world *ecs.World, strategy ecs.StorageStrategy) error {
	return world.RegisterComponent(ComponentPosition, strategy)
}

// System is the terminal, read-only system that copies Position data
// into a fresh Snapshot and publishes it as a resource for the
// transport-driver system to consume. It never defers commands and
// never writes components, so it lands in a later stage than every
// Position writer registered before it.
type System struct {
	interval ecs.TickInterval
}

// NewSystem constructs the snapshot system. interval controls how often
// it runs relative to the tick counter; zero means every tick.
func NewSystem(interval ecs.TickInterval) *System {
	return &System{interval: interval}
}

func (s *System) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{
		Name:     "snapshot",
		Reads:    []ecs.ComponentType{ComponentPosition},
		RunEvery: s.interval,
		Resources: []ecs.ResourceAccess{
			{Name: ResourceSelection, Mode: ecs.AccessModeRead},
			{Name: ResourceSnapshot, Mode: ecs.AccessModeWrite},
		},
	}
}

func (s *System) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	world := exec.World()

	view, err := world.ViewComponent(ComponentPosition)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}

	records := make([]EntityRecord, 0, view.Len())
	view.Iterate(func(id ecs.EntityID, value any) bool {
		pos, ok := value.(Position)
		if !ok {
			return true
		}
		records = append(records, EntityRecord{
			EntityID: id.Index(),
			X:        pos.X,
			Y:        pos.Y,
		})
		return true
	})

	snap := Snapshot{
		FrameNumber: exec.TickIndex(),
		Timestamp:   time.Now(),
		Records:     records,
	}

	if raw, ok := world.Resources().Get(ResourceSelection); ok {
		if selection, ok := raw.(Selection); ok {
			for _, extend := range selection.Extenders {
				if extend == nil {
					continue
				}
				if name, value, ok := extend(world); ok {
					if snap.Domain == nil {
						snap.Domain = make(map[string]any)
					}
					snap.Domain[name] = value
				}
			}
		}
	}

	world.Resources().Set(ResourceSnapshot, snap)
	return ecs.SystemResult{}
}

var _ ecs.System = (*System)(nil)
