// Package motion is an example consumer of the engine: a minimal
// velocity integrator that writes Position so cmd/simd has something to
// snapshot and transport. It is driver scaffolding, not a core module —
// a real deployment would register its own domain systems in its place.
package motion

import (
	"context"
	"fmt"
	"math"

	ecs "github.com/hollowforge/simcore"
	"github.com/hollowforge/simcore/pkg/snapshot"
)

// ComponentVelocity is the component type token for Velocity values.
const ComponentVelocity ecs.ComponentType = "simcore.velocity"

// ResourceWorldBounds names the resource slot holding the configured
// simulation bounds. IntegrateSystem reads it, when present, to keep
// entities inside the simulated area instead of drifting unbounded.
const ResourceWorldBounds = "simcore.world_bounds"

// Velocity is a per-entity rate of change applied to Position each tick.
type Velocity struct {
	DX float32
	DY float32
}

// Bounds describes the rectangular region entities are kept within.
// A zero-value or otherwise degenerate Bounds (Max <= Min on either
// axis) is treated as "unbounded" rather than rejected outright.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) valid() bool {
	return b.MaxX > b.MinX && b.MaxY > b.MinY
}

func (b Bounds) clamp(x, y float32) (float32, float32) {
	if x < float32(b.MinX) {
		x = float32(b.MinX)
	} else if x > float32(b.MaxX) {
		x = float32(b.MaxX)
	}
	if y < float32(b.MinY) {
		y = float32(b.MinY)
	} else if y > float32(b.MaxY) {
		y = float32(b.MaxY)
	}
	return x, y
}

// RegisterComponents registers Velocity against world using strategy.
func RegisterComponents(world *ecs.World, strategy ecs.StorageStrategy) error {
	return world.RegisterComponent(ComponentVelocity, strategy)
}

// IntegrateSystem advances every entity's Position by its Velocity
// scaled by the tick's time delta, then clamps the result to
// ResourceWorldBounds when one has been published.
type IntegrateSystem struct{}

func (IntegrateSystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{
		Name:      "integrate_motion",
		Reads:     []ecs.ComponentType{ComponentVelocity},
		Writes:    []ecs.ComponentType{snapshot.ComponentPosition},
		Resources: []ecs.ResourceAccess{{Name: ResourceWorldBounds, Mode: ecs.AccessModeRead}},
	}
}

func (IntegrateSystem) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	world := exec.World()
	dt := float32(exec.TimeDelta().Seconds())

	velocities, err := world.ViewComponent(ComponentVelocity)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	positions, err := world.ViewComponent(snapshot.ComponentPosition)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	writable, ok := positions.(ecs.ComponentStore)
	if !ok {
		return ecs.SystemResult{Err: fmt.Errorf("motion: position view is not writable")}
	}

	var bounds Bounds
	hasBounds := false
	if raw, ok := world.Resources().Get(ResourceWorldBounds); ok {
		if b, ok := raw.(Bounds); ok && b.valid() {
			bounds, hasBounds = b, true
		}
	}

	velocities.Iterate(func(id ecs.EntityID, value any) bool {
		vel, ok := value.(Velocity)
		if !ok {
			return true
		}
		pos := snapshot.Position{}
		if existing, ok := positions.Get(id); ok {
			pos, _ = existing.(snapshot.Position)
		}
		pos.X += vel.DX * dt
		pos.Y += vel.DY * dt
		if hasBounds {
			pos.X, pos.Y = bounds.clamp(pos.X, pos.Y)
		}
		_ = writable.Set(id, pos)
		return true
	})

	return ecs.SystemResult{}
}

var _ ecs.System = IntegrateSystem{}

// ComponentFaction is the component type token for Faction values.
const ComponentFaction ecs.ComponentType = "simcore.faction"

// Faction buckets an entity by speed band. Unlike Position or Velocity,
// which take a distinct value per entity, the whole population only
// ever takes one of a handful of Faction values — exactly the
// value-deduplication case storage.NewSharedStrategy targets.
type Faction string

const (
	FactionSlow Faction = "slow"
	FactionFast Faction = "fast"
)

// classifySpeedThreshold separates FactionSlow from FactionFast.
const classifySpeedThreshold = 5.0

// RegisterFaction registers Faction against world using strategy.
func RegisterFaction(world *ecs.World, strategy ecs.StorageStrategy) error {
	return world.RegisterComponent(ComponentFaction, strategy)
}

// ClassifySystem buckets each entity into a Faction based on its
// current speed.
type ClassifySystem struct{}

func (ClassifySystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{
		Name:   "classify_faction",
		Reads:  []ecs.ComponentType{ComponentVelocity},
		Writes: []ecs.ComponentType{ComponentFaction},
	}
}

func (ClassifySystem) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	world := exec.World()

	velocities, err := world.ViewComponent(ComponentVelocity)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	factions, err := world.ViewComponent(ComponentFaction)
	if err != nil {
		return ecs.SystemResult{Err: err}
	}
	writable, ok := factions.(ecs.ComponentStore)
	if !ok {
		return ecs.SystemResult{Err: fmt.Errorf("motion: faction view is not writable")}
	}

	velocities.Iterate(func(id ecs.EntityID, value any) bool {
		vel, ok := value.(Velocity)
		if !ok {
			return true
		}
		speed := math.Hypot(float64(vel.DX), float64(vel.DY))
		faction := FactionSlow
		if speed >= classifySpeedThreshold {
			faction = FactionFast
		}
		_ = writable.Set(id, faction)
		return true
	})

	return ecs.SystemResult{}
}

var _ ecs.System = ClassifySystem{}
