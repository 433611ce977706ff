package transport

import (
	"context"
	"fmt"

	ecs "github.com/hollowforge/simcore"
	"github.com/hollowforge/simcore/pkg/serialize"
	"github.com/hollowforge/simcore/pkg/snapshot"
)

// New constructs the sender named by kind.
func New(kind Kind, file FileSenderOptions, broadcast BroadcastOptions) (Sender, error) {
	switch kind {
	case KindFile:
		return NewFileSender(file), nil
	case KindBroadcast:
		return NewBroadcastSender(broadcast), nil
	case KindNull:
		return NullSender{}, nil
	default:
		return nil, errUnknownKind(kind)
	}
}

// DriverSystem is the terminal system that consumes the published
// Snapshot resource, serializes it, and hands the result to a Sender.
// It runs at most once every UpdateFrequency ticks.
type DriverSystem struct {
	serializer serialize.Serializer
	sender     Sender
	interval   ecs.TickInterval
}

// NewDriverSystem builds the transport-driver system.
func NewDriverSystem(serializer serialize.Serializer, sender Sender, interval ecs.TickInterval) *DriverSystem {
	return &DriverSystem{serializer: serializer, sender: sender, interval: interval}
}

func (d *DriverSystem) Descriptor() ecs.SystemDescriptor {
	return ecs.SystemDescriptor{
		Name:     "transport_driver",
		RunEvery: d.interval,
		Resources: []ecs.ResourceAccess{
			{Name: snapshot.ResourceSnapshot, Mode: ecs.AccessModeRead},
		},
	}
}

func (d *DriverSystem) Run(ctx context.Context, exec ecs.ExecutionContext) ecs.SystemResult {
	world := exec.World()
	raw, ok := world.Resources().Get(snapshot.ResourceSnapshot)
	if !ok {
		return ecs.SystemResult{Skipped: true}
	}
	snap, ok := raw.(snapshot.Snapshot)
	if !ok {
		return ecs.SystemResult{Err: fmt.Errorf("transport: unexpected snapshot resource type %T", raw)}
	}

	payload, err := d.serializer.Serialize(snap)
	if err != nil {
		return ecs.SystemResult{Err: fmt.Errorf("%w: %v", ecs.ErrSerialization, err)}
	}

	if err := d.sender.Send(ctx, payload); err != nil {
		return ecs.SystemResult{Err: fmt.Errorf("%w: %v", ecs.ErrTransport, err)}
	}

	return ecs.SystemResult{}
}

var _ ecs.System = (*DriverSystem)(nil)
