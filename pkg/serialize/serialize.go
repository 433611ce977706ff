// Package serialize turns a snapshot.Snapshot into bytes ready for a
// transport.Sender, in one of the wire formats the external interface
// contract defines.
package serialize

import (
	"fmt"

	"github.com/hollowforge/simcore/pkg/snapshot"
)

// Serializer encodes a Snapshot into a transport-ready byte payload.
type Serializer interface {
	Kind() string
	Serialize(snap snapshot.Snapshot) ([]byte, error)
}

// Kind identifies a serializer implementation by configuration name.
type Kind string

const (
	KindText      Kind = "text"
	KindBinary    Kind = "binary"
	KindOptimized Kind = "optimized-binary"
	KindNull      Kind = "null"
)

// New constructs the serializer named by kind. opts configures the
// optimized-binary serializer's delta and parallel-chunking behavior;
// it is ignored by the other kinds.
func New(kind Kind, opts OptimizedOptions) (Serializer, error) {
	switch kind {
	case KindText:
		return TextSerializer{}, nil
	case KindBinary:
		return BinarySerializer{}, nil
	case KindOptimized:
		return NewOptimizedSerializer(opts), nil
	case KindNull:
		return NullSerializer{}, nil
	default:
		return nil, fmt.Errorf("serialize: unknown kind %q", kind)
	}
}

// NullSerializer discards the snapshot, returning an empty payload. It
// exists for benchmarking the scheduler and pipeline without transport
// or encoding overhead.
type NullSerializer struct{}

func (NullSerializer) Kind() string { return string(KindNull) }

func (NullSerializer) Serialize(snapshot.Snapshot) ([]byte, error) {
	return nil, nil
}

var (
	_ Serializer = TextSerializer{}
	_ Serializer = BinarySerializer{}
	_ Serializer = NullSerializer{}
	_ Serializer = (*OptimizedSerializer)(nil)
)
