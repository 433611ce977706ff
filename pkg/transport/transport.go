// Package transport delivers serialized snapshot payloads to external
// consumers: a file, connected websocket peers, or nowhere at all.
package transport

import (
	"context"
	"fmt"
)

// Sender delivers an encoded payload to its destination.
type Sender interface {
	Kind() string
	Start(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Stop(ctx context.Context) error
}

// Kind identifies a sender implementation by configuration name.
type Kind string

const (
	KindFile      Kind = "file"
	KindBroadcast Kind = "broadcast"
	KindNull      Kind = "null"
)

// NullSender discards every payload. Useful for measuring scheduler and
// serialization overhead in isolation from I/O.
type NullSender struct{}

func (NullSender) Kind() string { return string(KindNull) }

func (NullSender) Start(context.Context) error { return nil }

func (NullSender) Send(context.Context, []byte) error { return nil }

func (NullSender) Stop(context.Context) error { return nil }

var (
	_ Sender = NullSender{}
	_ Sender = (*FileSender)(nil)
	_ Sender = (*BroadcastSender)(nil)
)

func errUnknownKind(kind Kind) error {
	return fmt.Errorf("transport: unknown sender kind %q", kind)
}
