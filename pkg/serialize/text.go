package serialize

import (
	"fmt"
	"strings"

	"github.com/hollowforge/simcore/pkg/snapshot"
)

// TextSerializer renders a Snapshot as self-describing plain text, one
// line per record, field names matching the binary format exactly so
// the two encodings stay in lockstep as the wire format evolves.
type TextSerializer struct{}

func (TextSerializer) Kind() string { return string(KindText) }

func (TextSerializer) Serialize(snap snapshot.Snapshot) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "frame_number=%d timestamp_seconds=%.9f record_count=%d\n",
		snap.FrameNumber, float64(snap.Timestamp.UnixNano())/1e9, len(snap.Records))
	for _, rec := range snap.Records {
		fmt.Fprintf(&b, "entity_id=%d x=%g y=%g\n", rec.EntityID, rec.X, rec.Y)
	}
	return []byte(b.String()), nil
}
