package serialize

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hollowforge/simcore/pkg/snapshot"
)

// BinarySerializer encodes a Snapshot as the fixed little-endian record
// format: u64 frame_number, f64 timestamp_seconds, u64 record_count,
// then record_count records of u32 entity_id + f32 x + f32 y.
type BinarySerializer struct{}

func (BinarySerializer) Kind() string { return string(KindBinary) }

func (BinarySerializer) Serialize(snap snapshot.Snapshot) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(8 + 8 + 8 + len(snap.Records)*12)

	if err := binary.Write(buf, binary.LittleEndian, snap.FrameNumber); err != nil {
		return nil, err
	}
	seconds := float64(snap.Timestamp.UnixNano()) / 1e9
	if err := binary.Write(buf, binary.LittleEndian, seconds); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint64(len(snap.Records))); err != nil {
		return nil, err
	}
	for _, rec := range snap.Records {
		if err := writeRecord(buf, rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, rec snapshot.EntityRecord) error {
	var tmp [12]byte
	binary.LittleEndian.PutUint32(tmp[0:4], rec.EntityID)
	binary.LittleEndian.PutUint32(tmp[4:8], math.Float32bits(rec.X))
	binary.LittleEndian.PutUint32(tmp[8:12], math.Float32bits(rec.Y))
	_, err := buf.Write(tmp[:])
	return err
}

// DecodeBinary parses the wire format BinarySerializer and
// OptimizedSerializer (chunked or not) produce. It is the inverse of
// BinarySerializer.Serialize and exists so receivers of the transport
// (and tests asserting round-trip fidelity) don't have to hand-roll the
// layout a second time.
func DecodeBinary(payload []byte) (snapshot.Snapshot, error) {
	r := bytes.NewReader(payload)

	var frame uint64
	if err := binary.Read(r, binary.LittleEndian, &frame); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("serialize: decode frame_number: %w", err)
	}
	var seconds float64
	if err := binary.Read(r, binary.LittleEndian, &seconds); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("serialize: decode timestamp_seconds: %w", err)
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("serialize: decode record_count: %w", err)
	}

	records := make([]snapshot.EntityRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		var tmp [12]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("serialize: decode record %d: %w", i, err)
		}
		records = append(records, snapshot.EntityRecord{
			EntityID: binary.LittleEndian.Uint32(tmp[0:4]),
			X:        math.Float32frombits(binary.LittleEndian.Uint32(tmp[4:8])),
			Y:        math.Float32frombits(binary.LittleEndian.Uint32(tmp[8:12])),
		})
	}

	return snapshot.Snapshot{
		FrameNumber: frame,
		Timestamp:   time.Unix(0, int64(seconds*1e9)),
		Records:     records,
	}, nil
}
