package serialize

import (
	"testing"
	"time"

	"github.com/hollowforge/simcore/pkg/snapshot"
)

func TestOptimizedSerializerDeltaEmission(t *testing.T) {
	s := NewOptimizedSerializer(OptimizedOptions{DeltaCompression: true, DeltaThreshold: 0.1 * 0.1})

	first := snapshot.Snapshot{
		FrameNumber: 0,
		Timestamp:   time.Unix(0, 0),
		Records:     []snapshot.EntityRecord{{EntityID: 1, X: 10.00, Y: 10.00}},
	}
	payload, err := s.Serialize(first)
	if err != nil {
		t.Fatalf("serialize frame 0: %v", err)
	}
	decoded, err := DecodeBinary(payload)
	if err != nil {
		t.Fatalf("decode frame 0: %v", err)
	}
	if len(decoded.Records) != 1 {
		t.Fatalf("expected baseline frame to include the entity, got %d records", len(decoded.Records))
	}

	// Small move: below threshold, must be omitted.
	second := snapshot.Snapshot{
		FrameNumber: 1,
		Timestamp:   time.Unix(0, 0),
		Records:     []snapshot.EntityRecord{{EntityID: 1, X: 10.05, Y: 10.00}},
	}
	payload, err = s.Serialize(second)
	if err != nil {
		t.Fatalf("serialize frame 1: %v", err)
	}
	decoded, err = DecodeBinary(payload)
	if err != nil {
		t.Fatalf("decode frame 1: %v", err)
	}
	if len(decoded.Records) != 0 {
		t.Fatalf("expected sub-threshold move to be omitted, got %d records", len(decoded.Records))
	}

	// Now move past the threshold relative to the last *emitted* sample (10.00,10.00).
	third := snapshot.Snapshot{
		FrameNumber: 2,
		Timestamp:   time.Unix(0, 0),
		Records:     []snapshot.EntityRecord{{EntityID: 1, X: 10.20, Y: 10.00}},
	}
	payload, err = s.Serialize(third)
	if err != nil {
		t.Fatalf("serialize frame 2: %v", err)
	}
	decoded, err = DecodeBinary(payload)
	if err != nil {
		t.Fatalf("decode frame 2: %v", err)
	}
	if len(decoded.Records) != 1 || decoded.Records[0].X != 10.20 {
		t.Fatalf("expected the moved entity to be emitted with x=10.20, got %+v", decoded.Records)
	}
}

func TestOptimizedSerializerParallelChunkingMatchesSequential(t *testing.T) {
	records := make([]snapshot.EntityRecord, 10000)
	for i := range records {
		records[i] = snapshot.EntityRecord{EntityID: uint32(i), X: float32(i), Y: float32(-i)}
	}
	snap := snapshot.Snapshot{FrameNumber: 1, Timestamp: time.Unix(0, 0), Records: records}

	sequential := NewOptimizedSerializer(OptimizedOptions{})
	seqPayload, err := sequential.Serialize(snap)
	if err != nil {
		t.Fatalf("sequential serialize: %v", err)
	}

	parallel := NewOptimizedSerializer(OptimizedOptions{ParallelChunking: true, ChunkThreshold: 100})
	parPayload, err := parallel.Serialize(snap)
	if err != nil {
		t.Fatalf("parallel serialize: %v", err)
	}

	if len(seqPayload) != len(parPayload) {
		t.Fatalf("payload length mismatch: sequential=%d parallel=%d", len(seqPayload), len(parPayload))
	}
	for i := range seqPayload {
		if seqPayload[i] != parPayload[i] {
			t.Fatalf("payload diverges at byte %d", i)
		}
	}
}

func TestOptimizedSerializerParallelChunkingHonorsThreadCount(t *testing.T) {
	records := make([]snapshot.EntityRecord, 500)
	for i := range records {
		records[i] = snapshot.EntityRecord{EntityID: uint32(i), X: float32(i), Y: float32(-i)}
	}
	snap := snapshot.Snapshot{FrameNumber: 3, Timestamp: time.Unix(0, 0), Records: records}

	sequential := NewOptimizedSerializer(OptimizedOptions{})
	seqPayload, err := sequential.Serialize(snap)
	if err != nil {
		t.Fatalf("sequential serialize: %v", err)
	}

	capped := NewOptimizedSerializer(OptimizedOptions{ParallelChunking: true, ChunkThreshold: 100, ThreadCount: 1})
	capPayload, err := capped.Serialize(snap)
	if err != nil {
		t.Fatalf("capped serialize: %v", err)
	}

	if len(seqPayload) != len(capPayload) {
		t.Fatalf("payload length mismatch: sequential=%d capped=%d", len(seqPayload), len(capPayload))
	}
	for i := range seqPayload {
		if seqPayload[i] != capPayload[i] {
			t.Fatalf("payload diverges at byte %d with ThreadCount=1", i)
		}
	}
}

func TestOptimizedSerializerReset(t *testing.T) {
	s := NewOptimizedSerializer(OptimizedOptions{DeltaCompression: true, DeltaThreshold: 0.01})
	snap := snapshot.Snapshot{Records: []snapshot.EntityRecord{{EntityID: 1, X: 1, Y: 1}}}

	if _, err := s.Serialize(snap); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	s.Reset()

	payload, err := s.Serialize(snap)
	if err != nil {
		t.Fatalf("serialize after reset: %v", err)
	}
	decoded, err := DecodeBinary(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Records) != 1 {
		t.Fatalf("expected the unchanged entity to re-emit as a fresh baseline after reset")
	}
}
