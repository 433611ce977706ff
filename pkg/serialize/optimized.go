package serialize

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/hollowforge/simcore/pkg/snapshot"
)

// OptimizedOptions configures OptimizedSerializer.
type OptimizedOptions struct {
	// DeltaCompression enables skipping records whose position hasn't
	// moved past DeltaThreshold (squared distance) since the last frame
	// emitted for that entity.
	DeltaCompression bool
	DeltaThreshold   float64

	// ParallelChunking splits record encoding across goroutines once the
	// record count exceeds ChunkThreshold, merging the resulting buffers
	// in order.
	ParallelChunking bool
	ChunkThreshold   int
	// ThreadCount caps how many goroutines encodeParallel fans a frame
	// across. Zero defers to runtime.NumCPU().
	ThreadCount int
}

// OptimizedSerializer is the binary wire format plus optional delta
// compression and parallel chunked encoding for large snapshots.
type OptimizedSerializer struct {
	opts    OptimizedOptions
	tracker *deltaTracker
	mu      sync.Mutex
}

// NewOptimizedSerializer constructs the optimized serializer. Each
// instance owns its own delta tracker, so peers that want independent
// delta baselines (e.g. one per transport sender) should each get their
// own instance.
func NewOptimizedSerializer(opts OptimizedOptions) *OptimizedSerializer {
	s := &OptimizedSerializer{opts: opts}
	if opts.DeltaCompression {
		threshold := opts.DeltaThreshold
		if threshold <= 0 {
			threshold = 0.0001
		}
		s.tracker = newDeltaTracker(threshold)
	}
	return s
}

func (s *OptimizedSerializer) Kind() string { return string(KindOptimized) }

// Reset clears delta-compression state, forcing the next Serialize call
// to emit every record as a fresh baseline.
func (s *OptimizedSerializer) Reset() {
	if s.tracker != nil {
		s.tracker.Reset()
	}
}

func (s *OptimizedSerializer) Serialize(snap snapshot.Snapshot) ([]byte, error) {
	records := snap.Records
	if s.opts.DeltaCompression && s.tracker != nil {
		s.mu.Lock()
		filtered := make([]snapshot.EntityRecord, 0, len(records))
		present := make(map[uint32]struct{}, len(records))
		for _, rec := range records {
			present[rec.EntityID] = struct{}{}
			if s.tracker.shouldEmit(rec.EntityID, rec.X, rec.Y) {
				filtered = append(filtered, rec)
			}
		}
		s.tracker.forget(present)
		s.mu.Unlock()
		records = filtered
	}

	header := new(bytes.Buffer)
	header.Grow(24)
	if err := binary.Write(header, binary.LittleEndian, snap.FrameNumber); err != nil {
		return nil, err
	}
	seconds := float64(snap.Timestamp.UnixNano()) / 1e9
	if err := binary.Write(header, binary.LittleEndian, seconds); err != nil {
		return nil, err
	}
	if err := binary.Write(header, binary.LittleEndian, uint64(len(records))); err != nil {
		return nil, err
	}

	chunkThreshold := s.opts.ChunkThreshold
	if chunkThreshold <= 0 {
		chunkThreshold = 4096
	}

	if !s.opts.ParallelChunking || len(records) <= chunkThreshold {
		body := new(bytes.Buffer)
		body.Grow(len(records) * 12)
		for _, rec := range records {
			if err := writeRecord(body, rec); err != nil {
				return nil, err
			}
		}
		return append(header.Bytes(), body.Bytes()...), nil
	}

	return encodeParallel(header.Bytes(), records, s.opts.ThreadCount), nil
}

// encodeParallel splits records into contiguous chunks, encodes each on
// its own goroutine, and concatenates the results in original order so
// the output is byte-identical to sequential encoding. threadCount caps
// the fan-out width (spec.md §6 parallel_serialization.thread_count);
// zero defers to runtime.NumCPU().
func encodeParallel(header []byte, records []snapshot.EntityRecord, threadCount int) []byte {
	workers := threadCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(records) {
		workers = len(records)
	}
	chunkSize := (len(records) + workers - 1) / workers

	chunks := make([][]byte, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(idx, start, end int) {
			defer wg.Done()
			buf := new(bytes.Buffer)
			buf.Grow((end - start) * 12)
			for _, rec := range records[start:end] {
				_ = writeRecord(buf, rec)
			}
			chunks[idx] = buf.Bytes()
		}(i, start, end)
	}
	wg.Wait()

	out := make([]byte, 0, len(header)+len(records)*12)
	out = append(out, header...)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}
