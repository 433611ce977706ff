// Package config loads the single setup configuration the simd driver
// needs to wire a world, scheduler, and snapshot/transport pipeline.
// Decoding happens here, outside the ecs core package, so core stays
// free of any particular config format.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Setup is the fully decoded configuration for one simd run.
type Setup struct {
	TargetFrameRate float64     `yaml:"target_frame_rate"`
	WorldBounds     WorldBounds `yaml:"world_bounds"`
	Serializer      Serializer  `yaml:"serializer"`
	Sender          Sender      `yaml:"sender"`
	Transport       Transport   `yaml:"transport"`
	DeltaCompression DeltaCompression `yaml:"delta_compression"`
	ParallelSerialization ParallelSerialization `yaml:"parallel_serialization"`
	// LogFrequency is ticks between performance log lines: 0 logs every
	// tick, and a nil pointer (the field absent from the YAML document)
	// means performance log lines are never emitted.
	LogFrequency    *uint32     `yaml:"log_frequency"`
	Workers         int         `yaml:"workers"`
}

// WorldBounds bounds the simulated area. When configured, cmd/simd
// publishes it for pkg/motion's IntegrateSystem, which clamps entity
// positions into it.
type WorldBounds struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
}

// Serializer selects and configures the snapshot encoder.
type Serializer struct {
	Kind string `yaml:"kind"`
}

// Sender selects and configures the transport destination.
type Sender struct {
	Kind      string          `yaml:"kind"`
	File      FileSender      `yaml:"file"`
	Broadcast BroadcastSender `yaml:"broadcast"`
}

// FileSender configures the file transport sender.
type FileSender struct {
	Path          string `yaml:"path"`
	FlushEveryN   int    `yaml:"flush_every_n"`
	TruncateOnRun bool   `yaml:"truncate_on_run"`
}

// BroadcastSender configures the websocket broadcast transport sender.
type BroadcastSender struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Transport controls how often the transport-driver system runs.
type Transport struct {
	UpdateFrequency uint32 `yaml:"update_frequency"`
}

// DeltaCompression configures the optimized-binary serializer's delta
// tracking.
type DeltaCompression struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// ParallelSerialization configures chunked encoding for large
// snapshots.
type ParallelSerialization struct {
	Enabled        bool `yaml:"enabled"`
	ChunkThreshold int  `yaml:"chunk_threshold"`
	ThreadCount    int  `yaml:"thread_count"`
}

// TickInterval derives the fixed tick duration from TargetFrameRate.
func (s Setup) TickInterval() time.Duration {
	if s.TargetFrameRate <= 0 {
		return time.Second / 60
	}
	return time.Duration(float64(time.Second) / s.TargetFrameRate)
}

// Load reads and decodes a Setup from the YAML file at path.
func Load(path string) (Setup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Setup{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var setup Setup
	if err := yaml.Unmarshal(data, &setup); err != nil {
		return Setup{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return setup, nil
}
