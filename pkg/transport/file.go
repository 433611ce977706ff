package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// FileSenderOptions configures FileSender.
type FileSenderOptions struct {
	Path          string
	FlushEveryN   int
	TruncateOnRun bool
}

// FileSender appends length-framed payloads to a file: a u32
// little-endian length prefix followed by the payload bytes, flushed
// every FlushEveryN frames so a crash loses at most a bounded tail.
type FileSender struct {
	opts FileSenderOptions

	mu      sync.Mutex
	file    *os.File
	writer  *bufio.Writer
	written int
}

// NewFileSender constructs a file sender. The file is opened on Start,
// not here, so construction never touches the filesystem.
func NewFileSender(opts FileSenderOptions) *FileSender {
	if opts.FlushEveryN <= 0 {
		opts.FlushEveryN = 1
	}
	return &FileSender{opts: opts}
}

func (s *FileSender) Kind() string { return string(KindFile) }

func (s *FileSender) Start(ctx context.Context) error {
	flags := os.O_CREATE | os.O_WRONLY
	if s.opts.TruncateOnRun {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(s.opts.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("transport: open %s: %w", s.opts.Path, err)
	}
	s.mu.Lock()
	s.file = f
	s.writer = bufio.NewWriter(f)
	s.mu.Unlock()
	return nil
}

func (s *FileSender) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return fmt.Errorf("transport: file sender not started")
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := s.writer.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := s.writer.Write(payload); err != nil {
		return err
	}

	s.written++
	if s.written%s.opts.FlushEveryN == 0 {
		return s.writer.Flush()
	}
	return nil
}

func (s *FileSender) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
