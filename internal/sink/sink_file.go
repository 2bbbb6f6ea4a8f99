package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// defaultMaxBytes caps the audit file at 64 MiB before rotation. Verdict
// events are append-only and never pruned by the pipeline, so an unbounded
// file would eventually take the host down with it.
const defaultMaxBytes = 64 << 20

// FileSink appends verdict events to a JSONL audit file, rotating to a
// single ".1" predecessor when the size cap is reached.
type FileSink struct {
	path     string
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileSink opens (or creates) the audit file with the default size cap.
func NewFileSink(path string) (*FileSink, error) {
	return NewRotatingFileSink(path, defaultMaxBytes)
}

// NewRotatingFileSink opens the audit file with an explicit size cap.
func NewRotatingFileSink(path string, maxBytes int64) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is empty")
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	s := &FileSink{path: path, maxBytes: maxBytes}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat file: %w", err)
	}
	s.file = f
	s.size = info.Size()
	return nil
}

func (s *FileSink) Name() string { return "file_jsonl:" + s.path }

func (s *FileSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+int64(len(data)) > s.maxBytes {
		if err := s.rotate(); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}

	n, err := s.file.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// rotate moves the current file to path+".1" (replacing any previous one)
// and starts a fresh file. One predecessor is enough: the audit sink is a
// local tail, long-term retention belongs to the webhook consumer.
func (s *FileSink) rotate() error {
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return err
	}
	return s.open()
}

func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
