package audit

import (
	"context"
	"sync/atomic"
)

// DefaultBufferSize is the Writer's queue length when none is given.
const DefaultBufferSize = 256

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Writer stores command log entries asynchronously and one at a time,
// which suits SQLite's single writer.
type Writer struct {
	repo    Repository
	logger  Logger
	queue   chan *Command
	dropped atomic.Uint64
}

// NewWriter creates a Writer over repo. A size of 0 or less uses
// DefaultBufferSize; a nil logger discards messages.
func NewWriter(repo Repository, size int, logger Logger) *Writer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Writer{
		repo:   repo,
		logger: logger,
		queue:  make(chan *Command, size),
	}
}

// Record queues cmd for storage without blocking. When the queue is full
// the entry is dropped.
func (w *Writer) Record(cmd *Command) {
	select {
	case w.queue <- cmd:
	default:
		w.dropped.Add(1)
		w.logger.Warn("command log queue full, dropping entry", "device_id", cmd.DeviceID)
	}
}

// Dropped returns how many entries were discarded because the queue was
// full.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Run stores queued entries until ctx is cancelled, then flushes what is
// left before returning.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case cmd := <-w.queue:
			w.store(cmd)
		case <-ctx.Done():
			for {
				select {
				case cmd := <-w.queue:
					w.store(cmd)
				default:
					return nil
				}
			}
		}
	}
}

func (w *Writer) store(cmd *Command) {
	// Detached from the Run context so the shutdown flush can still write.
	if err := w.repo.Create(context.Background(), cmd); err != nil {
		w.logger.Error("command log write failed", "device_id", cmd.DeviceID, "error", err)
	}
}
