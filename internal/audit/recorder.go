package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/chardev-core/internal/chardev"
)

// writeTimeout bounds each insert made by the Recorder worker.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder is a chardev.Observer that persists lifecycle events through a
// Repository on a background goroutine.
//
// Observe never blocks: when the queue is full the event is dropped and
// counted. IO events (read, written, ioctl) are ignored.
type Recorder struct {
	repo   Repository
	queue  chan Entry
	logger Logger

	mu      sync.RWMutex // Guards stopped against a concurrent close of queue
	stopped bool

	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// NewRecorder creates a Recorder with room for queueSize pending entries.
// Call Start before events arrive and Stop on shutdown.
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, queueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger used for insert failures.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Start launches the worker that drains the queue into the repository.
func (r *Recorder) Start() {
	r.once.Do(func() {
		go r.run()
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Create(ctx, &e); err != nil {
			r.logger.Warn("audit insert failed", "kind", e.Kind, "name", e.Name, "error", err)
		}
		cancel()
	}
}

// Stop stops accepting events and waits until queued entries are written
// or ctx expires.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.queue)
	}
	r.mu.Unlock()

	// A Recorder that was never started still drains what it queued.
	r.Start()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded because the queue was full
// or the Recorder was stopped.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Observe implements chardev.Observer.
func (r *Recorder) Observe(ev chardev.Event) {
	if !Tracked(ev.Kind) {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.dropped.Add(1)
		return
	}

	select {
	case r.queue <- EntryFromEvent(ev):
	default:
		r.dropped.Add(1)
	}
}

// Tracked reports whether events of kind are audited.
func Tracked(kind chardev.EventKind) bool {
	switch kind {
	case chardev.EventClassRegistered,
		chardev.EventClassUnregistered,
		chardev.EventNodePublished,
		chardev.EventNodeFailed,
		chardev.EventNodeUnpublished,
		chardev.EventOpened,
		chardev.EventReleased:
		return true
	default:
		return false
	}
}

// EntryFromEvent converts a chardev event into an unsaved Entry.
func EntryFromEvent(ev chardev.Event) Entry {
	e := Entry{
		Kind:      string(ev.Kind),
		Class:     ev.Class,
		Minor:     ev.Minor,
		Name:      ev.Name,
		HandleID:  ev.HandleID,
		Bytes:     ev.Bytes,
		CreatedAt: ev.At,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}
