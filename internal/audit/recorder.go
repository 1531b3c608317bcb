package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"onboarding-gateway/pkg/requestcontext"
)

const (
	defaultBufferSize = 1024
	appendTimeout     = 3 * time.Second
)

// Recorder writes events to a Store from a single background worker so a
// slow store never holds up a request.
type Recorder struct {
	store  Store
	logger *slog.Logger
	events chan Event

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.events = make(chan Event, n)
		}
	}
}

// NewRecorder starts the worker. Call Close to flush and stop it.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		events: make(chan Event, defaultBufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Emit stamps and queues ev. It never blocks; when the buffer is full the
// event is dropped and counted.
func (r *Recorder) Emit(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = requestcontext.Now(ctx)
	}
	if ev.RequestID == "" {
		ev.RequestID = requestcontext.RequestID(ctx)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("audit buffer full, event dropped",
			"action", ev.Action,
			"provider_id", ev.ProviderID.String(),
		)
	}
}

// Dropped is the number of events lost to a full buffer.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		if err := r.store.Append(ctx, ev); err != nil {
			r.logger.Error("failed to append audit event",
				"action", ev.Action,
				"provider_id", ev.ProviderID.String(),
				"error", err,
			)
		}
		cancel()
	}
}
