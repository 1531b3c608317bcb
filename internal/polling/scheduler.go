// Package polling runs a status check on a fixed interval until the result is
// terminal or the caller cancels.
//
// Guarantees:
//   - the check runs immediately, then once per interval
//   - at most one check is in flight; a slow check delays the next tick instead
//     of overlapping it
//   - a failed check is reported through OnError and polling continues
//   - Cancel is idempotent and safe after the poller stopped on its own
package polling

import (
	"context"
	"sync"
	"time"
)

// CheckFunc fetches the current status.
type CheckFunc[S any] func(ctx context.Context) (S, error)

// StopReason says why a poller finished.
type StopReason int

const (
	StopTerminal StopReason = iota + 1
	StopCancelled
)

func (r StopReason) String() string {
	switch r {
	case StopTerminal:
		return "terminal"
	case StopCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

type options[S any] struct {
	onResult func(S)
	onError  func(error)
	onStop   func(StopReason)
}

// Option configures a Poller.
type Option[S any] func(*options[S])

// OnResult is called with every successful check result, terminal included.
func OnResult[S any](fn func(S)) Option[S] {
	return func(o *options[S]) { o.onResult = fn }
}

// OnError is called for every failed check.
func OnError[S any](fn func(error)) Option[S] {
	return func(o *options[S]) { o.onError = fn }
}

// OnStop is called exactly once when the poller finishes.
func OnStop[S any](fn func(StopReason)) Option[S] {
	return func(o *options[S]) { o.onStop = fn }
}

// Poller is a running poll loop.
type Poller[S any] struct {
	cancel     context.CancelFunc
	cancelOnce sync.Once
	done       chan struct{}

	mu     sync.Mutex
	reason StopReason
	calls  int
}

// Start launches the loop. The loop also stops when parent is cancelled.
func Start[S any](parent context.Context, check CheckFunc[S], interval time.Duration, isTerminal func(S) bool, opts ...Option[S]) *Poller[S] {
	o := options[S]{}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Poller[S]{cancel: cancel, done: make(chan struct{})}
	go p.run(ctx, check, interval, isTerminal, o)
	return p
}

func (p *Poller[S]) run(ctx context.Context, check CheckFunc[S], interval time.Duration, isTerminal func(S) bool, o options[S]) {
	defer close(p.done)
	defer p.cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.tick(ctx, check, isTerminal, o) {
			p.finish(StopTerminal, o)
			return
		}
		select {
		case <-ctx.Done():
			p.finish(StopCancelled, o)
			return
		case <-ticker.C:
		}
	}
}

// tick runs one check and reports whether a terminal status was reached.
func (p *Poller[S]) tick(ctx context.Context, check CheckFunc[S], isTerminal func(S) bool, o options[S]) bool {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	status, err := check(ctx)
	if ctx.Err() != nil {
		// cancelled mid-flight: the result belongs to a torn-down caller
		return false
	}
	if err != nil {
		if o.onError != nil {
			o.onError(err)
		}
		return false
	}
	if o.onResult != nil {
		o.onResult(status)
	}
	return isTerminal(status)
}

func (p *Poller[S]) finish(reason StopReason, o options[S]) {
	p.mu.Lock()
	p.reason = reason
	p.mu.Unlock()
	if o.onStop != nil {
		o.onStop(reason)
	}
}

// Cancel stops the loop. It never blocks on an in-flight check.
func (p *Poller[S]) Cancel() {
	p.cancelOnce.Do(p.cancel)
}

// Done is closed once the loop has exited.
func (p *Poller[S]) Done() <-chan struct{} {
	return p.done
}

// Reason reports why the loop stopped, or 0 while it is running.
func (p *Poller[S]) Reason() StopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// Calls reports how many checks have been started.
func (p *Poller[S]) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
