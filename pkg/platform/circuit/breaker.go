// Package circuit tracks whether an upstream verification service is
// degraded. A breaker opens after a run of failures and closes again after a
// run of successes; callers decide what counts as a failure.
package circuit

import "sync"

type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Transition is what a single observation did to the breaker.
type Transition int

const (
	Unchanged Transition = iota
	Opened
	Closed
)

const (
	defaultOpenAfter  = 5
	defaultCloseAfter = 3
)

type Breaker struct {
	name       string
	openAfter  int
	closeAfter int

	mu     sync.Mutex
	state  State
	streak int // consecutive outcomes that push toward the other state
}

type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.openAfter = n
		}
	}
}

// WithSuccessThreshold sets how many consecutive successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.closeAfter = n
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, openAfter: defaultOpenAfter, closeAfter: defaultCloseAfter}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool { return b.State() == StateOpen }

// Observe records one call outcome and reports whether it flipped the state.
// While closed only failures extend the streak; while open only successes do.
func (b *Breaker) Observe(failed bool) Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	towardFlip := failed == (b.state == StateClosed)
	if !towardFlip {
		b.streak = 0
		return Unchanged
	}
	b.streak++

	switch {
	case b.state == StateClosed && b.streak >= b.openAfter:
		b.state, b.streak = StateOpen, 0
		return Opened
	case b.state == StateOpen && b.streak >= b.closeAfter:
		b.state, b.streak = StateClosed, 0
		return Closed
	}
	return Unchanged
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, b.streak = StateClosed, 0
}
