// Package progress carries coarse percent-complete updates from stage
// executors to whoever observes the task.
package progress

import (
	"context"
	"sync"
)

// Sink receives percent-complete values in [0,100].
type Sink interface {
	Update(ctx context.Context, percent int)
}

type SinkFunc func(ctx context.Context, percent int)

func (f SinkFunc) Update(ctx context.Context, percent int) { f(ctx, percent) }

// Discard drops every update.
var Discard Sink = SinkFunc(func(context.Context, int) {})

// Monotonic forwards only values that do not go below the last forwarded one.
type Monotonic struct {
	mu   sync.Mutex
	next Sink
	last int
	sent bool
}

// NewMonotonic wraps next; start seeds the floor (e.g. progress already stored
// for a redelivered task).
func NewMonotonic(next Sink, start int) *Monotonic {
	return &Monotonic{next: next, last: clamp(start)}
}

func (m *Monotonic) Update(ctx context.Context, percent int) {
	percent = clamp(percent)

	m.mu.Lock()
	if percent < m.last || (percent == m.last && m.sent) {
		m.mu.Unlock()
		return
	}
	m.last = percent
	m.sent = true
	m.mu.Unlock()

	m.next.Update(ctx, percent)
}

// Last returns the highest value seen so far.
func (m *Monotonic) Last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Band maps a stage's own 0..100 into [lo,hi] of the parent sink, so stages
// chained in a pipeline never report overlapping values.
func Band(parent Sink, lo, hi int) Sink {
	lo, hi = clamp(lo), clamp(hi)
	if hi < lo {
		lo, hi = hi, lo
	}
	return SinkFunc(func(ctx context.Context, percent int) {
		parent.Update(ctx, lo+clamp(percent)*(hi-lo)/100)
	})
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
