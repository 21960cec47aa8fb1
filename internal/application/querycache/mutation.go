package querycache

import (
	"context"
	"sync/atomic"
)

// MutationOptions are callbacks run after a mutation settles.
type MutationOptions[In, Out any] struct {
	OnSuccess func(ctx context.Context, in In, out Out)
	OnError   func(ctx context.Context, in In, err error)
}

// Mutation wraps a write against the remote store. It never touches cached
// data itself; OnSuccess typically calls Cache.Invalidate.
type Mutation[In, Out any] struct {
	fn      func(ctx context.Context, in In) (Out, error)
	opts    MutationOptions[In, Out]
	pending atomic.Int64
}

// NewMutation creates a Mutation around fn.
func NewMutation[In, Out any](fn func(ctx context.Context, in In) (Out, error), opts MutationOptions[In, Out]) *Mutation[In, Out] {
	return &Mutation[In, Out]{fn: fn, opts: opts}
}

// Mutate runs the write once. There is no retry.
// PRE: none
// POST: exactly one of OnSuccess or OnError has run when set
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	m.pending.Add(1)
	defer m.pending.Add(-1)

	out, err := m.fn(ctx, in)
	if err != nil {
		if m.opts.OnError != nil {
			m.opts.OnError(ctx, in, err)
		}
		return out, err
	}
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, in, out)
	}
	return out, nil
}

// IsPending reports whether any call to Mutate is in progress.
func (m *Mutation[In, Out]) IsPending() bool {
	return m.pending.Load() > 0
}
