package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned by blocking helpers when a stop was requested while
// they were waiting. It is a control signal, not a failure.
var ErrStopped = errors.New("engine: stop requested")

// Token is the process-wide "stop requested" cell shared by every scraping
// activity of a batch. Only the batch controller writes it; workers poll
// IsStopRequested or select on Done.
//
// Within a batch the flag only moves false→true. Reset re-arms it for the
// next batch.
type Token struct {
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// NewToken returns an armed token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// RequestStop sets the flag. Repeated calls are no-ops.
func (t *Token) RequestStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}

// IsStopRequested reads the flag.
func (t *Token) IsStopRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Reset clears the flag. Call only between batches.
func (t *Token) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stopped {
		return
	}
	t.stopped = false
	t.done = make(chan struct{})
}

// Done returns a channel closed once a stop is requested.
func (t *Token) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Sleep waits d unless a stop is requested or ctx ends first. It is used for
// the render-settle waits between DOM interactions; those give client-side
// rendering time to finish before the next read.
func (t *Token) Sleep(ctx context.Context, d time.Duration) error {
	if t.IsStopRequested() {
		return ErrStopped
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-t.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
