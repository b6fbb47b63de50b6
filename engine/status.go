package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/harvest/metrics"
)

// EventKind distinguishes the messages broadcast to listeners.
type EventKind string

const (
	EventStatus     EventKind = "status"
	EventResetLogs  EventKind = "reset_logs"
	EventUserAction EventKind = "user_action_required"
)

// Event is one message on the engine → consumer channel.
type Event struct {
	Kind    EventKind `json:"kind"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Reporter broadcasts progress to any number of listeners. Publishing never
// blocks and never fails: a listener that is gone, slow, or full simply
// misses the event.
type Reporter struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger

	failures atomic.Int64
}

// NewReporter creates a Reporter that also mirrors every event to logger.
// A nil logger uses slog.Default().
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a listener with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call
// more than once.
func (r *Reporter) Subscribe(buf int) (<-chan Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan Event, buf)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of registered listeners.
func (r *Reporter) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Status emits a free-form progress line.
func (r *Reporter) Status(msg string) {
	r.logger.Info(msg)
	r.publish(Event{Kind: EventStatus, Message: msg})
}

// Statusf is Status with fmt.Sprintf formatting.
func (r *Reporter) Statusf(format string, args ...any) {
	r.Status(fmt.Sprintf(format, args...))
}

// Failure emits a status line for a caught error. Every swallowed error in a
// driver goes through here so nothing fails silently.
func (r *Reporter) Failure(scope string, err error) {
	msg := fmt.Sprintf("error: %s: %v", scope, err)
	r.logger.Warn("scrape failure", "scope", scope, "error", err)
	metrics.Failures.Inc()
	r.failures.Add(1)
	r.publish(Event{Kind: EventStatus, Message: msg})
}

// UserActionRequired asks the consumer to intervene (e.g. solve a CAPTCHA).
func (r *Reporter) UserActionRequired(msg string) {
	r.logger.Warn("user action required", "message", msg)
	r.publish(Event{Kind: EventUserAction, Message: msg})
}

// ResetLogs tells listeners to clear their log view. The batch controller
// sends it once, before any other event of a batch.
func (r *Reporter) ResetLogs() {
	r.failures.Store(0)
	r.publish(Event{Kind: EventResetLogs})
}

// Failures returns how many failures were reported since the last ResetLogs.
func (r *Reporter) Failures() int {
	return int(r.failures.Load())
}

func (r *Reporter) publish(ev Event) {
	ev.Time = time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
