package stream

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aidev/agentcore/internal/logging"
)

// Writer is the per-run Stream Writer: a single ordered sink of Events
// that the UI consumes (spec §4.6). Unlike the teacher's package-level
// event.Publish, a Writer is an explicit value constructed per run and
// handed to the Agent Runner, tool handlers, and any relayed
// sub-agents (spec §9).
type Writer struct {
	log zerolog.Logger

	mu     sync.Mutex
	sinks  []chan Event
	closed bool
}

// New constructs a Writer. A nil logger falls back to a no-op logger.
func New(log *zerolog.Logger) *Writer {
	l := logging.Nop()
	if log != nil {
		l = *log
	}
	return &Writer{log: l}
}

// Subscribe returns a channel of Events for this run. Each subscriber
// gets every event in emission order; the channel is closed when the
// Writer is closed.
func (w *Writer) Subscribe(buffer int) <-chan Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(chan Event, buffer)
	if w.closed {
		close(ch)
		return ch
	}
	w.sinks = append(w.sinks, ch)
	return ch
}

// Emit delivers event to every current subscriber, in order. When a
// subscriber's channel is full, the event is dropped for that
// subscriber rather than blocking the run; this is logged since it
// indicates a slow or absent UI consumer.
func (w *Writer) Emit(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, ch := range w.sinks {
		select {
		case ch <- event:
		default:
			w.log.Warn().Str("kind", string(event.Kind)).Msg("stream: subscriber channel full, dropping event")
		}
	}
}

// Relay emits a child run's event into this (parent) Writer, tagging
// it with source so per-source ordering is preserved while
// interleaving across sources is permitted (spec §4.6, §4.9).
func (w *Writer) Relay(source string, event Event) {
	w.Emit(event.WithSource(source))
}

// Close closes every subscriber channel. No further Emit calls are
// delivered.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for _, ch := range w.sinks {
		close(ch)
	}
	w.sinks = nil
}
