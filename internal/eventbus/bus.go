// Package eventbus implements the Event Bus (C1): a process-wide typed
// publish/subscribe fabric. Unlike the pattern it is grounded on, the Bus
// here is an explicit dependency constructed by the caller and passed
// in — never a package-level singleton (spec §9: "re-architect as
// explicit dependencies injected at runner construction; tests pass
// isolated instances").
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/aidev/agentcore/internal/logging"
)

// EventType identifies the kind of a published Event.
type EventType string

// Event types used by the core (spec §4.1).
const (
	UserCancel   EventType = "USER_CANCEL"
	TodoUpdated  EventType = "TODO_UPDATED"
	SessionStart EventType = "SESSION_START"
)

// Event is one message traveling through the Bus.
type Event struct {
	Type EventType
	Data any
}

// Handler processes one Event. It must not panic; a panic is recovered,
// logged, and does not prevent delivery to other handlers.
type Handler func(Event)

const busTopic = "agentcore-events"

type subscriberEntry struct {
	key   string
	sync  bool
	etype EventType // zero value means "all types"
	fn    Handler
}

// Bus is the concrete Event Bus. Construct with New; call Start before
// the first Publish and Stop to drain and shut down.
type Bus struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers []subscriberEntry
	started     bool
	stopped     bool

	pubsub  *gochannel.GoChannel
	pending sync.Map // watermill message UUID -> Event (preserves Go type across the transport)

	dispatchDone chan struct{}
	asyncWG      sync.WaitGroup
}

// New constructs a Bus. A nil logger falls back to a no-op logger.
func New(log *zerolog.Logger) *Bus {
	l := logging.Nop()
	if log != nil {
		l = *log
	}
	return &Bus{
		log:          l,
		pubsub:       gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, watermill.NopLogger{}),
		dispatchDone: make(chan struct{}),
	}
}

// Subscribe registers handler for eventType. key makes the subscription
// idempotent: re-subscribing with the same (eventType, key) replaces the
// prior handler rather than delivering twice. sync controls whether the
// handler runs in the synchronous phase (sequentially, before any async
// handler) or the asynchronous phase (concurrently, after) of dispatch
// for each event (spec §4.1).
func (b *Bus) Subscribe(eventType EventType, key string, sync bool, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.subscribers {
		if e.etype == eventType && e.key == key {
			b.subscribers[i] = subscriberEntry{key: key, sync: sync, etype: eventType, fn: handler}
			return
		}
	}
	b.subscribers = append(b.subscribers, subscriberEntry{key: key, sync: sync, etype: eventType, fn: handler})
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(key string, sync bool, handler Handler) {
	b.Subscribe("", key, sync, handler)
}

// Unsubscribe removes the (eventType, key) subscription if present.
func (b *Bus) Unsubscribe(eventType EventType, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.subscribers {
		if e.etype == eventType && e.key == key {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Start begins the background dispatcher. Publish before Start drops
// the event with a logged warning rather than silently succeeding
// (spec §4.1).
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	b.mu.Unlock()

	messages, err := b.pubsub.Subscribe(ctx, busTopic)
	if err != nil {
		return fmt.Errorf("eventbus: subscribe: %w", err)
	}

	go b.dispatchLoop(messages)
	return nil
}

// Stop drains the queue (waits for in-flight async handlers) and shuts
// the dispatcher down.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	_ = b.pubsub.Close()
	<-b.dispatchDone
	b.asyncWG.Wait()
}

// Publish enqueues event for delivery and returns immediately.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		b.log.Warn().Str("event_type", string(event.Type)).Msg("eventbus: publish before start, dropping event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), nil)
	b.pending.Store(msg.UUID, event)
	if err := b.pubsub.Publish(busTopic, msg); err != nil {
		b.pending.Delete(msg.UUID)
		b.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("eventbus: publish failed")
	}
}

func (b *Bus) dispatchLoop(messages <-chan *message.Message) {
	defer close(b.dispatchDone)
	for msg := range messages {
		v, ok := b.pending.LoadAndDelete(msg.UUID)
		msg.Ack()
		if !ok {
			continue
		}
		event := v.(Event)
		b.deliver(event)
	}
}

func (b *Bus) deliver(event Event) {
	b.mu.Lock()
	var syncHandlers, asyncHandlers []Handler
	for _, e := range b.subscribers {
		if e.etype != "" && e.etype != event.Type {
			continue
		}
		if e.sync {
			syncHandlers = append(syncHandlers, e.fn)
		} else {
			asyncHandlers = append(asyncHandlers, e.fn)
		}
	}
	b.mu.Unlock()

	for _, h := range syncHandlers {
		b.invoke(h, event)
	}
	for _, h := range asyncHandlers {
		h := h
		b.asyncWG.Add(1)
		go func() {
			defer b.asyncWG.Done()
			b.invoke(h, event)
		}()
	}
}

func (b *Bus) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("event_type", string(event.Type)).Msg("eventbus: handler panicked")
		}
	}()
	h(event)
}
