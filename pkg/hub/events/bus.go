// Package events carries typed notifications from hub components to the
// desktop UI adapter.
//
// The bus is a single-producer-queue, single-consumer fabric: producers
// enqueue without ever blocking, one drain goroutine forwards events to the
// Emitter in order. Delivery is at-most-once; an Emitter failure drops the
// event with an error log.
package events

import (
	"context"
	"sync"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/metrics"
)

// Topic identifies the UI channel an event is published on.
type Topic string

// The fixed topic set.
const (
	TopicDeviceRequestAdded    Topic = "device_requests:added"
	TopicDeviceRequestRemoved  Topic = "device_requests:removed"
	TopicDeviceRequestAccepted Topic = "device_requests:accepted"
	TopicDeviceRequestDeclined Topic = "device_requests:declined"
	TopicDeviceAuthenticated   Topic = "device:authenticated"
	TopicDeviceRevoked         Topic = "device:revoked"
	TopicPluginMessage         Topic = "plugin:recv_plugin_message"
	TopicInspectorOpen         Topic = "plugin:inspector_open"
	TopicInspectorClose        Topic = "plugin:inspector_close"
	TopicIconPackLoaded        Topic = "icon_pack:loaded"
	TopicIconPackUnloaded      Topic = "icon_pack:unloaded"
)

// Event is a topic/payload pair bound for the UI.
type Event struct {
	Topic   Topic
	Payload any
}

// Emitter forwards an event to the desktop UI. Implementations must be
// safe for use from the bus's drain goroutine.
type Emitter interface {
	Emit(topic string, payload any) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(topic string, payload any) error

// Emit implements Emitter.
func (f EmitterFunc) Emit(topic string, payload any) error {
	return f(topic, payload)
}

// Bus is the hub-to-UI notification fabric.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	closed  bool
	emitter Emitter
}

// NewBus creates a bus that forwards to emitter. A nil emitter discards
// events (used by tests that only exercise producers).
func NewBus(emitter Emitter) *Bus {
	b := &Bus{emitter: emitter}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish enqueues an event. It never blocks on the consumer.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, Event{Topic: topic, Payload: payload})
	b.mu.Unlock()
	b.cond.Signal()
}

// Run drains the queue until the context is cancelled. Events queued at
// cancellation time are dropped; the bus carries transient UI state only.
func (b *Bus) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		b.cond.Broadcast()
		close(done)
	}()

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if b.closed {
			b.mu.Unlock()
			<-done
			return
		}
		batch := b.queue
		b.queue = nil
		b.mu.Unlock()

		for _, ev := range batch {
			b.deliver(ev)
		}
	}
}

func (b *Bus) deliver(ev Event) {
	if b.emitter == nil {
		return
	}
	if err := b.emitter.Emit(string(ev.Topic), ev.Payload); err != nil {
		metrics.EventsDropped.Inc()
		logger.Error("failed to emit event to UI", "topic", ev.Topic, "error", err)
	}
}
