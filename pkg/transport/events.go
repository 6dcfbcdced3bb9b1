package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/connection"
	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/wire"
)

// EventType tags a channel event.
type EventType string

// Channel events.
const (
	EventConnect      EventType = "connect"
	EventDisconnect   EventType = "disconnect"
	EventReconnecting EventType = "reconnecting"
	EventReconnected  EventType = "reconnected"
	EventMessage      EventType = "message"
	EventError        EventType = "error"
	EventStateChange  EventType = "state_change"
)

// Event is delivered to listeners. Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// State is the state after the event; PrevState is set for state_change.
	State     connection.State
	PrevState connection.State

	// Message is set for message events.
	Message *wire.Message

	// Err is set for error events.
	Err error

	// Code and Reason describe the closure for disconnect events.
	Code   int
	Reason string

	// Attempt and Delay describe the scheduled retry for reconnecting
	// events, and the successful attempt for reconnected events.
	Attempt int
	Delay   time.Duration
}

// Listener receives channel events.
type Listener func(Event)

// Handler receives inbound messages of one type.
type Handler func(*wire.Message)

type listenerEntry struct {
	id uint64
	fn Listener
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// registry maps event tags and message types to ordered handler lists.
// Dispatch isolates panics so one faulty listener cannot break delivery to
// the others.
type registry struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]listenerEntry
	handlers  map[wire.MessageType][]handlerEntry
	logger    *slog.Logger
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{
		listeners: make(map[EventType][]listenerEntry),
		handlers:  make(map[wire.MessageType][]handlerEntry),
		logger:    logger,
	}
}

func (r *registry) on(t EventType, fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[t] = append(r.listeners[t], listenerEntry{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.listeners[t]
		for i, e := range list {
			if e.id == id {
				r.listeners[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (r *registry) handle(t wire.MessageType, fn Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.handlers[t] = append(r.handlers[t], handlerEntry{id: id, fn: fn})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.handlers[t]
		for i, e := range list {
			if e.id == id {
				r.handlers[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (r *registry) emit(e Event) {
	r.mu.RLock()
	list := r.listeners[e.Type]
	r.mu.RUnlock()

	for _, l := range list {
		r.safeCall(string(e.Type), func() { l.fn(e) })
	}
}

func (r *registry) dispatch(msg *wire.Message) {
	r.mu.RLock()
	list := r.handlers[msg.Type]
	r.mu.RUnlock()

	for _, h := range list {
		r.safeCall(string(msg.Type), func() { h.fn(msg) })
	}
}

func (r *registry) safeCall(tag string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("listener panicked", "event", tag, "panic", fmt.Sprint(rec))
		}
	}()
	fn()
}
