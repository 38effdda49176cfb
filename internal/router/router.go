// Package router dispatches decoded messages to subscribers by event name.
package router

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/wagiedev/stdio-ipc-go/internal/errors"
	"github.com/wagiedev/stdio-ipc-go/internal/wire"
)

// Handler receives the payload of a message routed on its event.
// err is a *errors.RemoteError when the peer set the message's error field.
type Handler func(data *string, err error)

// CatchAllHandler receives every routed message.
type CatchAllHandler func(msg wire.Message)

// Subscription identifies a registered handler for Unsubscribe.
type Subscription struct {
	id       uint64
	event    string
	catchAll bool
}

// Event returns the event name the subscription listens on, or "" for catch-all.
func (s *Subscription) Event() string {
	return s.event
}

type entry struct {
	id uint64
	h  Handler
}

type catchAllEntry struct {
	id uint64
	h  CatchAllHandler
}

// Router is a per-session subscription table.
//
// Handlers run synchronously on the goroutine that calls Route, in
// registration order. A slow handler delays every message behind it.
type Router struct {
	log *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	byEvent  map[string][]entry
	catchAll []catchAllEntry
}

// New creates an empty router.
func New(log *slog.Logger) *Router {
	return &Router{
		log:     log.With("component", "router"),
		byEvent: make(map[string][]entry, 16),
	}
}

// Subscribe registers h for messages whose event equals event.
func (r *Router) Subscribe(event string, h Handler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.byEvent[event] = append(r.byEvent[event], entry{id: r.nextID, h: h})

	return &Subscription{id: r.nextID, event: event}
}

// SubscribeCatchAll registers h for every message.
func (r *Router) SubscribeCatchAll(h CatchAllHandler) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.catchAll = append(r.catchAll, catchAllEntry{id: r.nextID, h: h})

	return &Subscription{id: r.nextID, catchAll: true}
}

// Unsubscribe removes a handler. It reports whether the handler was registered.
func (r *Router) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.catchAll {
		n := len(r.catchAll)
		r.catchAll = slices.DeleteFunc(r.catchAll, func(e catchAllEntry) bool { return e.id == sub.id })

		return len(r.catchAll) != n
	}

	handlers := r.byEvent[sub.event]
	n := len(handlers)
	handlers = slices.DeleteFunc(handlers, func(e entry) bool { return e.id == sub.id })

	if len(handlers) == 0 {
		delete(r.byEvent, sub.event)
	} else {
		r.byEvent[sub.event] = handlers
	}

	return len(handlers) != n
}

// RemoveAll removes every handler registered for event.
func (r *Router) RemoveAll(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byEvent, event)
}

// Count returns the number of handlers registered for event.
func (r *Router) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byEvent[event])
}

// Route delivers msg to catch-all handlers, then to the handlers registered
// for msg.Event. A message without an event only reaches catch-all handlers.
func (r *Router) Route(msg wire.Message) {
	r.mu.RLock()
	catchAll := slices.Clone(r.catchAll)

	var handlers []entry
	if msg.Event != "" {
		handlers = slices.Clone(r.byEvent[msg.Event])
	}
	r.mu.RUnlock()

	for _, e := range catchAll {
		e.h(msg)
	}

	if msg.Event == "" {
		r.log.Debug("Message without event delivered to catch-all only")

		return
	}

	if len(handlers) == 0 {
		r.log.Debug("No subscribers for event", "event", msg.Event)

		return
	}

	var err error
	if msg.Error != nil {
		err = &errors.RemoteError{Event: msg.Event, Message: *msg.Error}
	}

	for _, e := range handlers {
		e.h(msg.Data, err)
	}
}
