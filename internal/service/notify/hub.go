// Package notify delivers committed state changes to interested actors
package notify

import (
	"context"
	"sync"

	"github.com/nkiryanov/courier/internal/logger"
	"github.com/nkiryanov/courier/internal/models"
)

const DefaultBufferSize = 64

// Publisher accepts committed changes
type Publisher interface {
	Publish(ctx context.Context, change models.Change) error
}

// Hub fans changes out to in-process subscribers.
//
// Changes of one entity are delivered in version order: the hub remembers the last version
// per entity and drops stale or repeated ones. A subscriber whose buffer is full is closed
// and has to resubscribe and reread the state it cares about.
type Hub struct {
	mu       sync.Mutex
	versions map[string]int64
	subs     map[*Subscription]struct{}

	bufferSize int
	logger     logger.Logger
}

func NewHub(bufferSize int, l logger.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Hub{
		versions:   make(map[string]int64),
		subs:       make(map[*Subscription]struct{}),
		bufferSize: bufferSize,
		logger:     l,
	}
}

type Subscription struct {
	ActorRef string

	hub    *Hub
	ch     chan models.Change
	closed bool
}

// Changes is closed when the subscription is closed or falls behind
func (s *Subscription) Changes() <-chan models.Change {
	return s.ch
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}

func (h *Hub) Subscribe(actorRef string) *Subscription {
	sub := &Subscription{
		ActorRef: actorRef,
		hub:      h,
		ch:       make(chan models.Change, h.bufferSize),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Subscribed to changes", "actor", actorRef)
	return sub
}

func (h *Hub) Publish(_ context.Context, change models.Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := change.Key()
	if last, ok := h.versions[key]; ok && change.Version <= last {
		h.logger.Debug("Stale change dropped", "entity", key, "version", change.Version, "last_version", last)
		return nil
	}
	h.versions[key] = change.Version

	for sub := range h.subs {
		if !change.Concerns(sub.ActorRef) {
			continue
		}

		select {
		case sub.ch <- change:
		default:
			h.logger.Warn("Subscriber falls behind, closing it", "actor", sub.ActorRef)
			h.remove(sub)
		}
	}

	return nil
}

// Close ends every subscription, so streaming clients let the server stop
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs {
		h.remove(sub)
	}
}

// remove must be called with the lock held
func (h *Hub) remove(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.ch)
}

// Publishers sends every change to each publisher in turn.
// All publishers are called even if some fail, the first error is returned.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, change models.Change) error {
	var first error
	for _, p := range ps {
		if err := p.Publish(ctx, change); err != nil && first == nil {
			first = err
		}
	}
	return first
}
