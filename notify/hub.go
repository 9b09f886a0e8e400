package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultHubBuffer        = 256
	defaultSubscriberBuffer = 32
)

// Hub is an in-process toast fan-out. Notify enqueues onto a buffered
// channel; Run dispatches each toast to every subscriber. Full buffers drop
// toasts with a warning rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription
	toasts      chan Toast
	logger      *zap.Logger
	now         func() time.Time
}

// Subscription receives toasts until Close.
type Subscription struct {
	Name string
	C    <-chan Toast

	ch     chan Toast
	hub    *Hub
	closed bool
}

// NewHub creates a hub with the given channel buffer size.
func NewHub(bufSize int, logger *zap.Logger) *Hub {
	if bufSize < 1 {
		bufSize = defaultHubBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subscribers: make(map[string]*Subscription),
		toasts:      make(chan Toast, bufSize),
		logger:      logger,
		now:         time.Now,
	}
}

// Notify queues t for delivery. It never blocks.
func (h *Hub) Notify(_ context.Context, t Toast) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = h.now().UTC()
	}
	select {
	case h.toasts <- t:
	default:
		h.logger.Warn("notify: hub buffer full, dropping toast",
			zap.String("toast_id", t.ID), zap.String("title", t.Title))
	}
}

// Subscribe registers a named subscriber. Reusing a name replaces the
// previous subscription and closes its channel.
func (h *Hub) Subscribe(name string, bufSize int) *Subscription {
	if bufSize < 1 {
		bufSize = defaultSubscriberBuffer
	}
	ch := make(chan Toast, bufSize)
	sub := &Subscription{Name: name, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	if prev, ok := h.subscribers[name]; ok {
		prev.closeLocked()
	}
	h.subscribers[name] = sub
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if cur, ok := s.hub.subscribers[s.Name]; ok && cur == s {
		delete(s.hub.subscribers, s.Name)
	}
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribers returns the number of registered subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Run dispatches toasts until ctx is cancelled, then drains what is already
// queued and closes every subscription.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()
	for {
		select {
		case t := <-h.toasts:
			h.dispatch(t)
		case <-ctx.Done():
			for {
				select {
				case t := <-h.toasts:
					h.dispatch(t)
				default:
					return nil
				}
			}
		}
	}
}

func (h *Hub) dispatch(t Toast) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for name, sub := range h.subscribers {
		select {
		case sub.ch <- t:
		default:
			h.logger.Warn("notify: subscriber buffer full, dropping toast",
				zap.String("subscriber", name), zap.String("toast_id", t.ID))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, sub := range h.subscribers {
		sub.closeLocked()
		delete(h.subscribers, name)
	}
}
