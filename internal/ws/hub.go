package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/kiwari-pos/orderrelay/internal/notify"
)

var errHubStopped = errors.New("websocket hub stopped")

type branchEvent struct {
	BranchID int64
	Event    notify.Event
}

// Hub keeps one room of dashboard subscribers per branch and fans branch
// events out to them.
type Hub struct {
	rooms map[int64]map[*subscriber]bool

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan *branchEvent
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[int64]map[*subscriber]bool),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		broadcast:  make(chan *branchEvent, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case sub := <-h.register:
			h.mu.Lock()
			if h.rooms[sub.branchID] == nil {
				h.rooms[sub.branchID] = make(map[*subscriber]bool)
			}
			h.rooms[sub.branchID][sub] = true
			h.mu.Unlock()

		case sub := <-h.unregister:
			h.mu.Lock()
			h.remove(sub)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				continue
			}

			h.mu.Lock()
			for sub := range h.rooms[event.BranchID] {
				select {
				case sub.send <- message:
				default:
					// slow consumer; its writeLoop sees the closed channel and hangs up
					h.remove(sub)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join adds sub to its branch room. It reports false once the hub has stopped.
func (h *Hub) join(sub *subscriber) bool {
	select {
	case h.register <- sub:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(sub *subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// remove must be called with mu held.
func (h *Hub) remove(sub *subscriber) {
	subs, ok := h.rooms[sub.branchID]
	if !ok {
		return
	}
	if _, exists := subs[sub]; !exists {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.rooms, sub.branchID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.rooms {
		for sub := range subs {
			h.remove(sub)
		}
	}
}

// Publish queues evt for every subscriber in the branch room. It implements
// notify.Notifier.
func (h *Hub) Publish(ctx context.Context, branchID int64, evt notify.Event) error {
	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.broadcast <- &branchEvent{BranchID: branchID, Event: evt}:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
