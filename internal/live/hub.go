// Package live pushes attendance marks to the teacher who owns the session
// over websockets.
package live

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"qrattend/internal/attendance"
)

// EventMarked is sent for every record written against a session.
const EventMarked = "attendance.marked"

// Event is the frame written to subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type delivery struct {
	sessionID string
	data      []byte
}

// Hub tracks subscribers per session and fans marks out to them.
type Hub struct {
	clients    map[string]map[*Client]bool
	broadcast  chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			set := h.clients[c.sessionID]
			if set == nil {
				set = make(map[*Client]bool)
				h.clients[c.sessionID] = set
			}
			set[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()

		case d := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients[d.sessionID] {
				select {
				case c.send <- d.data:
				default:
					// slow consumer
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *Client) {
	set, ok := h.clients[c.sessionID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}

// Subscribers returns the number of clients watching sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// RecordMarked implements attendance.MarkListener. It never blocks the
// verification path; a full buffer drops the event.
func (h *Hub) RecordMarked(_ context.Context, rec attendance.Record) {
	if rec.SessionID == "" {
		return
	}
	data, err := json.Marshal(Event{Type: EventMarked, Data: rec})
	if err != nil {
		log.Printf("live: encode record %s: %v", rec.ID, err)
		return
	}
	select {
	case h.broadcast <- delivery{sessionID: rec.SessionID, data: data}:
	default:
		log.Printf("live: broadcast buffer full, dropped record %s", rec.ID)
	}
}
