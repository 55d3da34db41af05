package feed

import (
	"encoding/json"
	"log/slog"
	"sync"
)

type EventType string

const (
	Inserted EventType = "INSERT"
	Updated  EventType = "UPDATE"
	Deleted  EventType = "DELETE"
)

// Event is one typed change to a table row. UserId carries the owning user
// of the affected row so subscribers can scope visibility without another
// query; Patch holds the changed columns as raw json.
type Event struct {
	Type   EventType                  `json:"type"`
	Table  string                     `json:"table"`
	Id     string                     `json:"id"`
	UserId string                     `json:"user_id,omitempty"`
	Patch  map[string]json.RawMessage `json:"patch,omitempty"`
}

// Hub is the in-process change feed. One hub per process; every list view
// establishes and tears down its own subscription independently.
type Hub struct {
	mu     sync.Mutex
	nextId int
	subs   map[int]*Subscription
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]*Subscription)}
}

type Subscription struct {
	C chan Event

	hub   *Hub
	id    int
	table string
}

const subscriptionBuffer = 16

// Subscribe registers a channel for changes on one table. The caller must
// Close the subscription when its view unmounts.
func (h *Hub) Subscribe(table string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		C:     make(chan Event, subscriptionBuffer),
		hub:   h,
		id:    h.nextId,
		table: table,
	}
	h.nextId++
	h.subs[sub.id] = sub

	return sub
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s.id]; ok {
		delete(s.hub.subs, s.id)
		close(s.C)
	}
}

// Publish delivers the event to every live subscription on its table. A
// subscriber that cannot keep up loses the event; list views recover on
// their next refetch.
func (h *Hub) Publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if sub.table != e.Table {
			continue
		}
		select {
		case sub.C <- e:
		default:
			slog.Warn("change feed subscriber is not keeping up, dropping event",
				"table", e.Table, "type", e.Type, "id", e.Id)
		}
	}
}
