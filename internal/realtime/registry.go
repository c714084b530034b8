// Package realtime implements the live WebSocket channel: an in-memory room
// registry, per-connection read and write pumps, and the upgrade handler that
// dispatches inbound events to the chat gateway.
package realtime

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/observability"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

var _ services.Publisher = (*Registry)(nil)

// Registry maps rooms to the connections subscribed to them. Rooms are
// conversation ids and user ids (each connection sits in its user's personal
// room).
//
// All pushes are serialized under one lock, so every subscriber of a room
// observes events in the same order. Sends are non-blocking; a connection
// whose buffer is full is dropped.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]map[string]struct{}),
	}
}

// Register tracks c so that it receives broadcasts and may join rooms.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; !ok {
		r.clients[c] = make(map[string]struct{})
		observability.WSConnections.Inc()
	}
}

// Join subscribes c to room. It reports false when c is not registered,
// which happens once the connection has been dropped.
func (r *Registry) Join(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms, ok := r.clients[c]
	if !ok {
		return false
	}
	rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	return true
}

// Leave unsubscribes c from room.
func (r *Registry) Leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rooms, ok := r.clients[c]; ok {
		delete(rooms, room)
	}
	r.leaveLocked(c, room)
}

// Disconnect removes c from every room and closes its send queue. Calling it
// again is a no-op.
func (r *Registry) Disconnect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(c)
}

// CloseAll disconnects every connection and returns how many there were.
// Their write loops send a close frame and exit.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for c := range r.clients {
		if r.removeLocked(c) {
			n++
		}
	}
	return n
}

// Publish delivers ev to every subscriber of room and returns how many
// connections it reached.
func (r *Registry) Publish(room string, ev domain.Event) int {
	return r.PublishMany([]string{room}, ev)
}

// PublishMany delivers ev once to each connection subscribed to any of rooms.
func (r *Registry) PublishMany(rooms []string, ev domain.Event) int {
	data, ok := encode(ev)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[*Client]struct{})
	var slow []*Client
	for _, room := range rooms {
		for c := range r.rooms[room] {
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			if !c.enqueue(data) {
				slow = append(slow, c)
			}
		}
	}
	return len(seen) - r.dropLocked(slow)
}

// Broadcast delivers ev to every connected client.
func (r *Registry) Broadcast(ev domain.Event) int {
	data, ok := encode(ev)
	if !ok {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var slow []*Client
	for c := range r.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	return len(r.clients) - r.dropLocked(slow)
}

// SendTo delivers ev to c alone. It reports false when c is gone or too slow.
func (r *Registry) SendTo(c *Client, ev domain.Event) bool {
	data, ok := encode(ev)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}
	if !c.enqueue(data) {
		r.dropLocked([]*Client{c})
		return false
	}
	return true
}

// Rooms lists the rooms c is subscribed to, sorted.
func (r *Registry) Rooms(c *Client) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.clients[c]))
	for room := range r.clients[c] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// Members counts the connections subscribed to room.
func (r *Registry) Members(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Connections counts registered connections.
func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) leaveLocked(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

func (r *Registry) removeLocked(c *Client) bool {
	rooms, ok := r.clients[c]
	if !ok {
		return false
	}
	for room := range rooms {
		r.leaveLocked(c, room)
	}
	delete(r.clients, c)
	close(c.send)
	observability.WSConnections.Dec()
	return true
}

func (r *Registry) dropLocked(slow []*Client) int {
	n := 0
	for _, c := range slow {
		if r.removeLocked(c) {
			n++
			log.Warn().
				Str("conn_id", c.ID).
				Str("user_id", c.UserID).
				Msg("dropping slow websocket consumer")
		}
	}
	return n
}

func encode(ev domain.Event) ([]byte, bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("encode event")
		return nil, false
	}
	return data, true
}
