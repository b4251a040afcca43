// Package realtime implements the live chat gateway: per-user rooms, the
// websocket connection pumps, and room fan-out across processes.
package realtime

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/sealchat/internal/logging"
)

type room struct {
	mu      sync.RWMutex
	members map[*Client]struct{}
	dead    bool
}

// Hub maps room names to the live connections joined to them. Each room
// has its own lock, so traffic in one room never waits on another.
type Hub struct {
	rooms  sync.Map // string -> *room
	logger logging.Logger
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{logger: logger.With("module", "hub")}
}

// Join adds c to the named room.
func (h *Hub) Join(name string, c *Client) {
	for {
		v, _ := h.rooms.LoadOrStore(name, &room{members: make(map[*Client]struct{})})
		r := v.(*room)

		r.mu.Lock()
		if r.dead {
			// emptied and unlinked concurrently; retry with a fresh room
			r.mu.Unlock()
			continue
		}
		r.members[c] = struct{}{}
		r.mu.Unlock()
		return
	}
}

// Leave removes c from the named room. Other connections stay joined.
func (h *Hub) Leave(name string, c *Client) {
	v, ok := h.rooms.Load(name)
	if !ok {
		return
	}
	r := v.(*room)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c)
	if len(r.members) == 0 && !r.dead {
		r.dead = true
		h.rooms.CompareAndDelete(name, r)
	}
}

// Deliver queues payload on every connection in the room and returns how
// many accepted it. Connections whose send queue is full are dropped.
// Delivering to an empty or unknown room is a no-op.
func (h *Hub) Deliver(name string, payload []byte) int {
	v, ok := h.rooms.Load(name)
	if !ok {
		return 0
	}
	r := v.(*room)

	r.mu.RLock()
	members := make([]*Client, 0, len(r.members))
	for c := range r.members {
		members = append(members, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range members {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.logger.Warn(context.Background(), "dropping slow connection", "room", name, "conn_id", c.id)
		h.Leave(name, c)
		c.close()
	}
	return delivered
}

// Size returns the number of connections joined to the room.
func (h *Hub) Size(name string) int {
	v, ok := h.rooms.Load(name)
	if !ok {
		return 0
	}
	r := v.(*room)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
