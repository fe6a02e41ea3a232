// Package gateway maps users to their live websocket connections and turns
// tracker and signaling events into frames on them.
package gateway

import (
	"sync"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/metrics"
)

// Hub is the registry of live connections. Fan-out never blocks: a
// connection whose send buffer is full is dropped.
type Hub struct {
	mu     sync.RWMutex
	users  map[string]map[*Conn]struct{}
	byID   map[string]*Conn
	groups map[string]map[*Conn]struct{}

	onLeave []func(c *Conn)
}

func NewHub() *Hub {
	return &Hub{
		users:  make(map[string]map[*Conn]struct{}),
		byID:   make(map[string]*Conn),
		groups: make(map[string]map[*Conn]struct{}),
	}
}

// OnLeave registers fn to run after a connection is unregistered.
func (h *Hub) OnLeave(fn func(c *Conn)) {
	h.mu.Lock()
	h.onLeave = append(h.onLeave, fn)
	h.mu.Unlock()
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	set, ok := h.users[c.user]
	if !ok {
		set = make(map[*Conn]struct{})
		h.users[c.user] = set
	}
	set[c] = struct{}{}
	h.byID[c.id] = c
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	logger.Debug("ws_registered", "conn", c.id, "user", c.user)
}

// Unregister removes c from every index and closes its send queue. Safe to
// call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if _, ok := h.byID[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.byID, c.id)
	if set := h.users[c.user]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.user)
		}
	}
	for g := range c.joined {
		if set := h.groups[g]; set != nil {
			delete(set, c)
			if len(set) == 0 {
				delete(h.groups, g)
			}
		}
	}
	close(c.send)
	hooks := h.onLeave
	h.mu.Unlock()

	metrics.LiveConnections.Dec()
	logger.Debug("ws_unregistered", "conn", c.id, "user", c.user)
	for _, fn := range hooks {
		fn(c)
	}
}

// Join subscribes c to groupID's deliveries.
func (h *Hub) Join(c *Conn, groupID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[c.id]; !ok {
		return
	}
	set, ok := h.groups[groupID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.groups[groupID] = set
	}
	set[c] = struct{}{}
	c.joined[groupID] = struct{}{}
}

// Deliver sends event to every live connection of userID.
func (h *Hub) Deliver(userID, event string, payload any) int {
	msg, err := encode(event, "", payload)
	if err != nil {
		logger.Error("ws_encode_failed", "event", event, "error", err)
		return 0
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	return h.push(targets, msg)
}

// DeliverGroup sends event to the connections of userIDs that joined groupID.
func (h *Hub) DeliverGroup(groupID string, userIDs []string, event string, payload any) int {
	msg, err := encode(event, "", payload)
	if err != nil {
		logger.Error("ws_encode_failed", "event", event, "error", err)
		return 0
	}
	h.mu.RLock()
	joined := h.groups[groupID]
	var targets []*Conn
	for _, u := range userIDs {
		for c := range h.users[u] {
			if _, ok := joined[c]; ok {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()
	return h.push(targets, msg)
}

// SendTo sends event to a single connection.
func (h *Hub) SendTo(connID, event string, payload any) bool {
	msg, err := encode(event, "", payload)
	if err != nil {
		logger.Error("ws_encode_failed", "event", event, "error", err)
		return false
	}
	h.mu.RLock()
	c, ok := h.byID[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.push([]*Conn{c}, msg) == 1
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Connections is the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// CloseAll unregisters every connection, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Conn, 0, len(h.byID))
	for _, c := range h.byID {
		all = append(all, c)
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.Unregister(c)
	}
}

func (h *Hub) push(targets []*Conn, msg []byte) int {
	n := 0
	var slow []*Conn
	h.mu.RLock()
	for _, c := range targets {
		if _, live := h.byID[c.id]; !live {
			continue
		}
		select {
		case c.send <- msg:
			n++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		metrics.Dropped.Inc()
		logger.Warn("ws_send_buffer_full", "conn", c.id, "user", c.user)
		h.Unregister(c)
	}
	return n
}
