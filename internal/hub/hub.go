// Package hub is the connection registry: it binds logical users to their live transport
// connections and fans frames out to them.
package hub

import (
	"log"
	"sync"

	"chat-core/internal/observability"
	"chat-core/internal/protocol"
)

// Conn is a live transport session. Send must not block on a slow peer.
type Conn interface {
	ID() string
	Send(frame []byte) error
	Close() error
}

// Transition is emitted when a user gains a first or loses a last connection.
// Seq increases monotonically across the hub so listeners can drop stale transitions.
type Transition struct {
	UserID int
	Online bool
	Seq    uint64
}

// Hub maintains the userID -> connections mapping.
type Hub struct {
	users    map[int]map[Conn]struct{}
	bindings map[Conn]int
	seq      uint64
	listener func(Transition)
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users:    make(map[int]map[Conn]struct{}),
		bindings: make(map[Conn]int),
	}
}

// OnTransition installs the presence listener. It is called outside the hub lock.
func (h *Hub) OnTransition(fn func(Transition)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = fn
}

// Register binds conn to userID. Re-registering the same pair is a no-op; registering a
// bound connection under another user moves it.
func (h *Hub) Register(conn Conn, userID int) {
	h.mu.Lock()
	var transitions []Transition
	if prev, ok := h.bindings[conn]; ok {
		if prev == userID {
			h.mu.Unlock()
			return
		}
		if t, ok := h.detachLocked(conn, prev); ok {
			transitions = append(transitions, t)
		}
	}

	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[Conn]struct{})
		h.users[userID] = conns
	}
	conns[conn] = struct{}{}
	h.bindings[conn] = userID
	if len(conns) == 1 {
		h.seq++
		transitions = append(transitions, Transition{UserID: userID, Online: true, Seq: h.seq})
	}
	listener := h.listener
	h.mu.Unlock()

	notify(listener, transitions)
}

// Unregister removes the binding of conn. Unknown connections are ignored.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	userID, ok := h.bindings[conn]
	if !ok {
		h.mu.Unlock()
		return
	}
	t, offline := h.detachLocked(conn, userID)
	listener := h.listener
	h.mu.Unlock()

	if offline {
		notify(listener, []Transition{t})
	}
}

func (h *Hub) detachLocked(conn Conn, userID int) (Transition, bool) {
	delete(h.bindings, conn)
	conns, ok := h.users[userID]
	if !ok {
		return Transition{}, false
	}
	delete(conns, conn)
	if len(conns) > 0 {
		return Transition{}, false
	}
	delete(h.users, userID)
	h.seq++
	return Transition{UserID: userID, Online: false, Seq: h.seq}, true
}

func notify(listener func(Transition), transitions []Transition) {
	if listener == nil {
		return
	}
	for _, t := range transitions {
		listener(t)
	}
}

// UserOf returns the user bound to conn.
func (h *Hub) UserOf(conn Conn) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	userID, ok := h.bindings[conn]
	return userID, ok
}

// ConnectionsFor returns the live connections of userID; empty when the user is offline.
func (h *Hub) ConnectionsFor(userID int) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.users[userID]
	out := make([]Conn, 0, len(conns))
	for conn := range conns {
		out = append(out, conn)
	}
	return out
}

// IsOnline reports whether userID has at least one live connection.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUsers lists every user with a live connection.
func (h *Hub) OnlineUsers() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]int, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// SendToUsers delivers one event to every connection of the given users, once per
// connection even if a user id repeats. It returns the number of successful deliveries.
func (h *Hub) SendToUsers(userIDs []int, event string, payload any) int {
	h.mu.RLock()
	seen := make(map[Conn]struct{})
	targets := make([]Conn, 0)
	for _, id := range userIDs {
		for conn := range h.users[id] {
			if _, dup := seen[conn]; dup {
				continue
			}
			seen[conn] = struct{}{}
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

// SendToConn delivers one event to a single connection, bound or not.
func (h *Hub) SendToConn(conn Conn, event string, payload any) bool {
	return h.deliver([]Conn{conn}, event, payload) == 1
}

// Broadcast delivers one event to every bound connection.
func (h *Hub) Broadcast(event string, payload any) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.bindings))
	for conn := range h.bindings {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event, payload)
}

// DisconnectUser closes and unregisters every connection of userID.
func (h *Hub) DisconnectUser(userID int) int {
	conns := h.ConnectionsFor(userID)
	for _, conn := range conns {
		_ = conn.Close()
		h.Unregister(conn)
	}
	return len(conns)
}

func (h *Hub) deliver(targets []Conn, event string, payload any) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("hub: encode %s: %v", event, err)
		return 0
	}

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(frame); err != nil {
			log.Printf("hub: send %s to conn=%s failed: %v", event, conn.ID(), err)
			observability.IncWSEvent(event, "send_error")
			_ = conn.Close()
			h.Unregister(conn)
			continue
		}
		delivered++
	}
	observability.AddDeliveries(event, delivered)
	return delivered
}
