// Package presence derives online/offline from connection-registry edges and relays
// client-asserted away/busy values to interested users.
package presence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chat-core/internal/hub"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
)

var (
	ErrInvalidPresence = errors.New("presence must be online, away or busy")
	ErrNotConnected    = errors.New("user has no live connection")
)

const storeTimeout = 5 * time.Second

// Deliverer is the slice of the connection registry presence needs.
type Deliverer interface {
	SendToUsers(userIDs []int, event string, payload any) int
	Broadcast(event string, payload any) int
	IsOnline(userID int) bool
	DisconnectUser(userID int) int
}

// UserStore reads users and persists presence.
type UserStore interface {
	GetUser(ctx context.Context, userID int) (models.User, error)
	UpdatePresence(ctx context.Context, userID int, presence models.Presence, lastSeen *time.Time) error
}

// RosterSource lists who should hear about a user's presence.
type RosterSource interface {
	ContactIDs(ctx context.Context, userID int) ([]int, error)
}

type userState struct {
	mu       sync.Mutex
	seq      uint64
	presence models.Presence
}

type Tracker struct {
	users  UserStore
	roster RosterSource
	hub    Deliverer
	now    func() time.Time

	mu    sync.Mutex
	state map[int]*userState
}

func NewTracker(users UserStore, roster RosterSource, h Deliverer) *Tracker {
	return &Tracker{
		users:  users,
		roster: roster,
		hub:    h,
		now:    time.Now,
		state:  make(map[int]*userState),
	}
}

func (t *Tracker) stateFor(userID int) *userState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.state[userID]
	if !ok {
		s = &userState{presence: models.PresenceOffline}
		t.state[userID] = s
	}
	return s
}

// Presence returns the last known presence of userID.
func (t *Tracker) Presence(userID int) models.Presence {
	s := t.stateFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// HandleTransition applies a registry edge. Transitions older than one already applied
// for the same user are dropped.
func (t *Tracker) HandleTransition(tr hub.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	s := t.stateFor(tr.UserID)
	s.mu.Lock()
	if tr.Seq <= s.seq {
		s.mu.Unlock()
		log.Printf("presence: drop stale transition user_id=%d seq=%d", tr.UserID, tr.Seq)
		return
	}
	s.seq = tr.Seq

	var user models.User
	if tr.Online {
		user = t.store(ctx, s, tr.UserID, models.PresenceOnline, nil)
	} else {
		seen := t.now().UTC()
		user = t.store(ctx, s, tr.UserID, models.PresenceOffline, &seen)
	}
	s.mu.Unlock()

	// a failed send re-enters HandleTransition through the registry, so fan-out runs unlocked
	t.publish(ctx, user)
}

// SetStatus relays a client-asserted presence for a connected user.
func (t *Tracker) SetStatus(ctx context.Context, userID int, p models.Presence) error {
	if !p.Valid() || p == models.PresenceOffline {
		return ErrInvalidPresence
	}
	s := t.stateFor(userID)
	s.mu.Lock()
	// checked under the user lock so a concurrent offline edge applies after this store
	if !t.hub.IsOnline(userID) {
		s.mu.Unlock()
		return ErrNotConnected
	}
	user := t.store(ctx, s, userID, p, nil)
	s.mu.Unlock()

	t.publish(ctx, user)
	return nil
}

// store records p in memory and in the user store. A store failure is logged; the
// in-memory value stands.
func (t *Tracker) store(ctx context.Context, s *userState, userID int, p models.Presence, lastSeen *time.Time) models.User {
	s.presence = p
	observability.IncPresenceChange(string(p))

	if err := t.users.UpdatePresence(ctx, userID, p, lastSeen); err != nil {
		log.Printf("presence: store user_id=%d presence=%s failed: %v", userID, p, err)
	}

	user, err := t.users.GetUser(ctx, userID)
	if err != nil {
		user = models.User{ID: userID}
	}
	user.Presence = p
	if lastSeen != nil {
		user.LastSeen = lastSeen
	}
	return user
}

func (t *Tracker) publish(ctx context.Context, user models.User) {
	t.Announce(ctx, user)

	event := observability.NewEvent("domain", "presence_updated", map[string]any{"user_id": user.ID, "presence": user.Presence})
	if err := observability.PublishEvent(ctx, observability.RoutePresence, event); err != nil {
		log.Printf("presence: publish failed user_id=%d: %v", user.ID, err)
	}
}

// Announce sends user:updated to the user's contacts and the user's own connections.
func (t *Tracker) Announce(ctx context.Context, user models.User) {
	audience := []int{user.ID}
	contacts, err := t.roster.ContactIDs(ctx, user.ID)
	if err != nil {
		log.Printf("presence: roster of user_id=%d failed: %v", user.ID, err)
	}
	audience = append(audience, contacts...)
	t.hub.SendToUsers(audience, protocol.EventUserUpdated, user)
}
