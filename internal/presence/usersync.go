package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/rabbitmq"
)

// UserMirror is the writable local copy of the external user store.
type UserMirror interface {
	UpsertUser(ctx context.Context, user models.User) error
}

// UserSync applies users.created and users.updated events from the user store: the local
// mirror is refreshed, the change is relayed to clients, and users whose account is no
// longer active lose their connections.
type UserSync struct {
	mirror  UserMirror
	tracker *Tracker
	hub     Deliverer
}

func NewUserSync(mirror UserMirror, tracker *Tracker, h Deliverer) *UserSync {
	return &UserSync{mirror: mirror, tracker: tracker, hub: h}
}

// Handle matches rabbitmq.HandlerFunc.
func (s *UserSync) Handle(ctx context.Context, routingKey string, body []byte) error {
	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		return fmt.Errorf("%w: decode user: %v", rabbitmq.ErrPermanent, err)
	}
	if user.ID <= 0 {
		return fmt.Errorf("%w: user id must be positive", rabbitmq.ErrPermanent)
	}

	if err := s.mirror.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	user.Presence = s.tracker.Presence(user.ID)

	switch routingKey {
	case rabbitmq.RouteUserCreated:
		s.hub.Broadcast(protocol.EventUserCreated, user)
	case rabbitmq.RouteUserUpdated:
		s.tracker.Announce(ctx, user)
	default:
		return fmt.Errorf("%w: unexpected routing key %q", rabbitmq.ErrPermanent, routingKey)
	}

	if !user.Active() {
		if n := s.hub.DisconnectUser(user.ID); n > 0 {
			log.Printf("presence: disconnected %d connections of inactive user_id=%d status=%s", n, user.ID, user.AccountStatus)
		}
	}
	return nil
}
