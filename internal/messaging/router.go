// Package messaging validates, persists and fans out chat messages, and derives unread
// state and history from the message store.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"chat-core/internal/hub"
	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

const maxTextLength = 4000

var (
	ErrInvalidEnvelope = errors.New("invalid message envelope")
	ErrUnknownGroup    = errors.New("unknown group")
	ErrNotMember       = errors.New("not a member of the group")
	ErrInvalidTarget   = errors.New("exactly one of to_user and group_id is required")
)

// Deliverer is the slice of the connection registry the messaging layer needs.
type Deliverer interface {
	SendToUsers(userIDs []int, event string, payload any) int
	ConnectionsFor(userID int) []hub.Conn
	SendToConn(conn hub.Conn, event string, payload any) bool
}

// MembershipResolver expands a group into its members.
type MembershipResolver interface {
	MembersOf(ctx context.Context, groupID int) ([]int, error)
}

type Router struct {
	messages repositories.MessageRepository
	groups   MembershipResolver
	hub      Deliverer
}

func NewRouter(messages repositories.MessageRepository, groups MembershipResolver, h Deliverer) *Router {
	return &Router{messages: messages, groups: groups, hub: h}
}

// Validate checks an envelope without side effects.
func Validate(env protocol.Envelope) error {
	if env.FromUser <= 0 {
		return fmt.Errorf("%w: from_user must be positive", ErrInvalidEnvelope)
	}
	if (env.ToUser == nil) == (env.GroupID == nil) {
		return fmt.Errorf("%w: exactly one of to_user and group_id must be set", ErrInvalidEnvelope)
	}
	if env.ToUser != nil && *env.ToUser <= 0 {
		return fmt.Errorf("%w: to_user must be positive", ErrInvalidEnvelope)
	}
	if env.GroupID != nil && *env.GroupID <= 0 {
		return fmt.Errorf("%w: group_id must be positive", ErrInvalidEnvelope)
	}
	if strings.TrimSpace(env.Text) == "" && env.FileURL == "" {
		return fmt.Errorf("%w: text or file is required", ErrInvalidEnvelope)
	}
	if len([]rune(env.Text)) > maxTextLength {
		return fmt.Errorf("%w: text longer than %d characters", ErrInvalidEnvelope, maxTextLength)
	}
	if env.FileName != "" && env.FileURL == "" {
		return fmt.Errorf("%w: file_name without file_url", ErrInvalidEnvelope)
	}
	return nil
}

// Route validates env, persists it and delivers the stored message to every live
// connection of the sender and the recipients. Recipients without connections catch up
// through history; the message is never queued for them.
func (r *Router) Route(ctx context.Context, env protocol.Envelope) (models.Message, error) {
	if err := Validate(env); err != nil {
		return models.Message{}, err
	}

	var recipients []int
	if env.GroupID != nil {
		members, err := r.groups.MembersOf(ctx, *env.GroupID)
		if err != nil {
			return models.Message{}, err
		}
		if len(members) == 0 {
			return models.Message{}, fmt.Errorf("%w: %d", ErrUnknownGroup, *env.GroupID)
		}
		if !contains(members, env.FromUser) {
			return models.Message{}, ErrNotMember
		}
		recipients = members
	} else {
		recipients = []int{*env.ToUser, env.FromUser}
	}

	msg := models.Message{
		FromUser: env.FromUser,
		ToUser:   env.ToUser,
		GroupID:  env.GroupID,
		Text:     env.Text,
	}
	if env.FileURL != "" {
		url, name := env.FileURL, env.FileName
		msg.FileURL = &url
		if name != "" {
			msg.FileName = &name
		}
	}

	stored, err := r.messages.CreateMessage(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("persist message: %w", err)
	}

	delivered := r.hub.SendToUsers(recipients, protocol.EventMessage, stored)
	kind := "direct"
	if stored.IsGroup() {
		kind = "group"
	}
	observability.IncMessageRouted(kind)
	log.Printf("message routed id=%d kind=%s from=%d deliveries=%d", stored.ID, kind, stored.FromUser, delivered)

	if err := observability.PublishEvent(ctx, observability.RouteMessageCreated, observability.NewEvent("domain", "message_created", stored)); err != nil {
		log.Printf("publish message created failed id=%d: %v", stored.ID, err)
	}
	return stored, nil
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
