package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"chat-core/internal/hub"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

// Unread derives per-conversation unread flags from read cursors.
type Unread struct {
	messages repositories.MessageRepository
	groups   MembershipResolver
	hub      Deliverer
}

func NewUnread(messages repositories.MessageRepository, groups MembershipResolver, h Deliverer) *Unread {
	return &Unread{messages: messages, groups: groups, hub: h}
}

// UnreadFor returns the conversations with a foreign message newer than the user's cursor,
// keyed "user-<peer>" for direct and "group-<id>" for group conversations.
func (u *Unread) UnreadFor(ctx context.Context, userID int) (map[string]bool, error) {
	heads, err := u.messages.LatestForeign(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	cursors, err := u.messages.ReadCursors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read cursors: %w", err)
	}

	unread := make(map[string]bool)
	for _, h := range heads {
		if h.LastMessageID > cursors[h.Key(userID)] {
			unread[label(h)] = true
		}
	}
	return unread, nil
}

func label(h repositories.ConversationHead) string {
	if h.GroupID > 0 {
		return "group-" + strconv.Itoa(h.GroupID)
	}
	return "user-" + strconv.Itoa(h.PeerID)
}

// MarkRead advances userID's cursor in one conversation and echoes the stored position to
// the user's other connections. origin may be nil.
func (u *Unread) MarkRead(ctx context.Context, userID int, req protocol.MarkRead, origin hub.Conn) (protocol.MarkRead, error) {
	var key string
	switch {
	case req.ToUser != nil && req.GroupID == nil && *req.ToUser > 0:
		key = models.DirectKey(userID, *req.ToUser)
	case req.GroupID != nil && req.ToUser == nil && *req.GroupID > 0:
		members, err := u.groups.MembersOf(ctx, *req.GroupID)
		if err != nil {
			return protocol.MarkRead{}, err
		}
		if !contains(members, userID) {
			return protocol.MarkRead{}, ErrNotMember
		}
		key = models.GroupKey(*req.GroupID)
	default:
		return protocol.MarkRead{}, ErrInvalidTarget
	}
	if req.MessageID <= 0 {
		return protocol.MarkRead{}, fmt.Errorf("%w: message_id must be positive", ErrInvalidEnvelope)
	}
	// the cursor only ever points at a stored message of this conversation
	msg, err := u.messages.GetMessage(ctx, req.MessageID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return protocol.MarkRead{}, fmt.Errorf("%w: unknown message %d", ErrInvalidEnvelope, req.MessageID)
	case err != nil:
		return protocol.MarkRead{}, fmt.Errorf("load message: %w", err)
	case msg.ConversationKey() != key:
		return protocol.MarkRead{}, fmt.Errorf("%w: message %d is not in this conversation", ErrInvalidEnvelope, req.MessageID)
	}

	stored, err := u.messages.AdvanceCursor(ctx, userID, key, req.MessageID)
	if err != nil {
		return protocol.MarkRead{}, fmt.Errorf("advance cursor: %w", err)
	}
	ack := protocol.MarkRead{ToUser: req.ToUser, GroupID: req.GroupID, MessageID: stored}

	for _, conn := range u.hub.ConnectionsFor(userID) {
		if origin != nil && conn == origin {
			continue
		}
		u.hub.SendToConn(conn, protocol.EventMessagesRead, ack)
	}
	return ack, nil
}
