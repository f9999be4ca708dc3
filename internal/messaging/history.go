package messaging

import (
	"context"
	"fmt"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

// HistoryQuery selects one conversation page. Exactly one of ToUser and GroupID is set.
type HistoryQuery struct {
	ToUser   int
	GroupID  int
	BeforeID int
	Limit    int
}

// History serves the fetch-on-reconnect path.
type History struct {
	messages     repositories.MessageRepository
	groups       MembershipResolver
	defaultLimit int
	maxLimit     int
}

func NewHistory(messages repositories.MessageRepository, groups MembershipResolver, defaultLimit int) *History {
	return &History{messages: messages, groups: groups, defaultLimit: defaultLimit, maxLimit: 4 * defaultLimit}
}

// Fetch returns the newest page of the conversation older than BeforeID, oldest first.
func (h *History) Fetch(ctx context.Context, userID int, q HistoryQuery) ([]models.Message, error) {
	if (q.ToUser > 0) == (q.GroupID > 0) || q.ToUser < 0 || q.GroupID < 0 || q.BeforeID < 0 {
		return nil, ErrInvalidTarget
	}
	limit := q.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	if q.ToUser > 0 {
		msgs, err := h.messages.DirectHistory(ctx, userID, q.ToUser, q.BeforeID, limit)
		if err != nil {
			return nil, fmt.Errorf("direct history: %w", err)
		}
		return msgs, nil
	}

	members, err := h.groups.MembersOf(ctx, q.GroupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, ErrUnknownGroup
	}
	if !contains(members, userID) {
		return nil, ErrNotMember
	}
	msgs, err := h.messages.GroupHistory(ctx, q.GroupID, q.BeforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("group history: %w", err)
	}
	return msgs, nil
}
