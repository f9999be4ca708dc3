// Package groups resolves group membership and creates groups.
package groups

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"chat-core/internal/models"
	"chat-core/internal/observability"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

const maxNameLength = 100

var (
	ErrInvalidName   = errors.New("group name must be 1-100 characters")
	ErrInvalidMember = errors.New("group member ids must be positive")
)

// Notifier delivers a named event to every connection of the given users.
type Notifier interface {
	SendToUsers(userIDs []int, event string, payload any) int
}

type Service struct {
	repo     repositories.GroupRepository
	notifier Notifier
}

func NewService(repo repositories.GroupRepository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// MembersOf returns the member ids of groupID; an unknown group has none.
func (s *Service) MembersOf(ctx context.Context, groupID int) ([]int, error) {
	if groupID <= 0 {
		return []int{}, nil
	}
	members, err := s.repo.MembersOf(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("members of group %d: %w", groupID, err)
	}
	return members, nil
}

// CreateGroup persists a group whose members are the deduplicated members plus the
// creator, then announces it to every member.
func (s *Service) CreateGroup(ctx context.Context, creatorID int, name string, members []int) (models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return models.Group{}, ErrInvalidName
	}
	if creatorID <= 0 {
		return models.Group{}, ErrInvalidMember
	}

	set := map[int]struct{}{creatorID: {}}
	for _, id := range members {
		if id <= 0 {
			return models.Group{}, ErrInvalidMember
		}
		set[id] = struct{}{}
	}
	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	group, err := s.repo.CreateGroup(ctx, creatorID, name, ids)
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	if len(group.Members) == 0 {
		group.Members = ids
	}

	s.notifier.SendToUsers(group.Members, protocol.EventGroupCreated, protocol.GroupCreated{
		ID:      group.ID,
		Name:    group.Name,
		Members: group.Members,
	})

	if err := observability.PublishEvent(ctx, observability.RouteGroupCreated, observability.NewEvent("domain", "group_created", group)); err != nil {
		log.Printf("publish group created failed group_id=%d: %v", group.ID, err)
	}
	return group, nil
}

// GroupsFor lists the groups userID belongs to.
func (s *Service) GroupsFor(ctx context.Context, userID int) ([]models.Group, error) {
	groups, err := s.repo.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("groups for user %d: %w", userID, err)
	}
	return groups, nil
}
