package repositories

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-core/internal/models"
)

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, error)
	MembersOf(ctx context.Context, groupID int) ([]int, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group and its members atomically. The creator is always a member.
func (r *GroupRepo) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (group models.Group, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	group = models.Group{Name: name, CreatedBy: creatorID, CreatedAt: now()}
	if err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO chat_groups (name, created_by, created_at) VALUES (?, ?, ?) RETURNING id`),
		name, creatorID, group.CreatedAt).Scan(&group.ID); err != nil {
		return models.Group{}, err
	}

	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`), group.ID, id, group.CreatedAt); err != nil {
			return models.Group{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	group.Members = ids
	return group, nil
}

// MembersOf lists member ids in ascending order; an unknown group has none.
func (r *GroupRepo) MembersOf(ctx context.Context, groupID int) ([]int, error) {
	members := []int{}
	err := r.db.SelectContext(ctx, &members, r.db.Rebind(`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`), groupID)
	return members, err
}

// ListGroupsForUser returns groups that include the user, newest first, with members.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	groups := []models.Group{}
	err := r.db.SelectContext(ctx, &groups, r.db.Rebind(`SELECT g.id, g.name, g.created_by, g.created_at FROM chat_groups g
        INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id = ? ORDER BY g.id DESC`), userID)
	if err != nil || len(groups) == 0 {
		return groups, err
	}

	ids := make([]int, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	query, args, err := sqlx.In(`SELECT group_id, user_id FROM group_members WHERE group_id IN (?) ORDER BY user_id`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		GroupID int `db:"group_id"`
		UserID  int `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byGroup := make(map[int][]int, len(groups))
	for _, row := range rows {
		byGroup[row.GroupID] = append(byGroup[row.GroupID], row.UserID)
	}
	for i := range groups {
		groups[i].Members = byGroup[groups[i].ID]
	}
	return groups, nil
}
