package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-core/internal/models"
	"chat-core/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, userIDs []int) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) IDsAtLocation(ctx context.Context, ipAddress string) ([]int, error) {
	args := m.Called(ctx, ipAddress)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *UserRepositoryMock) UpdatePresence(ctx context.Context, userID int, presence models.Presence, lastSeen *time.Time) error {
	args := m.Called(ctx, userID, presence, lastSeen)
	return args.Error(0)
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) DirectHistory(ctx context.Context, userA, userB, beforeID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB, beforeID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GroupHistory(ctx context.Context, groupID, beforeID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, beforeID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LatestForeign(ctx context.Context, userID int) ([]repositories.ConversationHead, error) {
	args := m.Called(ctx, userID)
	var heads []repositories.ConversationHead
	if val := args.Get(0); val != nil {
		heads = val.([]repositories.ConversationHead)
	}
	return heads, args.Error(1)
}

func (m *MessageRepositoryMock) ReadCursors(ctx context.Context, userID int) (map[string]int, error) {
	args := m.Called(ctx, userID)
	var cursors map[string]int
	if val := args.Get(0); val != nil {
		cursors = val.(map[string]int)
	}
	return cursors, args.Error(1)
}

func (m *MessageRepositoryMock) AdvanceCursor(ctx context.Context, userID int, conversationKey string, messageID int) (int, error) {
	args := m.Called(ctx, userID, conversationKey, messageID)
	return args.Int(0), args.Error(1)
}

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Group, error) {
	args := m.Called(ctx, creatorID, name, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) MembersOf(ctx context.Context, groupID int) ([]int, error) {
	args := m.Called(ctx, groupID)
	var members []int
	if val := args.Get(0); val != nil {
		members = val.([]int)
	}
	return members, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	args := m.Called(ctx, userID)
	var groups []models.Group
	if val := args.Get(0); val != nil {
		groups = val.([]models.Group)
	}
	return groups, args.Error(1)
}

type ConnectionRequestRepositoryMock struct {
	mock.Mock
}

func (m *ConnectionRequestRepositoryMock) request(args mock.Arguments) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	if val := args.Get(0); val != nil {
		req = val.(models.ConnectionRequest)
	}
	return req, args.Error(1)
}

func (m *ConnectionRequestRepositoryMock) users(args mock.Arguments) ([]models.User, error) {
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *ConnectionRequestRepositoryMock) GetRequest(ctx context.Context, requestID int) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, requestID))
}

func (m *ConnectionRequestRepositoryMock) ActiveForPair(ctx context.Context, userA, userB int) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, userA, userB))
}

func (m *ConnectionRequestRepositoryMock) CreateRequest(ctx context.Context, fromUserID, toUserID int, approval models.ApprovalStatus, approvedBy *int) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, fromUserID, toUserID, approval, approvedBy))
}

func (m *ConnectionRequestRepositoryMock) CloseRequest(ctx context.Context, requestID int, status models.RequestStatus) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, requestID, status))
}

func (m *ConnectionRequestRepositoryMock) AcceptRequest(ctx context.Context, requestID int) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, requestID))
}

func (m *ConnectionRequestRepositoryMock) SetApproval(ctx context.Context, requestID int, approval models.ApprovalStatus, adminID int) (models.ConnectionRequest, error) {
	return m.request(m.Called(ctx, requestID, approval, adminID))
}

func (m *ConnectionRequestRepositoryMock) AreContacts(ctx context.Context, userA, userB int) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *ConnectionRequestRepositoryMock) PendingPeerIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ConnectionRequestRepositoryMock) ContactIDs(ctx context.Context, userID int) ([]int, error) {
	args := m.Called(ctx, userID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *ConnectionRequestRepositoryMock) Contacts(ctx context.Context, userID int) ([]models.User, error) {
	return m.users(m.Called(ctx, userID))
}

func (m *ConnectionRequestRepositoryMock) SentPending(ctx context.Context, userID int) ([]models.User, error) {
	return m.users(m.Called(ctx, userID))
}

func (m *ConnectionRequestRepositoryMock) ReceivedPending(ctx context.Context, userID int) ([]models.User, error) {
	return m.users(m.Called(ctx, userID))
}

func (m *ConnectionRequestRepositoryMock) Stats(ctx context.Context) (models.RequestStats, error) {
	args := m.Called(ctx)
	var stats models.RequestStats
	if val := args.Get(0); val != nil {
		stats = val.(models.RequestStats)
	}
	return stats, args.Error(1)
}
