package groups

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/hub"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
)

func TestCreateGroupAnnouncesToEveryMember(t *testing.T) {
	repo := new(mocks.GroupRepositoryMock)
	h := hub.NewHub()
	creator, member, outsider := mocks.NewConn("c1"), mocks.NewConn("c2"), mocks.NewConn("c3")
	h.Register(creator, 1)
	h.Register(member, 2)
	h.Register(outsider, 3)

	repo.On("CreateGroup", mock.Anything, 1, "Team", []int{1, 2}).
		Return(models.Group{ID: 7, Name: "Team", CreatedBy: 1, Members: []int{1, 2}}, nil).Once()

	svc := NewService(repo, h)
	group, err := svc.CreateGroup(context.Background(), 1, "  Team ", []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, 7, group.ID)

	for _, c := range []*mocks.Conn{creator, member} {
		require.Len(t, c.Events(protocol.EventGroupCreated), 1)
		var payload protocol.GroupCreated
		require.NoError(t, c.Decode(protocol.EventGroupCreated, 0, &payload))
		assert.Equal(t, protocol.GroupCreated{ID: 7, Name: "Team", Members: []int{1, 2}}, payload)
	}
	assert.Empty(t, outsider.Events(protocol.EventGroupCreated))
	repo.AssertExpectations(t)
}

func TestCreateGroupValidation(t *testing.T) {
	repo := new(mocks.GroupRepositoryMock)
	svc := NewService(repo, hub.NewHub())

	_, err := svc.CreateGroup(context.Background(), 1, "   ", nil)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.CreateGroup(context.Background(), 1, "ok", []int{0})
	assert.ErrorIs(t, err, ErrInvalidMember)

	repo.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateGroupStoreFailureSendsNothing(t *testing.T) {
	repo := new(mocks.GroupRepositoryMock)
	h := hub.NewHub()
	conn := mocks.NewConn("c1")
	h.Register(conn, 1)

	repo.On("CreateGroup", mock.Anything, 1, "x", []int{1}).Return(nil, errors.New("boom")).Once()

	_, err := NewService(repo, h).CreateGroup(context.Background(), 1, "x", nil)
	assert.Error(t, err)
	assert.Empty(t, conn.Events(protocol.EventGroupCreated))
}

func TestMembersOfUnknownGroupIsEmpty(t *testing.T) {
	repo := new(mocks.GroupRepositoryMock)
	repo.On("MembersOf", mock.Anything, 9).Return([]int{}, nil).Once()
	svc := NewService(repo, hub.NewHub())

	members, err := svc.MembersOf(context.Background(), 9)
	require.NoError(t, err)
	assert.Empty(t, members)

	members, err = svc.MembersOf(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, members)
	repo.AssertExpectations(t)
}
