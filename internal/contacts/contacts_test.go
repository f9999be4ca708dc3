package contacts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-core/internal/db"
	"chat-core/internal/hub"
	"chat-core/internal/mocks"
	"chat-core/internal/models"
	"chat-core/internal/protocol"
	"chat-core/internal/repositories"
)

type recordingAuditor struct {
	mu    sync.Mutex
	texts []string
}

func (a *recordingAuditor) Emit(_ context.Context, _ string, text string, _ int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
}

type fixture struct {
	svc     *Service
	hub     *hub.Hub
	conns   map[int]*mocks.Conn
	auditor *recordingAuditor
}

func newFixture(t *testing.T, requireApproval bool) *fixture {
	t.Helper()
	conn, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	users := repositories.NewUserRepo(conn)
	f := &fixture{hub: hub.NewHub(), conns: map[int]*mocks.Conn{}, auditor: &recordingAuditor{}}
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, users.UpsertUser(context.Background(), models.User{ID: id, Name: "user", Username: "u"}))
		f.conns[id] = mocks.NewConn("conn")
		f.hub.Register(f.conns[id], id)
	}
	f.svc = NewService(repositories.NewConnectionRequestRepo(conn), users, f.hub, f.auditor, requireApproval)
	return f
}

func (f *fixture) apply(actor int, action models.RequestAction, from, to int) (models.ConnectionRequest, error) {
	return f.svc.Apply(context.Background(), actor, protocol.ConnectionUpdate{Action: action, FromUserID: from, ToUserID: to})
}

func (f *fixture) updates(userID int) []protocol.ConnectionUpdate {
	c := f.conns[userID]
	var out []protocol.ConnectionUpdate
	for i := range c.Events(protocol.EventConnectionsUpdate) {
		var u protocol.ConnectionUpdate
		if err := c.Decode(protocol.EventConnectionsUpdate, i, &u); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func ids(users []models.User) []int {
	out := []int{}
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestSendThenAcceptConnectsBothSides(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)

	received, err := f.svc.RequestsReceived(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(received))
	sent, err := f.svc.RequestsSent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids(sent))

	req, err := f.apply(2, models.ActionAccept, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.RequestAccepted, req.Status)

	for _, pair := range [][2]int{{1, 2}, {2, 1}} {
		roster, err := f.svc.Roster(ctx, pair[0])
		require.NoError(t, err)
		assert.Equal(t, []int{pair[1]}, ids(roster))

		sent, err := f.svc.RequestsSent(ctx, pair[0])
		require.NoError(t, err)
		assert.Empty(t, sent)
		received, err := f.svc.RequestsReceived(ctx, pair[0])
		require.NoError(t, err)
		assert.Empty(t, received)
	}

	want := []protocol.ConnectionUpdate{
		{Action: models.ActionSend, FromUserID: 1, ToUserID: 2},
		{Action: models.ActionAccept, FromUserID: 1, ToUserID: 2},
	}
	assert.Equal(t, want, f.updates(1))
	assert.Equal(t, want, f.updates(2))
	assert.Empty(t, f.updates(3))

	// connected users cannot send again
	_, err = f.apply(2, models.ActionSend, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteWithdrawsRequest(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)
	_, err = f.apply(1, models.ActionDelete, 1, 2)
	require.NoError(t, err)

	sent, err := f.svc.RequestsSent(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, sent)
	received, err := f.svc.RequestsReceived(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, received)

	assert.Equal(t, f.updates(1), f.updates(2))
	assert.Len(t, f.updates(2), 2)

	// the pair is back to none
	_, err = f.apply(2, models.ActionSend, 2, 1)
	assert.NoError(t, err)
}

func TestTerminalActionsAreNoops(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)
	_, err = f.apply(2, models.ActionReject, 1, 2)
	require.NoError(t, err)
	before1, before2 := len(f.updates(1)), len(f.updates(2))

	_, err = f.apply(2, models.ActionReject, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.apply(1, models.ActionDelete, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.apply(2, models.ActionAccept, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Len(t, f.updates(1), before1)
	assert.Len(t, f.updates(2), before2)
}

func TestActorRules(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.apply(2, models.ActionSend, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)

	_, err = f.apply(1, models.ActionAccept, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.apply(3, models.ActionReject, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.apply(2, models.ActionDelete, 1, 2)
	assert.ErrorIs(t, err, ErrForbidden)

	// the reverse direction is not the pending request
	_, err = f.apply(1, models.ActionAccept, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.apply(2, models.ActionSend, 2, 1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.apply(1, models.ActionSend, 1, 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.apply(1, "poke", 1, 2)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestConcurrentAcceptAndDeleteCommitOnce(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = f.apply(2, models.ActionAccept, 1, 2) }()
	go func() { defer wg.Done(); _, errs[1] = f.apply(1, models.ActionDelete, 1, 2) }()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, f.updates(1), f.updates(2))
	assert.Len(t, f.updates(1), 2)
	assert.Zero(t, f.svc.locks.size())
}

func TestApprovalGate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	req, err := f.apply(1, models.ActionSend, 1, 2)
	require.NoError(t, err)
	assert.Len(t, f.updates(1), 1)
	assert.Empty(t, f.updates(2))

	received, err := f.svc.RequestsReceived(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, received)

	_, err = f.apply(2, models.ActionAccept, 1, 2)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Approve(ctx, req.ID, 9)
	require.NoError(t, err)
	frames := f.conns[2].Events(protocol.EventRequestReceived)
	require.Len(t, frames, 1)
	var payload protocol.RequestReceived
	require.NoError(t, f.conns[2].Decode(protocol.EventRequestReceived, 0, &payload))
	assert.Equal(t, 1, payload.FromUser.ID)

	_, err = f.svc.Approve(ctx, req.ID, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.apply(2, models.ActionAccept, 1, 2)
	require.NoError(t, err)
	assert.Len(t, f.auditor.texts, 1)

	_, err = f.svc.Approve(ctx, 999, 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminRejectNotifiesSenderOnly(t *testing.T) {
	f := newFixture(t, true)
	req, err := f.apply(1, models.ActionSend, 1, 3)
	require.NoError(t, err)

	out, err := f.svc.AdminReject(context.Background(), req.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, out.Status)
	assert.Len(t, f.updates(1), 2)
	assert.Empty(t, f.updates(3))
}

func TestInjectEntersSentState(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	req, err := f.svc.Inject(ctx, 3, 1, 9)
	require.NoError(t, err)
	assert.True(t, req.VisibleToRecipient())

	assert.Equal(t, []protocol.ConnectionUpdate{{Action: models.ActionSend, FromUserID: 3, ToUserID: 1}}, f.updates(3))
	assert.Len(t, f.conns[1].Events(protocol.EventRequestReceived), 1)

	received, err := f.svc.RequestsReceived(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids(received))

	_, err = f.svc.Inject(ctx, 1, 3, 9)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Approved)
}

func TestStoreErrorsPropagate(t *testing.T) {
	repo := new(mocks.ConnectionRequestRepositoryMock)
	repo.On("AreContacts", mock.Anything, 1, 2).Return(false, assert.AnError).Once()
	svc := NewService(repo, new(mocks.UserRepositoryMock), hub.NewHub(), nil, false)

	_, err := svc.Apply(context.Background(), 1, protocol.ConnectionUpdate{Action: models.ActionSend, FromUserID: 1, ToUserID: 2})
	assert.ErrorIs(t, err, assert.AnError)
	repo.AssertExpectations(t)
}

func TestDiscoverableExcludesSelfContactsAndPending(t *testing.T) {
	conn, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()

	office, elsewhere := "10.0.0.1", "10.0.0.2"
	users := repositories.NewUserRepo(conn)
	seed := []models.User{
		{ID: 1, Name: "Ann", Username: "ann", IPAddress: &office},
		{ID: 2, Name: "Bob", Username: "bob", IPAddress: &office},
		{ID: 3, Name: "Cid", Username: "cid", IPAddress: &office},
		{ID: 4, Name: "Dee", Username: "dee", IPAddress: &office},
		{ID: 5, Name: "Eve", Username: "eve", IPAddress: &office, AccountStatus: models.AccountBlocked},
		{ID: 6, Name: "Fay", Username: "fay", IPAddress: &office},
		{ID: 7, Name: "Gus", Username: "gus", IPAddress: &elsewhere},
	}
	for _, u := range seed {
		require.NoError(t, users.UpsertUser(ctx, u))
	}
	svc := NewService(repositories.NewConnectionRequestRepo(conn), users, hub.NewHub(), nil, false)
	send := func(actor int, action models.RequestAction, from, to int) {
		_, err := svc.Apply(ctx, actor, protocol.ConnectionUpdate{Action: action, FromUserID: from, ToUserID: to})
		require.NoError(t, err)
	}

	send(1, models.ActionSend, 1, 2)
	send(2, models.ActionAccept, 1, 2) // contact
	send(1, models.ActionSend, 1, 3)   // pending outgoing
	send(4, models.ActionSend, 4, 1)   // pending incoming
	send(6, models.ActionSend, 6, 1)
	send(1, models.ActionReject, 6, 1) // closed requests do not hide anyone

	found, err := svc.Discoverable(ctx, 1, "")
	require.NoError(t, err)
	assert.Equal(t, []int{6}, ids(found))

	found, err = svc.Discoverable(ctx, 1, elsewhere)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, ids(found))

	// Bob's own view: Ann is a contact, Cid and Dee are open
	found, err = svc.Discoverable(ctx, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 6}, ids(found))
}

func TestDiscoverableWithoutLocationIsEmpty(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1}, nil).Once()
	svc := NewService(new(mocks.ConnectionRequestRepositoryMock), users, hub.NewHub(), nil, false)

	found, err := svc.Discoverable(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Empty(t, found)
	users.AssertExpectations(t)
}
