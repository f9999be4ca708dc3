package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/mocks"
)

func ids(conns []Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestHubRegisterAndUnregister(t *testing.T) {
	h := NewHub()
	conn := mocks.NewConn("a")

	h.Register(conn, 1)
	require.Len(t, h.ConnectionsFor(1), 1)
	assert.True(t, h.IsOnline(1))

	h.Unregister(conn)
	assert.Empty(t, h.ConnectionsFor(1))
	assert.False(t, h.IsOnline(1))
	assert.Empty(t, h.users)
}

func TestHubUnregisterUnknownConnIsNoop(t *testing.T) {
	h := NewHub()
	h.Unregister(mocks.NewConn("ghost"))
	assert.Empty(t, h.OnlineUsers())
}

func TestHubReRegisterMovesConnection(t *testing.T) {
	h := NewHub()
	conn := mocks.NewConn("a")

	h.Register(conn, 1)
	h.Register(conn, 1)
	require.Len(t, h.ConnectionsFor(1), 1)

	h.Register(conn, 2)
	assert.Empty(t, h.ConnectionsFor(1))
	assert.Equal(t, []string{"a"}, ids(h.ConnectionsFor(2)))

	userID, ok := h.UserOf(conn)
	require.True(t, ok)
	assert.Equal(t, 2, userID)
}

func TestHubTransitionsOnEdgesOnly(t *testing.T) {
	h := NewHub()
	var got []Transition
	h.OnTransition(func(tr Transition) { got = append(got, tr) })

	phone, laptop := mocks.NewConn("phone"), mocks.NewConn("laptop")
	h.Register(phone, 1)
	h.Register(laptop, 1)
	h.Unregister(phone)
	h.Unregister(laptop)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].UserID)
	assert.True(t, got[0].Online)
	assert.False(t, got[1].Online)
	assert.Greater(t, got[1].Seq, got[0].Seq)
}

func TestHubMoveEmitsOfflineForPreviousUser(t *testing.T) {
	h := NewHub()
	var got []Transition
	h.OnTransition(func(tr Transition) { got = append(got, tr) })

	conn := mocks.NewConn("a")
	h.Register(conn, 1)
	h.Register(conn, 2)

	require.Len(t, got, 3)
	assert.Equal(t, Transition{UserID: 1, Online: false, Seq: 2}, got[1])
	assert.Equal(t, Transition{UserID: 2, Online: true, Seq: 3}, got[2])
}

func TestHubSendToUsersDeliversOncePerConnection(t *testing.T) {
	h := NewHub()
	a1, a2, b, c := mocks.NewConn("a1"), mocks.NewConn("a2"), mocks.NewConn("b"), mocks.NewConn("c")
	h.Register(a1, 1)
	h.Register(a2, 1)
	h.Register(b, 2)
	h.Register(c, 3)

	n := h.SendToUsers([]int{1, 2, 1}, "message", map[string]int{"id": 7})

	assert.Equal(t, 3, n)
	assert.Len(t, a1.Events("message"), 1)
	assert.Len(t, a2.Events("message"), 1)
	assert.Len(t, b.Events("message"), 1)
	assert.Empty(t, c.Frames())
}

func TestHubDropsConnectionOnSendFailure(t *testing.T) {
	h := NewHub()
	good, bad := mocks.NewConn("good"), mocks.NewConn("bad")
	h.Register(good, 1)
	h.Register(bad, 1)
	bad.FailSends()

	n := h.SendToUsers([]int{1}, "message", "x")

	assert.Equal(t, 1, n)
	assert.True(t, bad.Closed())
	assert.Equal(t, []string{"good"}, ids(h.ConnectionsFor(1)))
}

func TestHubBroadcastAndDisconnectUser(t *testing.T) {
	h := NewHub()
	a, b := mocks.NewConn("a"), mocks.NewConn("b")
	h.Register(a, 1)
	h.Register(b, 2)

	assert.Equal(t, 2, h.Broadcast("user:created", map[string]int{"id": 9}))

	assert.Equal(t, 1, h.DisconnectUser(2))
	assert.True(t, b.Closed())
	assert.False(t, h.IsOnline(2))
	assert.True(t, h.IsOnline(1))
}

func TestHubConcurrentRegistration(t *testing.T) {
	h := NewHub()
	var wg sync.WaitGroup
	conns := make([]*mocks.Conn, 50)
	for i := range conns {
		conns[i] = mocks.NewConn(string(rune('A' + i)))
	}
	for i, conn := range conns {
		wg.Add(1)
		go func(i int, conn *mocks.Conn) {
			defer wg.Done()
			h.Register(conn, i%5+1)
			h.SendToUsers([]int{i%5 + 1}, "ping", nil)
		}(i, conn)
	}
	wg.Wait()

	total := 0
	for id := 1; id <= 5; id++ {
		total += len(h.ConnectionsFor(id))
	}
	assert.Equal(t, 50, total)

	for _, conn := range conns {
		wg.Add(1)
		go func(conn *mocks.Conn) {
			defer wg.Done()
			h.Unregister(conn)
		}(conn)
	}
	wg.Wait()
	assert.Empty(t, h.OnlineUsers())
}
