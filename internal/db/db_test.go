package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteAppliesSchema(t *testing.T) {
	conn, err := Connect(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"users", "chat_groups", "group_members", "messages", "connection_requests", "contacts", "read_cursors"} {
		var n int
		require.NoError(t, conn.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table))
		assert.Equal(t, 1, n, table)
	}

	// migrations are idempotent
	require.NoError(t, runMigrations(conn, DriverSQLite))
}

func TestActivePairIndexAllowsOneSentRequest(t *testing.T) {
	conn, err := Connect(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	insert := `INSERT INTO connection_requests (from_user_id, to_user_id, user_low, user_high, status) VALUES (?, ?, ?, ?, ?)`
	_, err = conn.Exec(insert, 1, 2, 1, 2, "sent")
	require.NoError(t, err)
	_, err = conn.Exec(insert, 2, 1, 1, 2, "sent")
	assert.Error(t, err)

	_, err = conn.Exec(insert, 2, 1, 1, 2, "rejected")
	assert.NoError(t, err)
}

func TestMessageNeedsExactlyOneTarget(t *testing.T) {
	conn, err := Connect(DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`INSERT INTO messages (from_user, text) VALUES (1, 'hi')`)
	assert.Error(t, err)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("mysql", "x")
	assert.Error(t, err)
}
