package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB(t *testing.T) {
	database, err := New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	defer database.Close()

	var journalMode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, database.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())
	return database
}

func TestMessageCascadeOnChannelDelete(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO channels (id, kind, name, created_at) VALUES ('c1', 'room', 'general', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO messages (id, seq, channel_id, author, body, created_at) VALUES ('m1', 1, 'c1', 'alice', 'hi', '2024-01-01T00:00:01Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO reactions (message_id, emoji, username) VALUES ('m1', '👍', 'bob')`)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM channels WHERE id = 'c1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n))
	assert.Equal(t, 0, n)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM reactions`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRoomNamesUnique(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO channels (id, kind, name, created_at) VALUES ('c1', 'room', 'general', '2024-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO channels (id, kind, name, created_at) VALUES ('c2', 'room', 'general', '2024-01-01T00:00:00Z')`)
	assert.Error(t, err)
}
