package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urza/Yap/internal/db"
	"github.com/urza/Yap/internal/fts"
	"github.com/urza/Yap/internal/store"
)

// setupSearchServer returns a server whose search index reads st.
func setupSearchServer(t *testing.T) (*Server, *store.SQLite) {
	t.Helper()
	database, err := db.New(t.TempDir() + "/yap.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())

	idx, err := fts.New(database, "")
	require.NoError(t, err)
	require.NoError(t, idx.Ensure(context.Background()))

	srv := setupTestServer(t)
	srv = New(srv.chat, srv.realtime, Config{Search: idx})
	return srv, store.New(database)
}

func TestChannelSearch(t *testing.T) {
	srv, st := setupSearchServer(t)
	ctx := context.Background()
	lobby, _ := srv.chat.Directory().Default()
	require.NoError(t, st.PersistChannel(ctx, lobby))

	for i, body := range []string{"standup moved to ten", "coffee anyone?", "standup notes posted"} {
		m, ok := srv.chat.Messages().Send(lobby.ID, "alice", body, nil)
		require.True(t, ok, "message %d", i)
		require.NoError(t, st.PersistMessage(ctx, m))
	}

	var resp SearchResponse
	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=standup", &resp))
	assert.Equal(t, lobby.ID, resp.ChannelID)
	assert.Equal(t, "standup", resp.Query)
	assert.Len(t, resp.Hits, 2)

	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=standup&limit=1", &resp))
	assert.Len(t, resp.Hits, 1)

	require.Equal(t, http.StatusOK, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=standup+notes&type=phrase", &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "alice", resp.Hits[0].Author)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=x&type=regex", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=x&limit=-1", nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/channels/missing/search?q=x", nil))
}

func TestChannelSearchDirectAccess(t *testing.T) {
	srv, st := setupSearchServer(t)
	ctx := context.Background()
	joinSession(t, srv, "s1", "alice")
	bob := joinSession(t, srv, "s2", "bob")
	carol := joinSession(t, srv, "s3", "carol")

	dm, ok := srv.chat.Directory().GetOrCreateDM("alice", "bob")
	require.True(t, ok)
	require.NoError(t, st.PersistChannel(ctx, dm))
	m, ok := srv.chat.Messages().Send(dm.ID, "alice", "secret plans", nil)
	require.True(t, ok)
	require.NoError(t, st.PersistMessage(ctx, m))

	target := "/api/v1/channels/" + dm.ID + "/search?q=secret"
	assert.Equal(t, http.StatusForbidden, get(t, srv, target+"&session="+carol, nil))

	var resp SearchResponse
	require.Equal(t, http.StatusOK, get(t, srv, target+"&session="+bob, &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, m.ID, resp.Hits[0].MessageID)
}

func TestSearchRouteAbsentWithoutIndex(t *testing.T) {
	srv := setupTestServer(t)
	lobby, _ := srv.chat.Directory().Default()
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/v1/channels/"+lobby.ID+"/search?q=x", nil))
}
