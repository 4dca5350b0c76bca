package fts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/db"
	"github.com/urza/Yap/internal/store"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setupTestIndex(t *testing.T) (*Index, *store.SQLite) {
	t.Helper()
	database, err := db.New(t.TempDir() + "/yap.db")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	st := store.New(database)
	ctx := context.Background()
	for _, id := range []string{"general", "random"} {
		if err := st.PersistChannel(ctx, chat.Channel{ID: id, Kind: chat.KindRoom, Name: id, CreatedAt: base}); err != nil {
			t.Fatalf("PersistChannel failed: %v", err)
		}
	}

	idx, err := New(database, "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return idx, st
}

func persist(t *testing.T, st *store.SQLite, id, channel, body string, seq uint64) {
	t.Helper()
	m := chat.Message{ID: id, Seq: seq, ChannelID: channel, Author: "alice", Body: body, CreatedAt: base.Add(time.Duration(seq) * time.Second)}
	if err := st.PersistMessage(context.Background(), m); err != nil {
		t.Fatalf("PersistMessage failed: %v", err)
	}
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.MessageID
	}
	return out
}

func TestNewRejectsUnknownTokenizer(t *testing.T) {
	if _, err := New(nil, "icu"); err == nil {
		t.Error("expected error for unknown tokenizer")
	}
	if _, err := New(nil, "porter"); err != nil {
		t.Errorf("porter should be accepted: %v", err)
	}
}

func TestEnsureIndexesExistingMessages(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	persist(t, st, "m1", "general", "deploy finished on staging", 1)

	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}

	hits, err := idx.Search(ctx, "general", "staging", "plain", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageID != "m1" {
		t.Fatalf("expected [m1], got %v", ids(hits))
	}
	if hits[0].Author != "alice" || hits[0].Seq != 1 {
		t.Errorf("unexpected hit %+v", hits[0])
	}
	if !hits[0].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("created_at: got %v", hits[0].CreatedAt)
	}
	if hits[0].Snippet != "deploy finished on [staging]" {
		t.Errorf("snippet: got %q", hits[0].Snippet)
	}
}

func TestSearchIsScopedToChannel(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	persist(t, st, "m1", "general", "lunch at noon?", 1)
	persist(t, st, "m2", "random", "lunch was great", 2)

	hits, err := idx.Search(ctx, "general", "lunch", "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].MessageID != "m1" {
		t.Errorf("expected [m1], got %v", ids(hits))
	}
}

func TestSearchFollowsEditsAndDeletes(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	persist(t, st, "m1", "general", "the build is red", 1)
	persist(t, st, "m1", "general", "the build is green", 1)

	if hits, _ := idx.Search(ctx, "general", "red", "plain", 10); len(hits) != 0 {
		t.Errorf("edited text still indexed: %v", ids(hits))
	}
	if hits, _ := idx.Search(ctx, "general", "green", "plain", 10); len(hits) != 1 {
		t.Errorf("edited text not indexed: %v", ids(hits))
	}

	if err := st.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}
	if hits, _ := idx.Search(ctx, "general", "green", "plain", 10); len(hits) != 0 {
		t.Errorf("deleted message still found: %v", ids(hits))
	}
}

func TestSearchQueryTypes(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	persist(t, st, "m1", "general", "the fat cat sat", 1)
	persist(t, st, "m2", "general", "a cat that is fat", 2)
	persist(t, st, "m3", "general", "dogs only", 3)

	tests := []struct {
		query, kind string
		want        int
	}{
		{"fat cat", "plain", 2},
		{"fat cat", "phrase", 1},
		{"cat or dogs", "websearch", 3},
		{"cat -sat", "websearch", 1},
		{"'do':*", "fts", 1},
	}
	for _, tc := range tests {
		hits, err := idx.Search(ctx, "general", tc.query, tc.kind, 10)
		if err != nil {
			t.Errorf("%s %q: %v", tc.kind, tc.query, err)
			continue
		}
		if len(hits) != tc.want {
			t.Errorf("%s %q: got %v, want %d hits", tc.kind, tc.query, ids(hits), tc.want)
		}
	}
}

func TestSearchLimitAndBadInput(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		persist(t, st, "m"+string(rune('0'+i)), "general", "ping", i)
	}

	hits, err := idx.Search(ctx, "general", "ping", "plain", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Errorf("expected 3 hits, got %d", len(hits))
	}

	if _, err := idx.Search(ctx, "general", "", "plain", 3); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("empty query: expected ErrInvalidQuery, got %v", err)
	}
	if _, err := idx.Search(ctx, "general", "AND AND", "fts", 3); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("malformed fts query: expected ErrInvalidQuery, got %v", err)
	}
}

func TestRebuild(t *testing.T) {
	idx, st := setupTestIndex(t)
	ctx := context.Background()
	if err := idx.Ensure(ctx); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	persist(t, st, "m1", "general", "rebuild me", 1)
	if err := idx.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if hits, _ := idx.Search(ctx, "general", "rebuild", "plain", 10); len(hits) != 1 {
		t.Errorf("expected 1 hit after rebuild, got %v", ids(hits))
	}
}
