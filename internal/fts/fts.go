// Package fts keeps an FTS5 index over persisted message bodies and answers
// per-channel searches against it.
package fts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urza/Yap/internal/db"
)

const ftsTable = "messages_fts"

var validTokenizers = map[string]bool{
	"unicode61": true,
	"porter":    true,
	"ascii":     true,
	"trigram":   true,
}

// Hit is one matching message.
type Hit struct {
	MessageID string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Seq       uint64    `json:"seq"`
	Author    string    `json:"author"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"created_at"`
}

// Index searches the messages table through the messages_fts shadow table.
type Index struct {
	db        *db.DB
	tokenizer string
}

// New returns an index using tokenizer, which defaults to unicode61.
// Call Ensure before searching.
func New(database *db.DB, tokenizer string) (*Index, error) {
	if tokenizer == "" {
		tokenizer = "unicode61"
	}
	if !validTokenizers[tokenizer] {
		return nil, fmt.Errorf("invalid tokenizer: %s (valid: unicode61, porter, ascii, trigram)", tokenizer)
	}
	return &Index{db: database, tokenizer: tokenizer}, nil
}

// Ensure creates the FTS table and its sync triggers when missing and
// indexes any messages already stored. It is safe to call on every start.
func (x *Index) Ensure(ctx context.Context) error {
	var name string
	err := x.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", ftsTable).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking search index: %w", err)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// messages has a TEXT key, so the index is keyed on the implicit rowid
	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE %q USING fts5(body, content='messages', content_rowid='rowid', tokenize=%q)`,
		ftsTable, x.tokenizer,
	)
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("creating FTS table: %w", err)
	}

	if err := createTriggers(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q(%q) VALUES('rebuild')`, ftsTable, ftsTable)); err != nil {
		return fmt.Errorf("populating FTS index: %w", err)
	}

	return tx.Commit()
}

func createTriggers(ctx context.Context, tx *sql.Tx) error {
	triggers := []struct {
		kind string
		sql  string
	}{
		{"INSERT", `
			CREATE TRIGGER "messages_fts_ai" AFTER INSERT ON messages BEGIN
				INSERT INTO "messages_fts"(rowid, body) VALUES (NEW.rowid, NEW.body);
			END`},
		{"DELETE", `
			CREATE TRIGGER "messages_fts_ad" AFTER DELETE ON messages BEGIN
				INSERT INTO "messages_fts"("messages_fts", rowid, body) VALUES ('delete', OLD.rowid, OLD.body);
			END`},
		// read flags flip often, only body edits touch the index
		{"UPDATE", `
			CREATE TRIGGER "messages_fts_au" AFTER UPDATE OF body ON messages BEGIN
				INSERT INTO "messages_fts"("messages_fts", rowid, body) VALUES ('delete', OLD.rowid, OLD.body);
				INSERT INTO "messages_fts"(rowid, body) VALUES (NEW.rowid, NEW.body);
			END`},
	}
	for _, trig := range triggers {
		if _, err := tx.ExecContext(ctx, trig.sql); err != nil {
			return fmt.Errorf("creating %s trigger: %w", trig.kind, err)
		}
	}
	return nil
}

// Rebuild reindexes every stored message from scratch.
func (x *Index) Rebuild(ctx context.Context) error {
	if _, err := x.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q(%q) VALUES('rebuild')`, ftsTable, ftsTable)); err != nil {
		return fmt.Errorf("rebuilding FTS index: %w", err)
	}
	return nil
}

// Search returns up to limit messages of channelID matching query, best
// match first. Errors wrapping ErrInvalidQuery describe bad input.
func (x *Index) Search(ctx context.Context, channelID, query, queryType string, limit int) ([]Hit, error) {
	match, err := ConvertQuery(query, queryType)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.seq, m.author,
		       snippet(messages_fts, 0, '[', ']', '...', 12), m.created_at
		FROM messages_fts
		JOIN messages m ON m.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ? AND m.channel_id = ?
		ORDER BY rank, m.seq DESC
		LIMIT ?
	`, match, channelID, limit)
	if err != nil {
		return nil, wrapMatchError(err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var seq int64
		var created string
		if err := rows.Scan(&h.MessageID, &h.ChannelID, &seq, &h.Author, &h.Snippet, &created); err != nil {
			return nil, fmt.Errorf("scanning search hit: %w", err)
		}
		h.Seq = uint64(seq)
		h.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapMatchError(err)
	}
	return hits, nil
}

// FTS5 reports unparsable MATCH expressions as ordinary query errors.
func wrapMatchError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "fts5") || strings.Contains(msg, "syntax error") {
		return fmt.Errorf("%w: %s", ErrInvalidQuery, msg)
	}
	return fmt.Errorf("searching messages: %w", err)
}
