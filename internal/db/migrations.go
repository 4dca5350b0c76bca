package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/urza/Yap/internal/migration"
)

const channelSchema = `
CREATE TABLE IF NOT EXISTS channels (
    id             TEXT PRIMARY KEY,
    kind           TEXT NOT NULL CHECK (kind IN ('room', 'dm')),
    name           TEXT,
    created_at     TEXT NOT NULL,
    created_by     TEXT,
    is_default     INTEGER NOT NULL DEFAULT 0,
    participant_a  TEXT,
    participant_b  TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_room_name ON channels(name) WHERE kind = 'room';
`

const messageSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id          TEXT PRIMARY KEY,
    seq         INTEGER NOT NULL,
    channel_id  TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
    author      TEXT NOT NULL,
    body        TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    edited      INTEGER NOT NULL DEFAULT 0,
    is_read     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_messages_channel_seq ON messages(channel_id, seq);

CREATE TABLE IF NOT EXISTS message_images (
    message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    url         TEXT NOT NULL,
    PRIMARY KEY (message_id, position)
);

CREATE TABLE IF NOT EXISTS reactions (
    message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    emoji       TEXT NOT NULL,
    username    TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    PRIMARY KEY (message_id, emoji, username)
);
`

// schema lists the chat schema changes in version order. Existing entries
// must never be edited; append new ones.
var schema = []migration.Migration{
	{Version: "20240301000000", Name: "create_channels", SQL: channelSchema},
	{Version: "20240301000100", Name: "create_messages", SQL: messageSchema},
}

// RunMigrations applies pending schema migrations. It is safe to run repeatedly.
func (db *DB) RunMigrations() error {
	if _, err := migration.NewRunner(db.DB).Apply(context.Background(), schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Migrations returns the known schema migrations in version order.
func Migrations() []migration.Migration {
	return slices.Clone(schema)
}

// AppliedMigrations lists the recorded schema migrations, oldest first.
func (db *DB) AppliedMigrations(ctx context.Context) ([]migration.Migration, error) {
	return migration.NewRunner(db.DB).GetApplied(ctx)
}
