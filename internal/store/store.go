// Package store persists chat state in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/db"
)

const timeLayout = time.RFC3339Nano

// SQLite is a chat.Gateway backed by the yap database.
type SQLite struct {
	db *db.DB
}

var _ chat.Gateway = (*SQLite)(nil)

// New creates a store on an opened and migrated database.
func New(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

// PersistChannel inserts c or updates its mutable fields.
func (s *SQLite) PersistChannel(ctx context.Context, c chat.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, kind, name, created_at, created_by, is_default, participant_a, participant_b)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_default = excluded.is_default
	`, c.ID, string(c.Kind), nullString(c.Name), c.CreatedAt.UTC().Format(timeLayout),
		nullString(c.CreatedBy), boolInt(c.IsDefault), nullString(c.ParticipantA), nullString(c.ParticipantB))
	if err != nil {
		return fmt.Errorf("failed to persist channel %s: %w", c.ID, err)
	}
	return nil
}

// DeleteChannel removes a channel together with its messages.
func (s *SQLite) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID); err != nil {
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	return nil
}

// PersistMessage inserts m or updates its body, edited and read flags.
// Image URLs are written once; reactions are mirrored separately.
func (s *SQLite) PersistMessage(ctx context.Context, m chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, seq, channel_id, author, body, created_at, edited, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body, edited = excluded.edited, is_read = excluded.is_read
	`, m.ID, int64(m.Seq), m.ChannelID, m.Author, m.Body, m.CreatedAt.UTC().Format(timeLayout),
		boolInt(m.Edited), boolInt(m.Read))
	if err != nil {
		return fmt.Errorf("failed to persist message %s: %w", m.ID, err)
	}

	for i, url := range m.ImageURLs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO message_images (message_id, position, url) VALUES (?, ?, ?)",
			m.ID, i, url); err != nil {
			return fmt.Errorf("failed to persist image for message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteMessage removes one message.
func (s *SQLite) DeleteMessage(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

// TrimMessages keeps only the newest maxCount messages of a channel.
func (s *SQLite) TrimMessages(ctx context.Context, channelID string, maxCount int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE channel_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE channel_id = ? ORDER BY seq DESC LIMIT ?
		)
	`, channelID, channelID, maxCount)
	if err != nil {
		return fmt.Errorf("failed to trim channel %s: %w", channelID, err)
	}
	return nil
}

// AddReaction records username reacting with emoji.
func (s *SQLite) AddReaction(ctx context.Context, messageID, emoji, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO reactions (message_id, emoji, username, created_at)
		VALUES (?, ?, ?, ?)
	`, messageID, emoji, username, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to add reaction to message %s: %w", messageID, err)
	}
	return nil
}

// RemoveReaction deletes username's emoji reaction.
func (s *SQLite) RemoveReaction(ctx context.Context, messageID, emoji, username string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM reactions WHERE message_id = ? AND emoji = ? AND username = ?",
		messageID, emoji, username)
	if err != nil {
		return fmt.Errorf("failed to remove reaction from message %s: %w", messageID, err)
	}
	return nil
}

// LoadSnapshot reads every channel with its messages, images and reactions.
func (s *SQLite) LoadSnapshot(ctx context.Context) (chat.Snapshot, error) {
	snap := chat.Snapshot{MessagesByChannel: make(map[string][]chat.Message)}

	channels, err := s.loadChannels(ctx)
	if err != nil {
		return chat.Snapshot{}, err
	}
	snap.Channels = channels

	messages, err := s.loadMessages(ctx)
	if err != nil {
		return chat.Snapshot{}, err
	}

	images, err := s.loadImages(ctx)
	if err != nil {
		return chat.Snapshot{}, err
	}

	reactions, err := s.loadReactions(ctx)
	if err != nil {
		return chat.Snapshot{}, err
	}

	for _, m := range messages {
		m.ImageURLs = images[m.ID]
		m.Reactions = reactions[m.ID]
		snap.MessagesByChannel[m.ChannelID] = append(snap.MessagesByChannel[m.ChannelID], m)
	}
	return snap, nil
}

func (s *SQLite) loadChannels(ctx context.Context) ([]chat.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, created_at, created_by, is_default, participant_a, participant_b
		FROM channels ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []chat.Channel
	for rows.Next() {
		var (
			c                       chat.Channel
			kind, createdAt         string
			name, createdBy, pa, pb sql.NullString
			isDefault               int
		)
		if err := rows.Scan(&c.ID, &kind, &name, &createdAt, &createdBy, &isDefault, &pa, &pb); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		c.Kind = chat.ChannelKind(kind)
		c.Name = name.String
		c.CreatedBy = createdBy.String
		c.IsDefault = isDefault != 0
		c.ParticipantA = pa.String
		c.ParticipantB = pb.String
		c.CreatedAt = parseTime(createdAt)
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

func (s *SQLite) loadMessages(ctx context.Context) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, channel_id, author, body, created_at, edited, is_read
		FROM messages ORDER BY channel_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var (
			m              chat.Message
			seq            int64
			createdAt      string
			edited, isRead int
		)
		if err := rows.Scan(&m.ID, &seq, &m.ChannelID, &m.Author, &m.Body, &createdAt, &edited, &isRead); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Seq = uint64(seq)
		m.CreatedAt = parseTime(createdAt)
		m.Edited = edited != 0
		m.Read = isRead != 0
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLite) loadImages(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT message_id, url FROM message_images ORDER BY message_id, position")
	if err != nil {
		return nil, fmt.Errorf("failed to query message images: %w", err)
	}
	defer rows.Close()

	images := make(map[string][]string)
	for rows.Next() {
		var messageID, url string
		if err := rows.Scan(&messageID, &url); err != nil {
			return nil, fmt.Errorf("failed to scan message image: %w", err)
		}
		images[messageID] = append(images[messageID], url)
	}
	return images, rows.Err()
}

func (s *SQLite) loadReactions(ctx context.Context) (map[string]map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT message_id, emoji, username FROM reactions ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}
	defer rows.Close()

	reactions := make(map[string]map[string][]string)
	for rows.Next() {
		var messageID, emoji, username string
		if err := rows.Scan(&messageID, &emoji, &username); err != nil {
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		if reactions[messageID] == nil {
			reactions[messageID] = make(map[string][]string)
		}
		reactions[messageID][emoji] = append(reactions[messageID][emoji], username)
	}
	return reactions, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
