package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// ChannelKind distinguishes named rooms from direct-message pairs.
type ChannelKind string

const (
	KindRoom   ChannelKind = "room"
	KindDirect ChannelKind = "dm"
)

// Channel is a room or a direct-message pair.
type Channel struct {
	ID           string      `json:"id"`
	Kind         ChannelKind `json:"kind"`
	Name         string      `json:"name,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	CreatedBy    string      `json:"created_by,omitempty"`
	IsDefault    bool        `json:"is_default"`
	ParticipantA string      `json:"participant_a,omitempty"`
	ParticipantB string      `json:"participant_b,omitempty"`
}

// IsDirect reports whether c is a direct-message channel.
func (c Channel) IsDirect() bool {
	return c.Kind == KindDirect
}

// HasParticipant reports whether username is one of the two DM participants.
func (c Channel) HasParticipant(username string) bool {
	if !c.IsDirect() {
		return false
	}
	u := foldName(username)
	return u != "" && (u == foldName(c.ParticipantA) || u == foldName(c.ParticipantB))
}

// Counterpart returns the DM participant that is not username.
func (c Channel) Counterpart(username string) string {
	if foldName(c.ParticipantA) == foldName(username) {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// Message is one entry in a channel's history.
type Message struct {
	ID        string              `json:"id"`
	Seq       uint64              `json:"seq"`
	ChannelID string              `json:"channel_id"`
	Author    string              `json:"author"`
	Body      string              `json:"body"`
	CreatedAt time.Time           `json:"created_at"`
	ImageURLs []string            `json:"image_urls,omitempty"`
	Edited    bool                `json:"edited"`
	Reactions map[string][]string `json:"reactions,omitempty"` // emoji -> reactors, in reaction order
	Read      bool                `json:"read"`
}

// HasImages reports whether the message carries attachments.
func (m Message) HasImages() bool {
	return len(m.ImageURLs) > 0
}

// ReactedBy reports whether username has reacted with emoji.
func (m Message) ReactedBy(emoji, username string) bool {
	return indexFold(m.Reactions[emoji], username) >= 0
}

func (m *Message) clone() Message {
	c := *m
	if m.ImageURLs != nil {
		c.ImageURLs = append([]string(nil), m.ImageURLs...)
	}
	if m.Reactions != nil {
		c.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			c.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return c
}

// Status is a user's presence status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusAway      Status = "away"
	StatusInvisible Status = "invisible"
)

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOnline:
		return StatusOnline, true
	case StatusAway:
		return StatusAway, true
	case StatusInvisible:
		return StatusInvisible, true
	}
	return "", false
}

// Session is one connected participant.
type Session struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Status   Status    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`

	order uint64
}

// UserStatus pairs a username with the status shown for it.
type UserStatus struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
}

// foldName is the case-insensitive comparison key for usernames and room names.
func foldName(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func sameName(a, b string) bool {
	return foldName(a) == foldName(b)
}

func indexFold(names []string, name string) int {
	key := foldName(name)
	for i, n := range names {
		if foldName(n) == key {
			return i
		}
	}
	return -1
}

// pairKey is the order-independent lookup key for a DM between a and b.
func pairKey(a, b string) string {
	fa, fb := foldName(a), foldName(b)
	if fa > fb {
		fa, fb = fb, fa
	}
	return fa + "\x00" + fb
}

// newID returns a creation-ordered identifier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
