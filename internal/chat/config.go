package chat

import (
	"fmt"
	"strings"
	"time"
)

// DMPolicy decides whether direct-message channels outlive their participants' sessions.
type DMPolicy string

const (
	// DMPersistent keeps DMs like rooms and mirrors them to the gateway.
	DMPersistent DMPolicy = "persistent"
	// DMEphemeral keeps DMs in memory only and drops them when either
	// participant's last session leaves.
	DMEphemeral DMPolicy = "ephemeral"
)

// ParseDMPolicy converts s to a DMPolicy.
func ParseDMPolicy(s string) (DMPolicy, error) {
	switch DMPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case DMPersistent, "":
		return DMPersistent, nil
	case DMEphemeral:
		return DMEphemeral, nil
	}
	return "", fmt.Errorf("unknown dm policy %q (want persistent or ephemeral)", s)
}

// Config holds the engine's typed settings.
type Config struct {
	// MaxMessagesPerChannel bounds each channel's history; oldest messages are evicted first.
	MaxMessagesPerChannel int
	// TypingWindow is how long a typing signal stays valid without a refresh.
	TypingWindow time.Duration
	// TypingSweepInterval is how often Run expires stale typing entries and
	// announces the change. Zero disables the sweep; reads still filter.
	TypingSweepInterval time.Duration
	DMPolicy            DMPolicy
	// DefaultRoom is the name of the undeletable lobby room.
	DefaultRoom string
	// MirrorQueueSize bounds pending persistence writes.
	MirrorQueueSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		MaxMessagesPerChannel: 100,
		TypingWindow:          3 * time.Second,
		TypingSweepInterval:   time.Second,
		DMPolicy:              DMPersistent,
		DefaultRoom:           "lobby",
		MirrorQueueSize:       1024,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxMessagesPerChannel <= 0 {
		c.MaxMessagesPerChannel = def.MaxMessagesPerChannel
	}
	if c.TypingWindow <= 0 {
		c.TypingWindow = def.TypingWindow
	}
	if c.TypingSweepInterval < 0 {
		c.TypingSweepInterval = 0
	}
	if c.DMPolicy == "" {
		c.DMPolicy = def.DMPolicy
	}
	c.DefaultRoom = normalizeRoomName(c.DefaultRoom)
	if c.DefaultRoom == "" {
		c.DefaultRoom = def.DefaultRoom
	}
	if c.MirrorQueueSize <= 0 {
		c.MirrorQueueSize = def.MirrorQueueSize
	}
	return c
}
