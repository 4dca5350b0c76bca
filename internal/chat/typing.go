package chat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Typing tracks who is typing in each channel. Entries go stale after the
// configured typing window and are pruned on read.
type Typing struct {
	s *Service

	sets sync.Map // channel ID -> *typingSet
}

type typingEntry struct {
	username string
	since    time.Time
	at       time.Time
}

type typingSet struct {
	mu    sync.Mutex
	kind  ChannelKind
	users map[string]*typingEntry // folded username -> entry
	dead  bool
}

func (t *Typing) set(channelID string) *typingSet {
	for {
		v, _ := t.sets.LoadOrStore(channelID, &typingSet{users: make(map[string]*typingEntry)})
		ts := v.(*typingSet)
		ts.mu.Lock()
		if !ts.dead {
			return ts
		}
		ts.mu.Unlock()
		t.sets.CompareAndDelete(channelID, ts)
	}
}

// StartTyping records that username is typing in channelID, refreshing an
// existing entry.
func (t *Typing) StartTyping(channelID, username string) {
	username = strings.TrimSpace(username)
	if username == "" {
		return
	}
	st := t.s.directory.lookup(channelID)
	if st == nil {
		return
	}
	kind := st.kind()

	ts := t.set(channelID)
	defer ts.mu.Unlock()
	ts.kind = kind
	now := t.s.now()
	key := foldName(username)
	if e, ok := ts.users[key]; ok {
		e.at = now
	} else {
		ts.users[key] = &typingEntry{username: username, since: now, at: now}
	}
	t.s.publish(Event{Kind: EventTypingUsersChanged, ChannelID: channelID, ChannelKind: ts.kind})
}

// StopTyping removes username from channelID's typing set.
func (t *Typing) StopTyping(channelID, username string) {
	t.clear(channelID, username)
}

// GetTypingUsers returns who is typing in channelID, in the order they
// started. Stale entries are pruned first without firing an event.
func (t *Typing) GetTypingUsers(channelID string) []string {
	v, ok := t.sets.Load(channelID)
	if !ok {
		return []string{}
	}
	ts := v.(*typingSet)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	t.pruneLocked(ts, t.s.now())

	entries := make([]*typingEntry, 0, len(ts.users))
	for _, e := range ts.users {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].since.Equal(entries[j].since) {
			return entries[i].since.Before(entries[j].since)
		}
		return entries[i].username < entries[j].username
	})
	users := make([]string, len(entries))
	for i, e := range entries {
		users[i] = e.username
	}
	return users
}

// ClearUser removes username from every typing set.
func (t *Typing) ClearUser(username string) {
	if strings.TrimSpace(username) == "" {
		return
	}
	var channels []string
	t.sets.Range(func(k, _ any) bool {
		channels = append(channels, k.(string))
		return true
	})
	for _, id := range channels {
		t.clear(id, username)
	}
}

// Sweep prunes entries that went stale by now and announces each channel
// whose typing set changed. It returns the number of such channels.
func (t *Typing) Sweep(now time.Time) int {
	changed := 0
	t.sets.Range(func(k, v any) bool {
		ts := v.(*typingSet)
		ts.mu.Lock()
		if t.pruneLocked(ts, now) > 0 {
			changed++
			t.s.publish(Event{Kind: EventTypingUsersChanged, ChannelID: k.(string), ChannelKind: ts.kind})
		}
		if len(ts.users) == 0 && !ts.dead {
			ts.dead = true
			t.sets.CompareAndDelete(k, ts)
		}
		ts.mu.Unlock()
		return true
	})
	return changed
}

// clear removes username from channelID's set and reports whether it was there.
func (t *Typing) clear(channelID, username string) bool {
	v, ok := t.sets.Load(channelID)
	if !ok {
		return false
	}
	ts := v.(*typingSet)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	key := foldName(username)
	if _, ok := ts.users[key]; !ok {
		return false
	}
	delete(ts.users, key)
	t.s.publish(Event{Kind: EventTypingUsersChanged, ChannelID: channelID, ChannelKind: ts.kind})
	return true
}

// dropChannel forgets the typing set of a deleted channel.
func (t *Typing) dropChannel(channelID string) {
	v, ok := t.sets.LoadAndDelete(channelID)
	if !ok {
		return
	}
	ts := v.(*typingSet)
	ts.mu.Lock()
	ts.dead = true
	ts.users = make(map[string]*typingEntry)
	ts.mu.Unlock()
}

func (t *Typing) pruneLocked(ts *typingSet, now time.Time) int {
	pruned := 0
	for key, e := range ts.users {
		if now.Sub(e.at) > t.s.cfg.TypingWindow {
			delete(ts.users, key)
			pruned++
		}
	}
	return pruned
}
