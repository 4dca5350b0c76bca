package chat

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const maxRoomNameLen = 50

// channelState is a channel together with its history. mu guards everything
// below it; removed is set once the channel leaves the directory so that
// in-flight operations holding a stale pointer become no-ops.
type channelState struct {
	order uint64

	mu      sync.Mutex
	info    Channel
	log     []*Message
	byID    map[string]*Message
	removed bool
}

func newChannelState(c Channel, order uint64) *channelState {
	return &channelState{order: order, info: c, byID: make(map[string]*Message)}
}

func (st *channelState) kind() ChannelKind {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.info.Kind
}

func (st *channelState) channel() Channel {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.info
}

// Directory owns the set of rooms and direct-message channels.
type Directory struct {
	s *Service

	mu        sync.RWMutex
	channels  map[string]*channelState // channel ID -> state
	rooms     map[string]string        // folded room name -> channel ID
	dms       map[string]string        // pair key -> channel ID
	defaultID string
	nextOrder uint64
}

func newDirectory(s *Service) *Directory {
	return &Directory{
		s:        s,
		channels: make(map[string]*channelState),
		rooms:    make(map[string]string),
		dms:      make(map[string]string),
	}
}

// normalizeRoomName trims and lower-cases a room name for storage.
func normalizeRoomName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validRoomName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > maxRoomNameLen {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ListRooms returns every room: the default room first, then by creation.
func (d *Directory) ListRooms() []Channel {
	d.mu.RLock()
	states := make([]*channelState, 0, len(d.rooms))
	for _, id := range d.rooms {
		states = append(states, d.channels[id])
	}
	d.mu.RUnlock()

	type entry struct {
		c     Channel
		order uint64
	}
	entries := make([]entry, len(states))
	for i, st := range states {
		entries[i] = entry{c: st.channel(), order: st.order}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.c.IsDefault != b.c.IsDefault {
			return a.c.IsDefault
		}
		if !a.c.CreatedAt.Equal(b.c.CreatedAt) {
			return a.c.CreatedAt.Before(b.c.CreatedAt)
		}
		return a.order < b.order
	})

	rooms := make([]Channel, len(entries))
	for i, e := range entries {
		rooms[i] = e.c
	}
	return rooms
}

// ListDMs returns the DM channels username participates in, oldest first.
func (d *Directory) ListDMs(username string) []Channel {
	d.mu.RLock()
	var states []*channelState
	for _, id := range d.dms {
		st := d.channels[id]
		if st.info.HasParticipant(username) {
			states = append(states, st)
		}
	}
	d.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].order < states[j].order })
	dms := make([]Channel, len(states))
	for i, st := range states {
		dms[i] = st.info
	}
	return dms
}

// GetChannel returns the channel with the given ID.
func (d *Directory) GetChannel(id string) (Channel, bool) {
	st := d.lookup(id)
	if st == nil {
		return Channel{}, false
	}
	return st.channel(), true
}

// Default returns the default room.
func (d *Directory) Default() (Channel, bool) {
	d.mu.RLock()
	id := d.defaultID
	d.mu.RUnlock()
	return d.GetChannel(id)
}

// CreateRoom creates a room named name on behalf of user. Only the admin may
// create rooms. The name is trimmed and lower-cased; it must be non-blank and
// unique among rooms regardless of case.
func (d *Directory) CreateRoom(user, name string) (Channel, error) {
	if !d.s.presence.IsAdmin(user) {
		return Channel{}, ErrNotAdmin
	}
	name = normalizeRoomName(name)
	if !validRoomName(name) {
		return Channel{}, ErrInvalidName
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.rooms[foldName(name)]; taken {
		return Channel{}, ErrNameTaken
	}

	c := Channel{
		ID:        newID(),
		Kind:      KindRoom,
		Name:      name,
		CreatedAt: d.s.now().UTC(),
		CreatedBy: strings.TrimSpace(user),
	}
	d.insertLocked(c)
	d.s.mirror.persistChannel(c)
	d.s.publish(channelEvent(EventChannelCreated, c))
	d.s.logger.Info("room created", "channel_id", c.ID, "name", c.Name, "created_by", c.CreatedBy)
	return c, nil
}

// DeleteRoom deletes a room on behalf of user. It returns false when user is
// not the admin, the channel does not exist, is the default room, or is a DM.
func (d *Directory) DeleteRoom(user, channelID string) bool {
	if !d.s.presence.IsAdmin(user) {
		return false
	}

	d.mu.Lock()
	st, ok := d.channels[channelID]
	if !ok || st.info.IsDefault || st.info.IsDirect() {
		d.mu.Unlock()
		return false
	}
	delete(d.channels, channelID)
	delete(d.rooms, foldName(st.info.Name))
	d.mu.Unlock()

	d.retire(st, true)
	d.s.logger.Info("room deleted", "channel_id", channelID, "name", st.info.Name, "deleted_by", user)
	return true
}

// GetOrCreateDM returns the DM channel between a and b, creating it on first
// use. Concurrent calls for the same pair, in either order, observe the same
// channel. It returns false when a or b is blank or both name the same user.
func (d *Directory) GetOrCreateDM(a, b string) (Channel, bool) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || sameName(a, b) {
		return Channel{}, false
	}
	key := pairKey(a, b)

	d.mu.RLock()
	if id, ok := d.dms[key]; ok {
		c := d.channels[id].info
		d.mu.RUnlock()
		return c, true
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.dms[key]; ok {
		return d.channels[id].info, true
	}

	c := Channel{
		ID:           newID(),
		Kind:         KindDirect,
		CreatedAt:    d.s.now().UTC(),
		CreatedBy:    a,
		ParticipantA: a,
		ParticipantB: b,
	}
	d.insertLocked(c)
	if d.s.persistable(c) {
		d.s.mirror.persistChannel(c)
	}
	d.s.publish(channelEvent(EventChannelCreated, c))
	d.s.logger.Debug("dm created", "channel_id", c.ID, "participant_a", a, "participant_b", b)
	return c, true
}

// AccessCheck reports whether username may read and write channel c. Rooms
// are open to everyone; DMs only to their two participants.
func (d *Directory) AccessCheck(c Channel, username string) bool {
	if c.IsDirect() {
		return c.HasParticipant(username)
	}
	return c.Kind == KindRoom
}

// dropDirectFor removes every DM username participates in. Used under the
// ephemeral DM policy when the user's last session leaves.
func (d *Directory) dropDirectFor(username string) {
	d.mu.Lock()
	var dropped []*channelState
	for key, id := range d.dms {
		st := d.channels[id]
		if st.info.HasParticipant(username) {
			delete(d.dms, key)
			delete(d.channels, id)
			dropped = append(dropped, st)
		}
	}
	d.mu.Unlock()

	for _, st := range dropped {
		d.retire(st, d.s.persistable(st.info))
	}
	if len(dropped) > 0 {
		d.s.logger.Debug("dropped ephemeral dms", "username", username, "count", len(dropped))
	}
}

// retire marks a channel removed and announces it. The caller has already
// taken it out of the directory maps.
func (d *Directory) retire(st *channelState, persist bool) {
	st.mu.Lock()
	st.removed = true
	st.log = nil
	st.byID = nil
	info := st.info
	id := info.ID
	if persist {
		d.s.mirror.deleteChannel(id)
	}
	d.s.publish(Event{Kind: EventChannelDeleted, ChannelID: id, ChannelKind: info.Kind, Channel: &info})
	st.mu.Unlock()

	d.s.typing.dropChannel(id)
}

func (d *Directory) lookup(id string) *channelState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.channels[id]
}

func (d *Directory) insertLocked(c Channel) *channelState {
	d.nextOrder++
	st := newChannelState(c, d.nextOrder)
	d.channels[c.ID] = st
	switch c.Kind {
	case KindRoom:
		d.rooms[foldName(c.Name)] = c.ID
		if c.IsDefault {
			d.defaultID = c.ID
		}
	case KindDirect:
		d.dms[pairKey(c.ParticipantA, c.ParticipantB)] = c.ID
	}
	return st
}

// restore inserts a persisted channel. It returns false for channels that
// conflict with ones already present.
func (d *Directory) restore(c Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.ID == "" {
		return false
	}
	if _, dup := d.channels[c.ID]; dup {
		return false
	}
	switch c.Kind {
	case KindRoom:
		c.Name = normalizeRoomName(c.Name)
		if !validRoomName(c.Name) {
			return false
		}
		if _, taken := d.rooms[foldName(c.Name)]; taken {
			return false
		}
		if c.IsDefault && d.defaultID != "" {
			c.IsDefault = false
		}
	case KindDirect:
		if c.ParticipantA == "" || c.ParticipantB == "" || sameName(c.ParticipantA, c.ParticipantB) {
			return false
		}
		if _, taken := d.dms[pairKey(c.ParticipantA, c.ParticipantB)]; taken {
			return false
		}
		c.IsDefault = false
	default:
		return false
	}
	d.insertLocked(c)
	return true
}

// ensureDefaultRoom promotes or creates the default room.
func (d *Directory) ensureDefaultRoom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.defaultID != "" {
		return
	}

	name := d.s.cfg.DefaultRoom
	if id, ok := d.rooms[foldName(name)]; ok {
		st := d.channels[id]
		st.mu.Lock()
		st.info.IsDefault = true
		c := st.info
		st.mu.Unlock()
		d.defaultID = id
		d.s.mirror.persistChannel(c)
		return
	}

	c := Channel{
		ID:        newID(),
		Kind:      KindRoom,
		Name:      name,
		CreatedAt: d.s.now().UTC(),
		IsDefault: true,
	}
	d.insertLocked(c)
	d.s.mirror.persistChannel(c)
	d.s.publish(channelEvent(EventChannelCreated, c))
	d.s.logger.Info("default room created", "channel_id", c.ID, "name", c.Name)
}

func (d *Directory) counts() (rooms, dms, messages int) {
	d.mu.RLock()
	states := make([]*channelState, 0, len(d.channels))
	for _, st := range d.channels {
		states = append(states, st)
	}
	rooms, dms = len(d.rooms), len(d.dms)
	d.mu.RUnlock()

	for _, st := range states {
		st.mu.Lock()
		messages += len(st.log)
		st.mu.Unlock()
	}
	return rooms, dms, messages
}
