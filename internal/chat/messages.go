package chat

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Messages is the per-channel message store. Every operation is scoped to a
// channel that must exist; unknown channels and messages are silent no-ops.
type Messages struct {
	s *Service

	// seq orders messages across the process independently of clock precision.
	seq atomic.Uint64
}

// Send appends a message to channelID, evicting the oldest messages beyond
// the retention cap, and clears author's typing entry for the channel. Blank
// bodies are rejected unless the message carries images.
func (ms *Messages) Send(channelID, author, body string, imageURLs []string) (Message, bool) {
	author = strings.TrimSpace(author)
	images := cleanURLs(imageURLs)
	if author == "" || (strings.TrimSpace(body) == "" && len(images) == 0) {
		return Message{}, false
	}

	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return Message{}, false
	}

	st.mu.Lock()
	if st.removed {
		st.mu.Unlock()
		return Message{}, false
	}
	msg := &Message{
		ID:        newID(),
		Seq:       ms.seq.Add(1),
		ChannelID: channelID,
		Author:    author,
		Body:      body,
		CreatedAt: ms.s.now().UTC(),
		ImageURLs: images,
	}
	st.log = append(st.log, msg)
	st.byID[msg.ID] = msg
	evicted := ms.evictLocked(st)

	out := msg.clone()
	persist := ms.s.persistable(st.info)
	kind := st.info.Kind
	if persist {
		ms.s.mirror.persistMessage(out)
		if evicted > 0 {
			ms.s.mirror.trimMessages(channelID, ms.s.cfg.MaxMessagesPerChannel)
		}
	}
	ms.s.publish(messageEvent(EventMessageReceived, out, kind))
	st.mu.Unlock()

	ms.s.rec.MessageSent(string(kind))
	ms.s.typing.StopTyping(channelID, author)
	return out, true
}

// evictLocked drops the oldest messages beyond the retention cap.
func (ms *Messages) evictLocked(st *channelState) int {
	over := len(st.log) - ms.s.cfg.MaxMessagesPerChannel
	if over <= 0 {
		return 0
	}
	for _, m := range st.log[:over] {
		delete(st.byID, m.ID)
	}
	kept := make([]*Message, len(st.log)-over)
	copy(kept, st.log[over:])
	st.log = kept
	return over
}

// GetRecent returns the most recent count messages of channelID, oldest
// first. A count of zero or less returns the whole retained history.
func (ms *Messages) GetRecent(channelID string, count int) []Message {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return []Message{}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	start := 0
	if count > 0 && len(st.log) > count {
		start = len(st.log) - count
	}
	return cloneAll(st.log[start:])
}

// GetBefore returns up to count messages older than beforeID, oldest first.
// An unknown beforeID yields an empty page.
func (ms *Messages) GetBefore(channelID, beforeID string, count int) []Message {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return []Message{}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	end := -1
	for i, m := range st.log {
		if m.ID == beforeID {
			end = i
			break
		}
	}
	if end <= 0 {
		return []Message{}
	}
	start := 0
	if count > 0 && end > count {
		start = end - count
	}
	return cloneAll(st.log[start:end])
}

// Get returns one message.
func (ms *Messages) Get(channelID, messageID string) (Message, bool) {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return Message{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.byID[messageID]
	if !ok {
		return Message{}, false
	}
	return m.clone(), true
}

// Edit replaces the body of a text-only message. Only the author may edit,
// and the new body must not be blank.
func (ms *Messages) Edit(channelID, messageID, user, body string) bool {
	if strings.TrimSpace(body) == "" {
		return false
	}
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.byID[messageID]
	if !ok || !sameName(m.Author, user) || m.HasImages() {
		return false
	}
	m.Body = body
	m.Edited = true

	out := m.clone()
	if ms.s.persistable(st.info) {
		ms.s.mirror.persistMessage(out)
	}
	ms.s.publish(messageEvent(EventMessageUpdated, out, st.info.Kind))
	return true
}

// Delete removes a message. Only the author may delete.
func (ms *Messages) Delete(channelID, messageID, user string) bool {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.byID[messageID]
	if !ok || !sameName(m.Author, user) {
		return false
	}
	delete(st.byID, messageID)
	for i, entry := range st.log {
		if entry == m {
			st.log = append(st.log[:i], st.log[i+1:]...)
			break
		}
	}

	if ms.s.persistable(st.info) {
		ms.s.mirror.deleteMessage(channelID, messageID)
	}
	ms.s.publish(Event{Kind: EventMessageDeleted, ChannelID: channelID, ChannelKind: st.info.Kind, MessageID: messageID})
	return true
}

// ToggleReaction adds username to the reactors of emoji on a message, or
// removes them if already present. An emoji with no reactors left is dropped.
// It returns the updated message.
func (ms *Messages) ToggleReaction(channelID, messageID, username, emoji string) (Message, bool) {
	username = strings.TrimSpace(username)
	emoji = strings.TrimSpace(emoji)
	if username == "" || emoji == "" {
		return Message{}, false
	}
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return Message{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.byID[messageID]
	if !ok {
		return Message{}, false
	}

	reactors := m.Reactions[emoji]
	added := false
	if i := indexFold(reactors, username); i >= 0 {
		// the stored spelling is what the gateway recorded
		username = reactors[i]
		reactors = append(reactors[:i:i], reactors[i+1:]...)
		if len(reactors) == 0 {
			delete(m.Reactions, emoji)
		} else {
			m.Reactions[emoji] = reactors
		}
		if len(m.Reactions) == 0 {
			m.Reactions = nil
		}
	} else {
		if m.Reactions == nil {
			m.Reactions = make(map[string][]string)
		}
		m.Reactions[emoji] = append(reactors, username)
		added = true
	}

	if ms.s.persistable(st.info) {
		if added {
			ms.s.mirror.addReaction(messageID, emoji, username)
		} else {
			ms.s.mirror.removeReaction(messageID, emoji, username)
		}
	}
	out := m.clone()
	ms.s.publish(messageEvent(EventReactionChanged, out, st.info.Kind))
	return out, true
}

// MarkRead marks every message in a DM that reader did not author as read
// and returns how many changed. Rooms do not track read state.
func (ms *Messages) MarkRead(channelID, reader string) int {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.info.IsDirect() || !st.info.HasParticipant(reader) {
		return 0
	}
	persist := ms.s.persistable(st.info)
	marked := 0
	for _, m := range st.log {
		if m.Read || sameName(m.Author, reader) {
			continue
		}
		m.Read = true
		marked++
		out := m.clone()
		if persist {
			ms.s.mirror.persistMessage(out)
		}
		ms.s.publish(messageEvent(EventMessageUpdated, out, st.info.Kind))
	}
	return marked
}

// UnreadCount returns how many messages in a DM reader has not read yet.
// Rooms always report zero.
func (ms *Messages) UnreadCount(channelID, reader string) int {
	st := ms.s.directory.lookup(channelID)
	if st == nil {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.info.IsDirect() || !st.info.HasParticipant(reader) {
		return 0
	}
	unread := 0
	for _, m := range st.log {
		if !m.Read && !sameName(m.Author, reader) {
			unread++
		}
	}
	return unread
}

// restore loads persisted messages into a freshly restored channel, keeping
// only the newest ones within the retention cap. It returns how many were kept.
func (ms *Messages) restore(channelID string, msgs []Message) int {
	st := ms.s.directory.lookup(channelID)
	if st == nil || len(msgs) == 0 {
		return 0
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for i := range msgs {
		m := msgs[i].clone()
		if m.ID == "" {
			continue
		}
		if _, dup := st.byID[m.ID]; dup {
			continue
		}
		m.ChannelID = channelID
		for {
			cur := ms.seq.Load()
			if m.Seq <= cur {
				break
			}
			if ms.seq.CompareAndSwap(cur, m.Seq) {
				break
			}
		}
		st.log = append(st.log, &m)
		st.byID[m.ID] = &m
	}
	sortLog(st.log)

	// Messages persisted without a sequence go after everything known.
	for _, m := range st.log {
		if m.Seq == 0 {
			m.Seq = ms.seq.Add(1)
		}
	}

	if ms.evictLocked(st) > 0 && ms.s.persistable(st.info) {
		ms.s.mirror.trimMessages(channelID, ms.s.cfg.MaxMessagesPerChannel)
	}
	return len(st.log)
}

// sortLog orders messages by sequence; unsequenced ones go last by creation time.
func sortLog(log []*Message) {
	sort.SliceStable(log, func(i, j int) bool {
		a, b := log[i], log[j]
		if (a.Seq == 0) != (b.Seq == 0) {
			return b.Seq == 0
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func cloneAll(log []*Message) []Message {
	out := make([]Message, len(log))
	for i, m := range log {
		out[i] = m.clone()
	}
	return out
}

func cleanURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
