package chat

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Presence tracks connected sessions and owns the admin role.
type Presence struct {
	s *Service

	mu        sync.RWMutex
	sessions  map[string]*Session // session ID -> session
	nextOrder uint64

	// admin is set exactly once, by the first successful join.
	admin atomic.Pointer[string]
}

func newPresence(s *Service) *Presence {
	return &Presence{s: s, sessions: make(map[string]*Session)}
}

// Join registers sessionID as username. The first join in the process makes
// username the admin. Rejoining an existing session ID under the same name
// only updates its status; under a different name the old identity leaves first.
// Uniqueness of username is the caller's check (IsUsernameTaken).
func (p *Presence) Join(sessionID, username string, status Status) {
	username = strings.TrimSpace(username)
	if sessionID == "" || username == "" {
		return
	}
	if status == "" {
		status = StatusOnline
	}

	p.mu.RLock()
	existing, ok := p.sessions[sessionID]
	var rename bool
	if ok {
		rename = !sameName(existing.Username, username)
	}
	p.mu.RUnlock()

	if ok && !rename {
		p.SetStatus(sessionID, status)
		return
	}
	if rename {
		p.Leave(sessionID)
	}

	p.mu.Lock()
	if _, raced := p.sessions[sessionID]; raced {
		p.mu.Unlock()
		return
	}
	p.nextOrder++
	p.sessions[sessionID] = &Session{
		ID:       sessionID,
		Username: username,
		Status:   status,
		JoinedAt: p.s.now().UTC(),
		order:    p.nextOrder,
	}
	p.s.publish(Event{Kind: EventUserChanged, Username: username, Joining: true})
	p.s.publish(Event{Kind: EventUsersListChanged})

	name := username
	if p.admin.CompareAndSwap(nil, &name) {
		p.s.logger.Info("admin assigned", "username", username)
		p.s.publish(Event{Kind: EventAdminChanged, Admin: username})
	}
	p.mu.Unlock()

	p.s.rec.SessionsChanged(1)
	p.s.logger.Debug("session joined", "session_id", sessionID, "username", username, "status", string(status))
}

// Leave removes sessionID and clears its user from every typing set. Unknown
// sessions are ignored.
func (p *Presence) Leave(sessionID string) {
	p.mu.Lock()
	sess, ok := p.sessions[sessionID]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.sessions, sessionID)
	last := true
	for _, other := range p.sessions {
		if sameName(other.Username, sess.Username) {
			last = false
			break
		}
	}
	p.s.publish(Event{Kind: EventUserChanged, Username: sess.Username, Joining: false})
	p.s.publish(Event{Kind: EventUsersListChanged})
	p.mu.Unlock()

	p.s.rec.SessionsChanged(-1)
	p.s.typing.ClearUser(sess.Username)

	if last && p.s.cfg.DMPolicy == DMEphemeral {
		p.s.directory.dropDirectFor(sess.Username)
	}
	p.s.logger.Debug("session left", "session_id", sessionID, "username", sess.Username)
}

// SetStatus changes the status of sessionID. Unknown sessions are ignored.
func (p *Presence) SetStatus(sessionID string, status Status) {
	if _, ok := ParseStatus(string(status)); !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sess, ok := p.sessions[sessionID]
	if !ok {
		return
	}
	sess.Status = status
	p.s.publish(Event{Kind: EventUserStatusChanged, Username: sess.Username, Status: status})
	p.s.publish(Event{Kind: EventUsersListChanged})
}

// Session returns a copy of the session registered under sessionID.
func (p *Presence) Session(sessionID string) (Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// Admin returns the admin username, or "" before the first join.
func (p *Presence) Admin() string {
	if a := p.admin.Load(); a != nil {
		return *a
	}
	return ""
}

// IsAdmin reports whether username is the admin.
func (p *Presence) IsAdmin(username string) bool {
	a := p.admin.Load()
	return a != nil && username != "" && sameName(*a, username)
}

// IsUsernameTaken reports whether an active session already uses username,
// compared case-insensitively.
func (p *Presence) IsUsernameTaken(username string) bool {
	key := foldName(username)
	if key == "" {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, sess := range p.sessions {
		if foldName(sess.Username) == key {
			return true
		}
	}
	return false
}

// OnlineUsers returns each visible username once, in join order.
func (p *Presence) OnlineUsers() []string {
	users := make([]string, 0)
	seen := make(map[string]bool)
	for _, sess := range p.ordered() {
		key := foldName(sess.Username)
		if seen[key] || sess.Status == StatusInvisible {
			continue
		}
		seen[key] = true
		users = append(users, sess.Username)
	}
	return users
}

// AllUsersWithStatus returns one entry per distinct username, in join order.
// The status shown is the one of that user's earliest session.
func (p *Presence) AllUsersWithStatus() []UserStatus {
	users := make([]UserStatus, 0)
	seen := make(map[string]bool)
	for _, sess := range p.ordered() {
		key := foldName(sess.Username)
		if seen[key] {
			continue
		}
		seen[key] = true
		users = append(users, UserStatus{Username: sess.Username, Status: sess.Status})
	}
	return users
}

func (p *Presence) ordered() []Session {
	p.mu.RLock()
	sessions := make([]Session, 0, len(p.sessions))
	for _, sess := range p.sessions {
		sessions = append(sessions, *sess)
	}
	p.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].order < sessions[j].order })
	return sessions
}

func (p *Presence) counts() (sessions, users int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	distinct := make(map[string]struct{}, len(p.sessions))
	for _, sess := range p.sessions {
		distinct[foldName(sess.Username)] = struct{}{}
	}
	return len(p.sessions), len(distinct)
}
