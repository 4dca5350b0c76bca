// internal/realtime/hub.go
package realtime

import "sync"

// Hub tracks open connections and which connection currently owns each
// session. A reconnect that resumes a session takes it over from the
// previous connection.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Conn // connID -> Conn
	sessions    map[string]*Conn // sessionID -> owning Conn
}

// HubStats contains realtime statistics
type HubStats struct {
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Conn),
		sessions:    make(map[string]*Conn),
	}
}

// Stats returns current realtime statistics
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{Connections: len(h.connections), Sessions: len(h.sessions)}
}

// registerConn adds a connection and makes it the owner of its session. It
// returns the connection previously owning the session, if any.
func (h *Hub) registerConn(conn *Conn) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.id] = conn
	prev := h.sessions[conn.sessionID]
	h.sessions[conn.sessionID] = conn
	if prev == conn {
		return nil
	}
	return prev
}

// unregisterConn removes a connection and reports whether it still owned
// its session.
func (h *Hub) unregisterConn(conn *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn.id)
	if h.sessions[conn.sessionID] != conn {
		return false
	}
	delete(h.sessions, conn.sessionID)
	return true
}

// ownerOf returns the connection currently owning sessionID.
func (h *Hub) ownerOf(sessionID string) *Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionID]
}
