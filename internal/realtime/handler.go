// internal/realtime/handler.go
package realtime

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/urza/Yap/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (CORS handled elsewhere)
	},
}

// HandleWebSocket handles WebSocket upgrade requests. A client resumes an
// earlier session by passing the token from its hello frame as ?session=.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	if token := r.URL.Query().Get("session"); token != "" {
		id, err := s.tokens.SessionID(token)
		if err != nil {
			s.logger.Debug("rejected session token", "error", err.Error())
			http.Error(w, "Invalid session token", http.StatusUnauthorized)
			return
		}
		sessionID = id
	}

	token, err := s.tokens.Issue(sessionID)
	if err != nil {
		s.logger.Error("failed to issue session token", "error", err.Error())
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err.Error())
		return
	}

	conn := s.newConn(ws, sessionID)
	resumed := s.adopt(conn)
	conn.attach(s.chat.Subscribe("realtime:"+conn.id, chat.Handlers{OnEvent: conn.onEvent}))

	if hello, err := NewFrame(EventHello, "", HelloPayload{SessionID: sessionID, Token: token, Resumed: resumed}); err == nil {
		conn.Send(hello)
	}
	s.logger.Debug("new connection", "conn_id", conn.id, "session_id", sessionID, "resumed", resumed)

	go conn.WritePump()
	go conn.ReadPump()
}

// adopt registers conn as the owner of its session, closing any connection
// it replaces. A session that is still joined carries its username over.
func (s *Service) adopt(conn *Conn) bool {
	if prev := s.hub.registerConn(conn); prev != nil {
		s.logger.Debug("session taken over", "session_id", conn.sessionID, "old_conn_id", prev.id, "conn_id", conn.id)
		prev.Close()
	}
	s.connectionsChanged(1)

	sess, ok := s.chat.Presence().Session(conn.sessionID)
	if ok {
		conn.setUser(sess.Username)
	}
	return ok
}
