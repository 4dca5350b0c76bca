// internal/server/middleware.go
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/urza/Yap/internal/log"
)

type contextKey string

const UserContextKey contextKey = "user"

// sessionMiddleware resolves the caller's chat username from a session token
// passed as ?session= or a Bearer header. Requests without a valid token, or
// whose session is no longer joined, continue anonymously.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("session")
		if token == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if token == "" || s.realtime == nil {
			next.ServeHTTP(w, r)
			return
		}

		sessionID, err := s.realtime.Tokens().SessionID(token)
		if err != nil {
			log.Debug("ignoring invalid session token", "request_id", log.GetRequestID(r.Context()))
			next.ServeHTTP(w, r)
			return
		}
		if sess, ok := s.chat.Presence().Session(sessionID); ok {
			r = r.WithContext(context.WithValue(r.Context(), UserContextKey, sess.Username))
		}
		next.ServeHTTP(w, r)
	})
}

// DebugTokenHeader carries the operator token for the debug endpoints.
const DebugTokenHeader = "X-Debug-Token"

// requireDebugToken rejects requests that do not present the configured
// operator token.
func (s *Server) requireDebugToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(DebugTokenHeader)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.debugKey)) != 1 {
			log.Warn("rejected debug request", "request_id", log.GetRequestID(r.Context()), "remote", r.RemoteAddr)
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid debug token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserFromContext returns the joined username for the request, or "".
func GetUserFromContext(r *http.Request) string {
	user, _ := r.Context().Value(UserContextKey).(string)
	return user
}
