// internal/server/handlers.go
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/fts"
	"github.com/urza/Yap/internal/log"
	"github.com/urza/Yap/internal/realtime"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	defaultLogLines = 100
	maxSearchHits   = 100
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, errCode, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// RoomsResponse lists the channels visible to the caller.
type RoomsResponse struct {
	Rooms []chat.Channel `json:"rooms"`
	DMs   []chat.Channel `json:"dms"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	dir := s.chat.Directory()
	resp := RoomsResponse{Rooms: dir.ListRooms(), DMs: []chat.Channel{}}
	if user := GetUserFromContext(r); user != "" {
		resp.DMs = dir.ListDMs(user)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	presence := s.chat.Presence()
	json.NewEncoder(w).Encode(map[string]any{
		"users": realtime.VisibleUsers(presence.AllUsersWithStatus()),
		"admin": presence.Admin(),
	})
}

// channelFor resolves the {id} route parameter and writes 404 or 403 when
// the caller cannot read the channel.
func (s *Server) channelFor(w http.ResponseWriter, r *http.Request) (chat.Channel, string, bool) {
	dir := s.chat.Directory()
	ch, ok := dir.GetChannel(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "not_found", "Channel not found")
		return chat.Channel{}, "", false
	}
	user := GetUserFromContext(r)
	if ch.IsDirect() && !dir.AccessCheck(ch, user) {
		s.writeError(w, http.StatusForbidden, "forbidden", "No access to this channel")
		return chat.Channel{}, "", false
	}
	return ch, user, true
}

// positiveParam reads an optional positive integer query parameter.
func (s *Server) positiveParam(w http.ResponseWriter, r *http.Request, name string, def, limit int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid_request", name+" must be a positive integer")
		return 0, false
	}
	return min(n, limit), true
}

func (s *Server) handleChannelMessages(w http.ResponseWriter, r *http.Request) {
	ch, user, ok := s.channelFor(w, r)
	if !ok {
		return
	}
	channelID := ch.ID

	count, ok := s.positiveParam(w, r, "count", defaultPageSize, maxPageSize)
	if !ok {
		return
	}

	msgs := s.chat.Messages()
	resp := realtime.HistoryResponse{ChannelID: channelID}
	if before := r.URL.Query().Get("before"); before != "" {
		resp.Messages = msgs.GetBefore(channelID, before, count)
	} else {
		resp.Messages = msgs.GetRecent(channelID, count)
	}
	if user != "" {
		resp.Unread = msgs.UnreadCount(channelID, user)
	}
	json.NewEncoder(w).Encode(resp)
}

// SearchResponse is the body of GET /api/v1/channels/{id}/search.
type SearchResponse struct {
	ChannelID string    `json:"channel_id"`
	Query     string    `json:"query"`
	Hits      []fts.Hit `json:"hits"`
}

func (s *Server) handleChannelSearch(w http.ResponseWriter, r *http.Request) {
	ch, _, ok := s.channelFor(w, r)
	if !ok {
		return
	}
	limit, ok := s.positiveParam(w, r, "limit", 20, maxSearchHits)
	if !ok {
		return
	}

	q := r.URL.Query().Get("q")
	hits, err := s.search.Search(r.Context(), ch.ID, q, r.URL.Query().Get("type"), limit)
	if err != nil {
		if errors.Is(err, fts.ErrInvalidQuery) {
			s.writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		log.Error("message search failed", "channel_id", ch.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "search_failed", "Search failed")
		return
	}
	json.NewEncoder(w).Encode(SearchResponse{ChannelID: ch.ID, Query: q, Hits: hits})
}

func (s *Server) handleDebugLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid_request", "n must be a positive integer")
			return
		}
		n = parsed
	}
	lines := log.GetBufferedLogs(n)
	if lines == nil {
		s.writeError(w, http.StatusNotFound, "buffer_disabled", "Log buffering is disabled")
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"lines": lines})
}
