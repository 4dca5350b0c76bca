// internal/realtime/conn.go
package realtime

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/fanout"
)

const (
	// Send buffer size for outbound messages
	sendBufferSize = 256

	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 50 * time.Second

	// Maximum message size
	maxMessageSize = 64 * 1024
)

// Conn is one WebSocket client bound to a chat session.
type Conn struct {
	id        string
	sessionID string
	ws        *websocket.Conn
	svc       *Service
	limiter   *rate.Limiter

	mu       sync.Mutex
	username string // set once the session has joined
	sub      *fanout.Subscription[chat.Event]

	send      chan []byte // outbound message queue
	done      chan struct{}
	closeOnce sync.Once
}

func (s *Service) newConn(ws *websocket.Conn, sessionID string) *Conn {
	return &Conn{
		id:        uuid.NewString(),
		sessionID: sessionID,
		ws:        ws,
		svc:       s,
		limiter:   s.newLimiter(),
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
	}
}

// ID returns the connection ID
func (c *Conn) ID() string {
	return c.id
}

// SessionID returns the chat session served by this connection.
func (c *Conn) SessionID() string {
	return c.sessionID
}

func (c *Conn) user() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Conn) setUser(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// attach binds the event subscription. A connection closed in the meantime
// releases it immediately.
func (c *Conn) attach(sub *fanout.Subscription[chat.Event]) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	select {
	case <-c.done:
		sub.Close()
	default:
	}
}

// Send queues a frame for sending. Frames for a full buffer are dropped.
func (c *Conn) Send(f *Frame) {
	data, err := f.Encode()
	if err != nil {
		c.svc.logger.Error("failed to encode frame", "conn_id", c.id, "event", f.Event, "error", err.Error())
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		c.svc.logger.Warn("send buffer full, dropping frame", "conn_id", c.id, "event", f.Event)
	}
}

func (c *Conn) reply(ref string, response any) {
	f, err := NewReply(ref, response)
	if err != nil {
		c.svc.logger.Error("failed to build reply", "conn_id", c.id, "error", err.Error())
		return
	}
	c.Send(f)
}

func (c *Conn) replyError(ref, code, message string) {
	f, err := NewErrorReply(ref, code, message)
	if err != nil {
		return
	}
	c.Send(f)
}

// Close ends the connection. If it still owns its session, the session
// leaves the chat.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
		c.mu.Lock()
		sub := c.sub
		c.mu.Unlock()
		if sub != nil {
			sub.Close()
		}
		owned := c.svc.hub.unregisterConn(c)
		c.svc.connectionsChanged(-1)
		if owned && c.user() != "" {
			c.svc.chat.Presence().Leave(c.sessionID)
		}
		c.svc.logger.Debug("connection closed", "conn_id", c.id, "session_id", c.sessionID, "owned", owned)
	})
}

// ReadPump reads frames from the WebSocket connection
func (c *Conn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.svc.logger.Debug("read error", "conn_id", c.id, "error", err.Error())
			}
			return
		}

		f, err := DecodeFrame(data)
		if err != nil {
			c.replyError("", CodeInvalidPayload, err.Error())
			continue
		}
		c.handleFrame(f)
	}
}

// WritePump writes queued frames to the WebSocket connection
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// onEvent forwards a chat event the connection's user may see.
func (c *Conn) onEvent(e chat.Event) {
	if !visibleTo(e, c.user(), c.svc.chat.Directory()) {
		return
	}
	f, err := NewFrame(string(e.Kind), "", pushPayload(e, c.svc.chat))
	if err != nil {
		c.svc.logger.Error("failed to build push frame", "conn_id", c.id, "event", string(e.Kind), "error", err.Error())
		return
	}
	c.Send(f)
}

// handleFrame routes an incoming frame to its handler
func (c *Conn) handleFrame(f *Frame) {
	if f.Event != EventHeartbeat && !c.limiter.Allow() {
		c.replyError(f.Ref, CodeRateLimited, "too many requests")
		return
	}

	switch f.Event {
	case EventHeartbeat:
		c.reply(f.Ref, nil)
	case EventJoin:
		c.handleJoin(f)
	case EventLeave:
		c.handleLeave(f)
	case EventStatus:
		c.handleStatus(f)
	case EventSend:
		c.handleSend(f)
	case EventEdit:
		c.handleEdit(f)
	case EventDelete:
		c.handleDelete(f)
	case EventReact:
		c.handleReact(f)
	case EventTyping, EventStopTyping:
		c.handleTyping(f)
	case EventCreateRoom:
		c.handleCreateRoom(f)
	case EventDeleteRoom:
		c.handleDeleteRoom(f)
	case EventOpenDM:
		c.handleOpenDM(f)
	case EventHistory:
		c.handleHistory(f)
	case EventMarkRead:
		c.handleMarkRead(f)
	default:
		c.replyError(f.Ref, CodeInvalidPayload, "unknown event "+f.Event)
	}
}

// decode unmarshals the payload or answers with invalid_payload.
func (c *Conn) decode(f *Frame, v any) bool {
	if err := f.Decode(v); err != nil {
		c.replyError(f.Ref, CodeInvalidPayload, err.Error())
		return false
	}
	return true
}

// joined returns the session's username or answers with not_joined.
func (c *Conn) joined(f *Frame) (string, bool) {
	username := c.user()
	if username == "" {
		c.replyError(f.Ref, CodeNotJoined, "join first")
		return "", false
	}
	return username, true
}

// channel resolves channelID for username or answers with not_found/forbidden.
func (c *Conn) channel(f *Frame, channelID, username string) (chat.Channel, bool) {
	dir := c.svc.chat.Directory()
	ch, ok := dir.GetChannel(channelID)
	if !ok {
		c.replyError(f.Ref, CodeNotFound, "channel not found")
		return chat.Channel{}, false
	}
	if !dir.AccessCheck(ch, username) {
		c.replyError(f.Ref, CodeForbidden, "no access to channel")
		return chat.Channel{}, false
	}
	return ch, true
}

func (c *Conn) handleJoin(f *Frame) {
	var p JoinPayload
	if !c.decode(f, &p) {
		return
	}
	username := strings.TrimSpace(p.Username)
	if username == "" || len(username) > 32 {
		c.replyError(f.Ref, CodeInvalidPayload, "username must be 1-32 characters")
		return
	}
	status := chat.StatusOnline
	if p.Status != "" {
		s, ok := chat.ParseStatus(p.Status)
		if !ok {
			c.replyError(f.Ref, CodeInvalidPayload, "unknown status "+p.Status)
			return
		}
		status = s
	}

	presence := c.svc.chat.Presence()
	current, rejoin := presence.Session(c.sessionID)
	sameUser := rejoin && strings.EqualFold(current.Username, username)
	if !sameUser && presence.IsUsernameTaken(username) {
		c.replyError(f.Ref, CodeUsernameTaken, "username is already in use")
		return
	}

	presence.Join(c.sessionID, username, status)
	c.setUser(username)

	dir := c.svc.chat.Directory()
	def, _ := dir.Default()
	c.reply(f.Ref, JoinResponse{
		SessionID:        c.sessionID,
		Username:         username,
		Admin:            presence.Admin(),
		IsAdmin:          presence.IsAdmin(username),
		DefaultChannelID: def.ID,
		Rooms:            dir.ListRooms(),
		DMs:              dir.ListDMs(username),
		Users:            VisibleUsers(presence.AllUsersWithStatus()),
	})
}

func (c *Conn) handleLeave(f *Frame) {
	if _, ok := c.joined(f); !ok {
		return
	}
	c.svc.chat.Presence().Leave(c.sessionID)
	c.setUser("")
	c.reply(f.Ref, nil)
}

func (c *Conn) handleStatus(f *Frame) {
	if _, ok := c.joined(f); !ok {
		return
	}
	var p StatusPayload
	if !c.decode(f, &p) {
		return
	}
	status, ok := chat.ParseStatus(p.Status)
	if !ok {
		c.replyError(f.Ref, CodeInvalidPayload, "unknown status "+p.Status)
		return
	}
	c.svc.chat.Presence().SetStatus(c.sessionID, status)
	c.reply(f.Ref, nil)
}

func (c *Conn) handleSend(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p SendPayload
	if !c.decode(f, &p) {
		return
	}
	if _, ok := c.channel(f, p.ChannelID, username); !ok {
		return
	}
	msg, ok := c.svc.chat.Messages().Send(p.ChannelID, username, p.Body, p.ImageURLs)
	if !ok {
		c.replyError(f.Ref, CodeInvalidPayload, "message is empty")
		return
	}
	c.reply(f.Ref, map[string]any{"message": msg})
}

// messageAction resolves the target message and reports not_found, or
// forbidden when the action itself is refused.
func (c *Conn) messageAction(f *Frame, channelID, messageID, username string, action func() bool) {
	if _, ok := c.channel(f, channelID, username); !ok {
		return
	}
	if _, ok := c.svc.chat.Messages().Get(channelID, messageID); !ok {
		c.replyError(f.Ref, CodeNotFound, "message not found")
		return
	}
	if !action() {
		c.replyError(f.Ref, CodeForbidden, "not allowed")
		return
	}
	c.reply(f.Ref, nil)
}

func (c *Conn) handleEdit(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p EditPayload
	if !c.decode(f, &p) {
		return
	}
	c.messageAction(f, p.ChannelID, p.MessageID, username, func() bool {
		return c.svc.chat.Messages().Edit(p.ChannelID, p.MessageID, username, p.Body)
	})
}

func (c *Conn) handleDelete(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p MessageRefPayload
	if !c.decode(f, &p) {
		return
	}
	c.messageAction(f, p.ChannelID, p.MessageID, username, func() bool {
		return c.svc.chat.Messages().Delete(p.ChannelID, p.MessageID, username)
	})
}

func (c *Conn) handleReact(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p ReactPayload
	if !c.decode(f, &p) {
		return
	}
	if strings.TrimSpace(p.Emoji) == "" {
		c.replyError(f.Ref, CodeInvalidPayload, "emoji is required")
		return
	}
	if _, ok := c.channel(f, p.ChannelID, username); !ok {
		return
	}
	msg, ok := c.svc.chat.Messages().ToggleReaction(p.ChannelID, p.MessageID, username, p.Emoji)
	if !ok {
		c.replyError(f.Ref, CodeNotFound, "message not found")
		return
	}
	c.reply(f.Ref, map[string]any{"message": msg})
}

func (c *Conn) handleTyping(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p ChannelPayload
	if !c.decode(f, &p) {
		return
	}
	if _, ok := c.channel(f, p.ChannelID, username); !ok {
		return
	}
	if f.Event == EventTyping {
		c.svc.chat.Typing().StartTyping(p.ChannelID, username)
	} else {
		c.svc.chat.Typing().StopTyping(p.ChannelID, username)
	}
	c.reply(f.Ref, nil)
}

func (c *Conn) handleCreateRoom(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p CreateRoomPayload
	if !c.decode(f, &p) {
		return
	}
	room, err := c.svc.chat.Directory().CreateRoom(username, p.Name)
	switch {
	case errors.Is(err, chat.ErrNotAdmin):
		c.replyError(f.Ref, CodeNotAdmin, err.Error())
	case errors.Is(err, chat.ErrNameTaken):
		c.replyError(f.Ref, CodeNameTaken, err.Error())
	case errors.Is(err, chat.ErrInvalidName):
		c.replyError(f.Ref, CodeInvalidName, err.Error())
	case err != nil:
		c.replyError(f.Ref, CodeInvalidPayload, err.Error())
	default:
		c.reply(f.Ref, map[string]any{"channel": room})
	}
}

func (c *Conn) handleDeleteRoom(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p ChannelPayload
	if !c.decode(f, &p) {
		return
	}
	dir := c.svc.chat.Directory()
	if dir.DeleteRoom(username, p.ChannelID) {
		c.reply(f.Ref, nil)
		return
	}
	switch _, exists := dir.GetChannel(p.ChannelID); {
	case !c.svc.chat.Presence().IsAdmin(username):
		c.replyError(f.Ref, CodeNotAdmin, "only the admin can delete rooms")
	case !exists:
		c.replyError(f.Ref, CodeNotFound, "channel not found")
	default:
		c.replyError(f.Ref, CodeForbidden, "this channel cannot be deleted")
	}
}

func (c *Conn) handleOpenDM(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p OpenDMPayload
	if !c.decode(f, &p) {
		return
	}
	dm, ok := c.svc.chat.Directory().GetOrCreateDM(username, p.Username)
	if !ok {
		c.replyError(f.Ref, CodeInvalidPayload, "cannot open a conversation with that user")
		return
	}
	c.reply(f.Ref, map[string]any{"channel": dm})
}

func (c *Conn) handleHistory(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p HistoryPayload
	if !c.decode(f, &p) {
		return
	}
	if _, ok := c.channel(f, p.ChannelID, username); !ok {
		return
	}
	count := p.Count
	if count <= 0 {
		count = c.svc.cfg.HistoryPageSize
	}

	msgs := c.svc.chat.Messages()
	var page []chat.Message
	if p.Before == "" {
		page = msgs.GetRecent(p.ChannelID, count)
	} else {
		page = msgs.GetBefore(p.ChannelID, p.Before, count)
	}
	c.reply(f.Ref, HistoryResponse{
		ChannelID: p.ChannelID,
		Messages:  page,
		Unread:    msgs.UnreadCount(p.ChannelID, username),
	})
}

func (c *Conn) handleMarkRead(f *Frame) {
	username, ok := c.joined(f)
	if !ok {
		return
	}
	var p ChannelPayload
	if !c.decode(f, &p) {
		return
	}
	if _, ok := c.channel(f, p.ChannelID, username); !ok {
		return
	}
	marked := c.svc.chat.Messages().MarkRead(p.ChannelID, username)
	c.reply(f.Ref, map[string]any{"marked": marked})
}
