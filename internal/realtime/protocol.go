// Package realtime serves the chat engine over WebSocket.
//
// Every frame is a JSON object {"event", "ref", "payload"}. Clients send
// commands; the server answers each one with a "reply" frame carrying the
// same ref and pushes one frame per chat event the connection may see.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/urza/Yap/internal/chat"
)

// Frame is one protocol message in either direction.
type Frame struct {
	Event   string          `json:"event"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client events
const (
	EventHeartbeat  = "heartbeat"
	EventJoin       = "join"
	EventLeave      = "leave"
	EventStatus     = "status"
	EventSend       = "send"
	EventEdit       = "edit"
	EventDelete     = "delete"
	EventReact      = "react"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
	EventCreateRoom = "create_room"
	EventDeleteRoom = "delete_room"
	EventOpenDM     = "open_dm"
	EventHistory    = "history"
	EventMarkRead   = "mark_read"
)

// Server events. Pushed chat events use the chat.EventKind names.
const (
	EventReply = "reply"
	EventHello = "hello"
)

// Reply error codes
const (
	CodeNotAdmin       = "not_admin"
	CodeNameTaken      = "name_taken"
	CodeInvalidName    = "invalid_name"
	CodeUsernameTaken  = "username_taken"
	CodeNotFound       = "not_found"
	CodeForbidden      = "forbidden"
	CodeInvalidPayload = "invalid_payload"
	CodeRateLimited    = "rate_limited"
	CodeNotJoined      = "not_joined"
)

// Client payloads

type JoinPayload struct {
	Username string `json:"username"`
	Status   string `json:"status,omitempty"`
}

type StatusPayload struct {
	Status string `json:"status"`
}

type SendPayload struct {
	ChannelID string   `json:"channel_id"`
	Body      string   `json:"body"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

type EditPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

type MessageRefPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type ReactPayload struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type ChannelPayload struct {
	ChannelID string `json:"channel_id"`
}

type CreateRoomPayload struct {
	Name string `json:"name"`
}

type OpenDMPayload struct {
	Username string `json:"username"`
}

type HistoryPayload struct {
	ChannelID string `json:"channel_id"`
	Before    string `json:"before,omitempty"`
	Count     int    `json:"count,omitempty"`
}

// Server payloads

// ReplyPayload answers one client frame.
type ReplyPayload struct {
	Status   string `json:"status"` // "ok" or "error"
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
	Response any    `json:"response,omitempty"`
}

// HelloPayload is the first frame on every connection.
type HelloPayload struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
	Resumed   bool   `json:"resumed"`
}

// JoinResponse describes the chat as seen by a newly joined user.
type JoinResponse struct {
	SessionID        string            `json:"session_id"`
	Username         string            `json:"username"`
	Admin            string            `json:"admin"`
	IsAdmin          bool              `json:"is_admin"`
	DefaultChannelID string            `json:"default_channel_id"`
	Rooms            []chat.Channel    `json:"rooms"`
	DMs              []chat.Channel    `json:"dms"`
	Users            []chat.UserStatus `json:"users"`
}

// HistoryResponse is one page of channel history.
type HistoryResponse struct {
	ChannelID string         `json:"channel_id"`
	Messages  []chat.Message `json:"messages"`
	Unread    int            `json:"unread"`
}

// NewFrame builds a frame with payload encoded as JSON.
func NewFrame(event, ref string, payload any) (*Frame, error) {
	f := &Frame{Event: event, Ref: ref}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
		}
		f.Payload = data
	}
	return f, nil
}

// NewReply creates a successful reply to ref.
func NewReply(ref string, response any) (*Frame, error) {
	return NewFrame(EventReply, ref, ReplyPayload{Status: "ok", Response: response})
}

// NewErrorReply creates a failed reply to ref.
func NewErrorReply(ref, code, message string) (*Frame, error) {
	return NewFrame(EventReply, ref, ReplyPayload{Status: "error", Code: code, Message: message})
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("missing payload for %s", f.Event)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", f.Event, err)
	}
	return nil
}

// Encode serializes a frame to JSON bytes
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses JSON bytes into a Frame
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid frame format: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("invalid frame format: missing event")
	}
	return &f, nil
}
