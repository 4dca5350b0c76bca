// internal/realtime/filter.go
package realtime

import (
	"github.com/urza/Yap/internal/chat"
)

// visibleTo reports whether a connection whose user is username may see e.
// Events scoped to a DM only reach its two participants; everything else is
// public. Once a channel is gone its events stay public only if it was a room.
func visibleTo(e chat.Event, username string, dir *chat.Directory) bool {
	switch e.Kind {
	case chat.EventChannelCreated, chat.EventChannelDeleted:
		if e.Channel == nil {
			return false
		}
		return canSee(*e.Channel, username)
	case chat.EventMessageReceived, chat.EventMessageUpdated, chat.EventMessageDeleted,
		chat.EventReactionChanged, chat.EventTypingUsersChanged:
		c, ok := dir.GetChannel(e.ChannelID)
		if !ok {
			return e.ChannelKind == chat.KindRoom
		}
		return canSee(c, username)
	}
	return true
}

func canSee(c chat.Channel, username string) bool {
	if !c.IsDirect() {
		return true
	}
	return username != "" && c.HasParticipant(username)
}

// pushPayload builds the payload pushed to clients for e.
func pushPayload(e chat.Event, svc *chat.Service) any {
	switch e.Kind {
	case chat.EventMessageReceived, chat.EventMessageUpdated, chat.EventReactionChanged:
		return map[string]any{"message": e.Message}
	case chat.EventMessageDeleted:
		return map[string]any{"message_id": e.MessageID, "channel_id": e.ChannelID}
	case chat.EventUserChanged:
		return map[string]any{"username": e.Username, "joining": e.Joining}
	case chat.EventUsersListChanged:
		return map[string]any{"users": VisibleUsers(svc.Presence().AllUsersWithStatus())}
	case chat.EventUserStatusChanged:
		return map[string]any{"username": e.Username, "status": e.Status}
	case chat.EventTypingUsersChanged:
		return map[string]any{"channel_id": e.ChannelID, "users": svc.Typing().GetTypingUsers(e.ChannelID)}
	case chat.EventChannelCreated:
		return map[string]any{"channel": e.Channel}
	case chat.EventChannelDeleted:
		return map[string]any{"channel_id": e.ChannelID}
	case chat.EventAdminChanged:
		return map[string]any{"admin": e.Admin}
	}
	return nil
}

// VisibleUsers drops invisible users from a roster shown to other clients.
func VisibleUsers(users []chat.UserStatus) []chat.UserStatus {
	out := make([]chat.UserStatus, 0, len(users))
	for _, u := range users {
		if u.Status != chat.StatusInvisible {
			out = append(out, u)
		}
	}
	return out
}
