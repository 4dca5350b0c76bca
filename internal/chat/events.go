package chat

// EventKind names one outbound notification stream.
type EventKind string

const (
	EventMessageReceived    EventKind = "message_received"
	EventMessageUpdated     EventKind = "message_updated"
	EventMessageDeleted     EventKind = "message_deleted"
	EventReactionChanged    EventKind = "reaction_changed"
	EventUserChanged        EventKind = "user_changed"
	EventUsersListChanged   EventKind = "users_list_changed"
	EventUserStatusChanged  EventKind = "user_status_changed"
	EventTypingUsersChanged EventKind = "typing_users_changed"
	EventChannelCreated     EventKind = "channel_created"
	EventChannelDeleted     EventKind = "channel_deleted"
	EventAdminChanged       EventKind = "admin_changed"
)

// Event is one state change delivered to subscribers. Only the fields
// relevant to Kind are set; Message and Channel are private copies.
// ChannelDeleted carries the removed channel so hosts can scope delivery.
type Event struct {
	Kind      EventKind
	Message   *Message
	Channel   *Channel
	ChannelID string
	// ChannelKind is set on channel-scoped events so receivers can scope
	// them after the channel itself is gone.
	ChannelKind ChannelKind
	MessageID   string
	Username    string
	Joining     bool
	Status      Status
	Admin       string
}

// Handlers holds the callbacks a session registers. Nil callbacks are skipped.
// OnEvent, when set, receives every event after the kind-specific callback.
type Handlers struct {
	OnMessageReceived    func(Message)
	OnMessageUpdated     func(Message)
	OnMessageDeleted     func(messageID, channelID string)
	OnReactionChanged    func(Message)
	OnUserChanged        func(username string, joining bool)
	OnUsersListChanged   func()
	OnUserStatusChanged  func(username string, status Status)
	OnTypingUsersChanged func(channelID string)
	OnChannelCreated     func(Channel)
	OnChannelDeleted     func(channelID string)
	OnAdminChanged       func(admin string)
	OnEvent              func(Event)
}

func (h Handlers) dispatch(e Event) {
	switch e.Kind {
	case EventMessageReceived:
		if h.OnMessageReceived != nil && e.Message != nil {
			h.OnMessageReceived(*e.Message)
		}
	case EventMessageUpdated:
		if h.OnMessageUpdated != nil && e.Message != nil {
			h.OnMessageUpdated(*e.Message)
		}
	case EventMessageDeleted:
		if h.OnMessageDeleted != nil {
			h.OnMessageDeleted(e.MessageID, e.ChannelID)
		}
	case EventReactionChanged:
		if h.OnReactionChanged != nil && e.Message != nil {
			h.OnReactionChanged(*e.Message)
		}
	case EventUserChanged:
		if h.OnUserChanged != nil {
			h.OnUserChanged(e.Username, e.Joining)
		}
	case EventUsersListChanged:
		if h.OnUsersListChanged != nil {
			h.OnUsersListChanged()
		}
	case EventUserStatusChanged:
		if h.OnUserStatusChanged != nil {
			h.OnUserStatusChanged(e.Username, e.Status)
		}
	case EventTypingUsersChanged:
		if h.OnTypingUsersChanged != nil {
			h.OnTypingUsersChanged(e.ChannelID)
		}
	case EventChannelCreated:
		if h.OnChannelCreated != nil && e.Channel != nil {
			h.OnChannelCreated(*e.Channel)
		}
	case EventChannelDeleted:
		if h.OnChannelDeleted != nil {
			h.OnChannelDeleted(e.ChannelID)
		}
	case EventAdminChanged:
		if h.OnAdminChanged != nil {
			h.OnAdminChanged(e.Admin)
		}
	}
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

func messageEvent(kind EventKind, m Message, ck ChannelKind) Event {
	return Event{Kind: kind, Message: &m, ChannelID: m.ChannelID, ChannelKind: ck, MessageID: m.ID}
}

func channelEvent(kind EventKind, c Channel) Event {
	return Event{Kind: kind, Channel: &c, ChannelID: c.ID, ChannelKind: c.Kind}
}
