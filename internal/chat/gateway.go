package chat

import "context"

// Gateway mirrors state changes to durable storage. The engine calls every
// mutating method from a background writer; errors are logged and counted,
// never returned to the chat operation that caused them.
type Gateway interface {
	PersistChannel(ctx context.Context, c Channel) error
	DeleteChannel(ctx context.Context, channelID string) error
	PersistMessage(ctx context.Context, m Message) error
	DeleteMessage(ctx context.Context, messageID string) error
	TrimMessages(ctx context.Context, channelID string, maxCount int) error
	AddReaction(ctx context.Context, messageID, emoji, username string) error
	RemoveReaction(ctx context.Context, messageID, emoji, username string) error

	// LoadSnapshot returns persisted state. It is called once, before any session joins.
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is the persisted state used to rehydrate the engine at startup.
type Snapshot struct {
	Channels          []Channel
	MessagesByChannel map[string][]Message
}

// Recorder receives engine metrics. Implementations must be safe for concurrent use.
type Recorder interface {
	MessageSent(channelKind string)
	EventPublished(kind string)
	SubscriberFault(subscriber string)
	MirrorDropped(op string)
	MirrorFailed(op string)
	SessionsChanged(delta int64)
}

type nopRecorder struct{}

func (nopRecorder) MessageSent(string)     {}
func (nopRecorder) EventPublished(string)  {}
func (nopRecorder) SubscriberFault(string) {}
func (nopRecorder) MirrorDropped(string)   {}
func (nopRecorder) MirrorFailed(string)    {}
func (nopRecorder) SessionsChanged(int64)  {}
