package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const mirrorOpTimeout = 10 * time.Second

type mirrorOp struct {
	name  string
	attrs []any
	apply func(ctx context.Context, g Gateway) error
}

// mirror is a bounded write-behind queue in front of a Gateway. A single
// worker applies operations in submission order. When the queue is full the
// operation is dropped and counted.
type mirror struct {
	gateway Gateway
	rec     Recorder
	logger  *slog.Logger

	mu     sync.RWMutex
	ops    chan mirrorOp
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newMirror(g Gateway, capacity int, rec Recorder, logger *slog.Logger) *mirror {
	m := &mirror{gateway: g, rec: rec, logger: logger}
	if g == nil {
		return m
	}
	m.ops = make(chan mirrorOp, capacity)
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *mirror) enabled() bool {
	return m.gateway != nil
}

func (m *mirror) submit(op mirrorOp) {
	if !m.enabled() {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	select {
	case m.ops <- op:
	default:
		m.dropped.Add(1)
		m.rec.MirrorDropped(op.name)
		m.logger.Warn("persistence queue full, dropping write", append([]any{"op", op.name}, op.attrs...)...)
	}
}

func (m *mirror) run() {
	defer m.wg.Done()
	for op := range m.ops {
		m.apply(op)
	}
}

func (m *mirror) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorOpTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("gateway panic: %v", r)
			}
		}()
		return op.apply(ctx, m.gateway)
	}()
	if err != nil {
		m.failed.Add(1)
		m.rec.MirrorFailed(op.name)
		m.logger.Error("persistence write failed", append([]any{"op", op.name, "error", err.Error()}, op.attrs...)...)
	}
}

// pending returns the number of queued writes.
func (m *mirror) pending() int {
	if !m.enabled() {
		return 0
	}
	return len(m.ops)
}

// close stops accepting writes and waits for queued ones to finish.
func (m *mirror) close() {
	if !m.enabled() {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.ops)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *mirror) persistChannel(c Channel) {
	m.submit(mirrorOp{
		name:  "persist_channel",
		attrs: []any{"channel_id", c.ID},
		apply: func(ctx context.Context, g Gateway) error { return g.PersistChannel(ctx, c) },
	})
}

func (m *mirror) deleteChannel(channelID string) {
	m.submit(mirrorOp{
		name:  "delete_channel",
		attrs: []any{"channel_id", channelID},
		apply: func(ctx context.Context, g Gateway) error { return g.DeleteChannel(ctx, channelID) },
	})
}

func (m *mirror) persistMessage(msg Message) {
	m.submit(mirrorOp{
		name:  "persist_message",
		attrs: []any{"channel_id", msg.ChannelID, "message_id", msg.ID},
		apply: func(ctx context.Context, g Gateway) error { return g.PersistMessage(ctx, msg) },
	})
}

func (m *mirror) deleteMessage(channelID, messageID string) {
	m.submit(mirrorOp{
		name:  "delete_message",
		attrs: []any{"channel_id", channelID, "message_id", messageID},
		apply: func(ctx context.Context, g Gateway) error { return g.DeleteMessage(ctx, messageID) },
	})
}

func (m *mirror) trimMessages(channelID string, maxCount int) {
	m.submit(mirrorOp{
		name:  "trim_messages",
		attrs: []any{"channel_id", channelID, "max", maxCount},
		apply: func(ctx context.Context, g Gateway) error { return g.TrimMessages(ctx, channelID, maxCount) },
	})
}

func (m *mirror) addReaction(messageID, emoji, username string) {
	m.submit(mirrorOp{
		name:  "add_reaction",
		attrs: []any{"message_id", messageID, "emoji", emoji},
		apply: func(ctx context.Context, g Gateway) error { return g.AddReaction(ctx, messageID, emoji, username) },
	})
}

func (m *mirror) removeReaction(messageID, emoji, username string) {
	m.submit(mirrorOp{
		name:  "remove_reaction",
		attrs: []any{"message_id", messageID, "emoji", emoji},
		apply: func(ctx context.Context, g Gateway) error { return g.RemoveReaction(ctx, messageID, emoji, username) },
	})
}
