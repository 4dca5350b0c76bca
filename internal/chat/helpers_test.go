package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg Config, opts ...Option) *Service {
	t.Helper()
	s := New(cfg, opts...)
	require.NoError(t, s.Load(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func lobby(t *testing.T, s *Service) Channel {
	t.Helper()
	c, ok := s.Directory().Default()
	require.True(t, ok)
	return c
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// eventLog collects every event delivered to one subscription.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func subscribeLog(t *testing.T, s *Service) *eventLog {
	t.Helper()
	l := &eventLog{}
	sub := s.Subscribe("test-"+t.Name(), Handlers{OnEvent: func(e Event) {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	}})
	t.Cleanup(sub.Close)
	return l
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	var out []Event
	for _, e := range l.all() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) waitKind(t *testing.T, kind EventKind, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(l.ofKind(kind)) >= n }, 2*time.Second, 5*time.Millisecond)
	return l.ofKind(kind)
}

func (l *eventLog) kinds() []EventKind {
	var out []EventKind
	for _, e := range l.all() {
		out = append(out, e.Kind)
	}
	return out
}

// fakeGateway records every mirrored write in order.
type fakeGateway struct {
	mu       sync.Mutex
	ops      []string
	messages map[string]Message
	channels map[string]Channel

	snapshot Snapshot
	loadErr  error
	failWith error
	loads    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(map[string]Message), channels: make(map[string]Channel)}
}

func (g *fakeGateway) record(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, op)
	return g.failWith
}

func (g *fakeGateway) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.ops...)
}

func (g *fakeGateway) PersistChannel(_ context.Context, c Channel) error {
	g.mu.Lock()
	g.channels[c.ID] = c
	g.mu.Unlock()
	return g.record("persist_channel:" + c.ID)
}

func (g *fakeGateway) DeleteChannel(_ context.Context, id string) error {
	g.mu.Lock()
	delete(g.channels, id)
	g.mu.Unlock()
	return g.record("delete_channel:" + id)
}

func (g *fakeGateway) PersistMessage(_ context.Context, m Message) error {
	g.mu.Lock()
	g.messages[m.ID] = m
	g.mu.Unlock()
	return g.record("persist_message:" + m.ID)
}

func (g *fakeGateway) DeleteMessage(_ context.Context, id string) error {
	return g.record("delete_message:" + id)
}

func (g *fakeGateway) TrimMessages(_ context.Context, channelID string, maxCount int) error {
	return g.record(fmt.Sprintf("trim_messages:%s:%d", channelID, maxCount))
}

func (g *fakeGateway) AddReaction(_ context.Context, messageID, emoji, username string) error {
	return g.record("add_reaction:" + messageID + ":" + emoji + ":" + username)
}

func (g *fakeGateway) RemoveReaction(_ context.Context, messageID, emoji, username string) error {
	return g.record("remove_reaction:" + messageID + ":" + emoji + ":" + username)
}

func (g *fakeGateway) LoadSnapshot(context.Context) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loads++
	return g.snapshot, g.loadErr
}

var errGatewayDown = errors.New("gateway down")

// countingRecorder counts Recorder calls by method.
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	active int64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: make(map[string]int)}
}

func (r *countingRecorder) inc(key string) {
	r.mu.Lock()
	r.counts[key]++
	r.mu.Unlock()
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *countingRecorder) MessageSent(kind string) { r.inc("sent:" + kind) }
func (r *countingRecorder) EventPublished(kind string) { r.inc("event:" + kind) }
func (r *countingRecorder) SubscriberFault(name string) { r.inc("fault:" + name) }
func (r *countingRecorder) MirrorDropped(op string) { r.inc("dropped:" + op) }
func (r *countingRecorder) MirrorFailed(op string) { r.inc("failed:" + op) }
func (r *countingRecorder) SessionsChanged(delta int64) {
	r.mu.Lock()
	r.active += delta
	r.mu.Unlock()
}
