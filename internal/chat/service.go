// Package chat is the channel, presence and event-fanout engine behind yap.
//
// A Service owns every piece of chat state: channels, their bounded message
// histories, reactions, typing sets, sessions and the admin role. Host code
// calls into the Presence, Directory, Messages and Typing components on
// behalf of connected users and receives changes through Subscribe.
//
// Each component has its own lock and each channel its own history lock, so
// activity in one channel never waits on another. Persistence is mirrored
// asynchronously through a Gateway and never sits on a caller's path.
package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/urza/Yap/internal/fanout"
	"github.com/urza/Yap/internal/log"
)

// Service is the chat engine.
type Service struct {
	cfg    Config
	bus    *fanout.Bus[Event]
	mirror *mirror
	rec    Recorder
	now    func() time.Time
	logger *slog.Logger

	gateway Gateway
	loaded  atomic.Bool

	presence  *Presence
	directory *Directory
	messages  *Messages
	typing    *Typing

	closeOnce sync.Once
}

// Option configures a Service.
type Option func(*Service)

// WithGateway mirrors state changes to g and loads the startup snapshot from it.
func WithGateway(g Gateway) Option {
	return func(s *Service) { s.gateway = g }
}

// WithRecorder reports engine metrics to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithClock replaces time.Now, mainly for typing-expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service. Call Load once before serving sessions.
func New(cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg.withDefaults(),
		rec:    nopRecorder{},
		now:    time.Now,
		logger: log.Component("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bus = fanout.New[Event](fanout.WithFaultHook(func(name string, _ any) {
		s.rec.SubscriberFault(name)
	}))
	s.mirror = newMirror(s.gateway, s.cfg.MirrorQueueSize, s.rec, log.Component("mirror"))

	s.presence = newPresence(s)
	s.directory = newDirectory(s)
	s.messages = &Messages{s: s}
	s.typing = &Typing{s: s}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Presence returns the presence registry.
func (s *Service) Presence() *Presence { return s.presence }

// Directory returns the channel directory.
func (s *Service) Directory() *Directory { return s.directory }

// Messages returns the message store.
func (s *Service) Messages() *Messages { return s.messages }

// Typing returns the typing tracker.
func (s *Service) Typing() *Typing { return s.typing }

// Subscribe registers h for every future event until the subscription is closed.
func (s *Service) Subscribe(name string, h Handlers) *fanout.Subscription[Event] {
	return s.bus.Subscribe(name, h.dispatch)
}

// Load rehydrates channels and messages from the gateway and makes sure the
// default room exists. Only the first call has an effect. The Service is
// usable even when the snapshot cannot be read; the error is returned so the
// host can report it.
func (s *Service) Load(ctx context.Context) error {
	if !s.loaded.CompareAndSwap(false, true) {
		return nil
	}

	var loadErr error
	if s.gateway != nil {
		snap, err := s.gateway.LoadSnapshot(ctx)
		if err != nil {
			s.logger.Error("failed to load snapshot, starting empty", "error", err.Error())
			loadErr = err
		} else {
			s.restore(snap)
		}
	}

	s.directory.ensureDefaultRoom()
	return loadErr
}

func (s *Service) restore(snap Snapshot) {
	channels := append([]Channel(nil), snap.Channels...)
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].CreatedAt.Before(channels[j].CreatedAt)
	})

	var restoredChannels, restoredMessages int
	for _, c := range channels {
		if c.IsDirect() && s.cfg.DMPolicy == DMEphemeral {
			continue
		}
		if !s.directory.restore(c) {
			s.logger.Warn("skipping conflicting persisted channel", "channel_id", c.ID, "name", c.Name)
			continue
		}
		restoredChannels++
		restoredMessages += s.messages.restore(c.ID, snap.MessagesByChannel[c.ID])
	}

	s.logger.Info("restored chat state", "channels", restoredChannels, "messages", restoredMessages)
}

// Run expires stale typing entries every TypingSweepInterval and announces
// the affected channels. It blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.TypingSweepInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.TypingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.typing.Sweep(s.now())
		}
	}
}

// Close stops event delivery and flushes queued persistence writes.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.bus.Close()
		s.mirror.close()
	})
}

// Stats is a point-in-time summary of engine state.
type Stats struct {
	Sessions       int    `json:"sessions"`
	Users          int    `json:"users"`
	Rooms          int    `json:"rooms"`
	DirectMessages int    `json:"direct_messages"`
	Messages       int    `json:"messages"`
	Subscribers    int    `json:"subscribers"`
	EventsEmitted  uint64 `json:"events_emitted"`
	MirrorPending  int    `json:"mirror_pending"`
	MirrorDropped  uint64 `json:"mirror_dropped"`
	MirrorFailed   uint64 `json:"mirror_failed"`
	Admin          string `json:"admin,omitempty"`
}

// Stats returns current engine statistics.
func (s *Service) Stats() Stats {
	st := Stats{
		Subscribers:   s.bus.Len(),
		EventsEmitted: s.bus.Published(),
		MirrorPending: s.mirror.pending(),
		MirrorDropped: s.mirror.dropped.Load(),
		MirrorFailed:  s.mirror.failed.Load(),
		Admin:         s.presence.Admin(),
	}
	st.Sessions, st.Users = s.presence.counts()
	st.Rooms, st.DirectMessages, st.Messages = s.directory.counts()
	return st
}

func (s *Service) publish(e Event) {
	s.rec.EventPublished(string(e.Kind))
	s.bus.Publish(e)
}

// persistable reports whether changes to c are mirrored under the DM policy.
func (s *Service) persistable(c Channel) bool {
	return !c.IsDirect() || s.cfg.DMPolicy == DMPersistent
}
