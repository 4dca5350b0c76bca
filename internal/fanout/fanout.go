// Package fanout delivers published events to independent subscribers.
//
// Every subscriber owns a FIFO mailbox drained by its own goroutine, so
// Publish never waits on a slow or failing callback and each subscriber sees
// events in the order they were published. A panicking callback is recovered
// and reported; delivery to the other subscribers is unaffected.
package fanout

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/urza/Yap/internal/log"
)

// Option configures a Bus.
type Option func(*options)

type options struct {
	onFault func(subscriber string, recovered any)
	logger  *slog.Logger
}

// WithFaultHook registers fn to be called after a subscriber callback panics.
func WithFaultHook(fn func(subscriber string, recovered any)) Option {
	return func(o *options) { o.onFault = fn }
}

// WithLogger overrides the logger used for fault reports.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Bus is a set of subscribers that receive every published event.
type Bus[E any] struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription[E]
	nextID uint64
	closed bool

	published atomic.Uint64
	opts      options
}

// New creates an empty bus.
func New[E any](opts ...Option) *Bus[E] {
	b := &Bus[E]{subs: make(map[uint64]*Subscription[E])}
	for _, opt := range opts {
		opt(&b.opts)
	}
	if b.opts.logger == nil {
		b.opts.logger = log.Component("fanout")
	}
	return b
}

// Subscribe registers handler under name and starts its delivery goroutine.
// Subscribing to a closed bus returns an already-closed subscription.
func (b *Bus[E]) Subscribe(name string, handler func(E)) *Subscription[E] {
	sub := &Subscription[E]{
		name:    name,
		bus:     b,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.closeOnce.Do(func() { close(sub.done) })
		close(sub.exited)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run()
	return sub
}

// Publish queues e for every current subscriber. It never blocks on delivery.
func (b *Bus[E]) Publish(e E) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.published.Add(1)
	for _, sub := range b.subs {
		sub.enqueue(e)
	}
}

// Len returns the number of active subscribers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Published returns the number of events accepted since creation.
func (b *Bus[E]) Published() uint64 {
	return b.published.Load()
}

// Subscribers returns the names of active subscribers in subscription order.
func (b *Bus[E]) Subscribers() []string {
	b.mu.RLock()
	subs := make([]*Subscription[E], 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })
	names := make([]string, len(subs))
	for i, sub := range subs {
		names[i] = sub.name
	}
	return names
}

// Close stops every subscription. Queued but undelivered events are discarded.
func (b *Bus[E]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*Subscription[E])
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Bus[E]) fault(sub *Subscription[E], recovered any) {
	b.opts.logger.Error("subscriber callback panicked",
		"subscriber", sub.name,
		"subscription_id", sub.id,
		"panic", recovered,
	)
	if b.opts.onFault != nil {
		b.opts.onFault(sub.name, recovered)
	}
}
