package fanout

import "sync"

// Subscription is a handle to one registered callback.
type Subscription[E any] struct {
	id      uint64
	name    string
	bus     *Bus[E]
	handler func(E)

	mu    sync.Mutex
	queue []E

	wake      chan struct{} // capacity 1; signals a non-empty queue
	done      chan struct{} // closed by stop
	exited    chan struct{} // closed when run returns
	closeOnce sync.Once
}

// Name returns the name given at subscription time.
func (s *Subscription[E]) Name() string {
	return s.name
}

// Close unregisters the subscription. It is safe to call more than once, from
// any goroutine, including from inside the subscription's own callback.
func (s *Subscription[E]) Close() {
	s.bus.remove(s.id)
	s.stop()
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription[E]) Done() <-chan struct{} {
	return s.exited
}

// Pending returns the number of queued, undelivered events.
func (s *Subscription[E]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[E]) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscription[E]) enqueue(e E) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[E]) run() {
	defer close(s.exited)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, e := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.deliver(e)
			}
		}
	}
}

func (s *Subscription[E]) deliver(e E) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.fault(s, r)
		}
	}()
	s.handler(e)
}
