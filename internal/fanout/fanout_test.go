package fanout

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []int
}

func (c *collector) add(e int) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, n int) []int {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.snapshot()) >= n }, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var a, b collector
	bus.Subscribe("a", a.add)
	bus.Subscribe("b", b.add)

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, []int{1, 2}, a.waitFor(t, 2))
	assert.Equal(t, []int{1, 2}, b.waitFor(t, 2))
	assert.Equal(t, uint64(2), bus.Published())
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var c collector
	bus.Subscribe("ordered", c.add)

	const n = 1000
	for i := 0; i < n; i++ {
		bus.Publish(i)
	}

	got := c.waitFor(t, n)
	for i := 0; i < n; i++ {
		require.Equal(t, i, got[i])
	}
}

func TestPanickingSubscriberIsIsolated(t *testing.T) {
	var faults atomic.Int32
	bus := New[int](WithFaultHook(func(name string, r any) {
		assert.Equal(t, "broken", name)
		faults.Add(1)
	}))
	defer bus.Close()

	bus.Subscribe("broken", func(e int) {
		if e == 1 {
			panic("boom")
		}
	})
	var healthy collector
	bus.Subscribe("healthy", healthy.add)

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, []int{1, 2}, healthy.waitFor(t, 2))
	require.Eventually(t, func() bool { return faults.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe("slow", func(int) { <-release })
	var fast collector
	bus.Subscribe("fast", fast.add)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	fast.waitFor(t, 100)
	close(release)
}

func TestCloseDuringBroadcast(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var c collector
	var sub *Subscription[int]
	sub = bus.Subscribe("self-closing", func(e int) {
		c.add(e)
		if e == 3 {
			sub.Close()
		}
	})
	var other collector
	bus.Subscribe("other", other.add)

	for i := 1; i <= 10; i++ {
		bus.Publish(i)
	}

	other.waitFor(t, 10)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription goroutine did not exit")
	}
	assert.Equal(t, []int{1, 2, 3}, c.snapshot())
	assert.Equal(t, 1, bus.Len())
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := bus.Subscribe("churn", func(int) {})
			s.Close()
		}()
		go func(i int) {
			defer wg.Done()
			bus.Publish(i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Len())
}

func TestSubscribersInOrder(t *testing.T) {
	bus := New[int]()
	defer bus.Close()

	bus.Subscribe("first", func(int) {})
	second := bus.Subscribe("second", func(int) {})
	bus.Subscribe("third", func(int) {})
	second.Close()

	assert.Equal(t, []string{"first", "third"}, bus.Subscribers())
}

func TestClosedBus(t *testing.T) {
	bus := New[int]()
	var c collector
	sub := bus.Subscribe("a", c.add)
	bus.Close()

	<-sub.Done()
	bus.Publish(1)
	assert.Empty(t, c.snapshot())

	late := bus.Subscribe("late", c.add)
	<-late.Done()
	assert.Equal(t, 0, bus.Len())
	bus.Close()
}
