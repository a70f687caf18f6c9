package event

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modkit/plugbus/pkg/plugbus/statstore"
)

func newTestBus(t *testing.T, cfg BusConfig) *Bus {
	t.Helper()
	b := NewBus(cfg)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestSubscribeAndPublishSync(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var got []Event
	id := b.Subscribe("orders/*", "audit", func(evt Event) {
		got = append(got, evt)
	})
	require.NotEmpty(t, id)

	notified := b.PublishSync("orders/created", map[string]any{"id": 42}, "orders")
	assert.Equal(t, 1, notified)

	require.Len(t, got, 1)
	assert.Equal(t, "orders/created", got[0].Topic)
	assert.Equal(t, "orders", got[0].SenderID)
	assert.Equal(t, 42, got[0].Data["id"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestPublishSyncNoMatch(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	b.Subscribe("orders/*", "audit", func(Event) { t.Fatal("should not be invoked") })

	assert.Equal(t, 0, b.PublishSync("invoices/created", nil, "invoices"))
}

func TestAsyncDeliveryOnExecutor(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var count atomic.Int32
	done := make(chan struct{})
	b.Subscribe("jobs/*", "worker", func(Event) {
		if count.Add(1) == 3 {
			close(done)
		}
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, b.Publish("jobs/run", nil, "scheduler"))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async deliveries did not arrive")
	}
}

func TestAsyncHandlersRunSerially(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var inFlight atomic.Int32
	var maxInFlight atomic.Int32
	var wg sync.WaitGroup
	wg.Add(20)

	b.Subscribe("jobs/*", "worker", func(Event) {
		defer wg.Done()
		cur := inFlight.Add(1)
		if cur > maxInFlight.Load() {
			maxInFlight.Store(cur)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	})

	for i := 0; i < 20; i++ {
		b.Publish("jobs/run", nil, "scheduler")
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestSyncOptionRunsInlineOnPublish(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	ran := false
	b.Subscribe("orders/*", "audit", func(Event) { ran = true }, WithSync())

	b.Publish("orders/created", nil, "orders")

	// Synchronous-mode subscriptions complete before Publish returns.
	assert.True(t, ran)
}

func TestPriorityOrdering(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var order []string
	b.Subscribe("orders/*", "low", func(Event) { order = append(order, "low") }, WithPriority(0))
	b.Subscribe("orders/*", "high", func(Event) { order = append(order, "high") }, WithPriority(10))

	b.PublishSync("orders/created", nil, "orders")

	assert.Equal(t, []string{"high", "low"}, order)
}

func TestEqualPriorityInsertionOrder(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var order []string
	b.Subscribe("orders/*", "first", func(Event) { order = append(order, "first") })
	b.Subscribe("orders/*", "second", func(Event) { order = append(order, "second") })
	b.Subscribe("orders/*", "third", func(Event) { order = append(order, "third") })

	b.PublishSync("orders/created", nil, "orders")

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestSelfSuppression(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	invoked := false
	b.Subscribe("orders/*", "orders", func(Event) { invoked = true })

	notified := b.PublishSync("orders/created", nil, "orders")
	assert.Equal(t, 0, notified)
	assert.False(t, invoked)
}

func TestReceiveOwnEvents(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	invoked := false
	b.Subscribe("orders/*", "orders", func(Event) { invoked = true }, WithReceiveOwnEvents())

	notified := b.PublishSync("orders/created", nil, "orders")
	assert.Equal(t, 1, notified)
	assert.True(t, invoked)
}

func TestNilHandlerCountsAsNotified(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	b.Subscribe("orders/*", "signal-only", nil)

	assert.Equal(t, 1, b.PublishSync("orders/created", nil, "orders"))
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	id := b.Subscribe("orders/*", "audit", nil)
	assert.Equal(t, 1, b.SubscriberCount("orders/created"))

	assert.True(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriberCount("orders/created"))

	assert.False(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriberCount("orders/created"))

	assert.False(t, b.Unsubscribe("never-existed"))
}

func TestUnsubscribeAll(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	patterns := []string{"orders/*", "orders/**", "invoices/*", "jobs/run", "**"}
	for _, p := range patterns {
		b.Subscribe(p, "X", nil)
	}
	b.Subscribe("orders/*", "Y", nil)

	require.Equal(t, 6, b.TotalSubscribers())
	require.Len(t, b.SubscriptionsFor("X"), 5)

	b.UnsubscribeAll("X")

	assert.Empty(t, b.SubscriptionsFor("X"))
	assert.Equal(t, 1, b.TotalSubscribers())

	// Removing an absent subscriber is a no-op.
	b.UnsubscribeAll("X")
	assert.Equal(t, 1, b.TotalSubscribers())
}

func TestEndToEndFanOut(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var order []string
	b.Subscribe("orders/**", "archiver", func(Event) { order = append(order, "archiver") },
		WithPriority(1))
	b.Subscribe("orders/*", "auditor", func(Event) { order = append(order, "auditor") },
		WithPriority(5))

	notified := b.PublishSync("orders/created", map[string]any{"id": 1}, "orders")

	assert.Equal(t, 2, notified)
	assert.Equal(t, []string{"auditor", "archiver"}, order)
}

func TestHandlerPanicIsolation(t *testing.T) {
	var panics atomic.Int32
	b := newTestBus(t, BusConfig{
		OnHandlerPanic: func(Event, string, any) { panics.Add(1) },
	})

	var survived bool
	b.Subscribe("orders/*", "bad", func(Event) { panic("boom") }, WithPriority(10))
	b.Subscribe("orders/*", "good", func(Event) { survived = true })

	notified := b.PublishSync("orders/created", nil, "orders-svc")

	assert.Equal(t, 2, notified)
	assert.True(t, survived)
	assert.Equal(t, int32(1), panics.Load())
}

func TestPayloadIsolationBetweenHandlers(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	b.Subscribe("orders/*", "mutator", func(evt Event) {
		evt.Data["id"] = "tampered"
	}, WithPriority(10))

	var seen any
	b.Subscribe("orders/*", "reader", func(evt Event) {
		seen = evt.Data["id"]
	})

	b.PublishSync("orders/created", map[string]any{"id": 42}, "orders-svc")

	assert.Equal(t, 42, seen)
}

func TestObserve(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	var mu sync.Mutex
	var topics []string
	cancel := b.Observe(func(evt Event) {
		mu.Lock()
		topics = append(topics, evt.Topic)
		mu.Unlock()
	})

	// Observers see every event, even with zero matching subscriptions
	// and no self-suppression.
	b.PublishSync("orders/created", nil, "orders")
	b.PublishSync("invoices/paid", nil, "invoices")

	mu.Lock()
	assert.Equal(t, []string{"orders/created", "invoices/paid"}, topics)
	mu.Unlock()

	cancel()
	b.PublishSync("orders/created", nil, "orders")

	mu.Lock()
	assert.Len(t, topics, 2)
	mu.Unlock()
}

func TestSubscriptionNotifications(t *testing.T) {
	var added, removed, subsChanged, topicsChanged atomic.Int32
	b := newTestBus(t, BusConfig{
		OnSubscriptionAdded:   func(string, string) { added.Add(1) },
		OnSubscriptionRemoved: func(string) { removed.Add(1) },
		OnSubscribersChanged:  func() { subsChanged.Add(1) },
		OnTopicsChanged:       func() { topicsChanged.Add(1) },
	})

	id := b.Subscribe("orders/*", "audit", nil)
	b.Subscribe("orders/**", "audit", nil)
	b.Unsubscribe(id)
	b.UnsubscribeAll("audit")

	assert.Equal(t, int32(2), added.Load())
	assert.Equal(t, int32(2), removed.Load())
	// Two subscribes, one unsubscribe, one bulk removal.
	assert.Equal(t, int32(4), subsChanged.Load())
	assert.Equal(t, int32(4), topicsChanged.Load())
}

func TestActiveTopics(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	b.Subscribe("orders/*", "a", nil)
	b.Subscribe("orders/*", "b", nil)
	b.Subscribe("invoices/**", "a", nil)

	assert.Equal(t, []string{"invoices/**", "orders/*"}, b.ActiveTopics())
}

func TestSubscriberCountAndStats(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	b.Subscribe("orders/*", "a", nil)
	b.Subscribe("orders/**", "b", nil)
	b.Subscribe("invoices/*", "c", nil)

	assert.Equal(t, 2, b.SubscriberCount("orders/created"))
	assert.Equal(t, 0, b.SubscriberCount("payments/settled"))

	before := time.Now()
	b.PublishSync("orders/created", nil, "orders-svc")
	b.PublishSync("orders/created", nil, "orders-svc")

	stats := b.Stats("orders/created")
	assert.Equal(t, "orders/created", stats.Topic)
	assert.Equal(t, 2, stats.SubscriberCount)
	assert.Equal(t, int64(2), stats.EventCount)
	assert.False(t, stats.LastEventTime.Before(before))

	// Stats are per exact topic, created on first publish.
	unpublished := b.Stats("orders/deleted")
	assert.Equal(t, int64(0), unpublished.EventCount)
	assert.Equal(t, 2, unpublished.SubscriberCount)
}

func TestMatchesTopic(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	assert.True(t, b.MatchesTopic("orders/created", "orders/*"))
	assert.True(t, b.MatchesTopic("orders/created/eu", "orders/**"))
	assert.False(t, b.MatchesTopic("orders/created", "invoices/*"))
}

func TestQueueOverflowDrops(t *testing.T) {
	var drops atomic.Int32
	block := make(chan struct{})
	b := newTestBus(t, BusConfig{
		QueueSize: 1,
		OnDrop:    func(Event, string) { drops.Add(1) },
	})

	b.Subscribe("jobs/*", "worker", func(Event) { <-block })

	// With the executor blocked, a single-slot queue overflows quickly.
	for i := 0; i < 5; i++ {
		b.Publish("jobs/run", nil, "scheduler")
	}

	assert.Positive(t, drops.Load())
	close(block)
}

func TestCloseDrainsQueuedDeliveries(t *testing.T) {
	b := NewBus(BusConfig{})

	var count atomic.Int32
	b.Subscribe("jobs/*", "worker", func(Event) { count.Add(1) })

	for i := 0; i < 10; i++ {
		b.Publish("jobs/run", nil, "scheduler")
	}

	require.NoError(t, b.Close())
	assert.Equal(t, int32(10), count.Load())

	// Closed bus ignores publishes and Close is idempotent.
	assert.Equal(t, 0, b.Publish("jobs/run", nil, "scheduler"))
	assert.Equal(t, 0, b.PublishSync("jobs/run", nil, "scheduler"))
	require.NoError(t, b.Close())
}

func TestCloseConcurrentPublishAccounting(t *testing.T) {
	var dropped, handled atomic.Int32
	b := NewBus(BusConfig{
		OnDrop: func(Event, string) { dropped.Add(1) },
	})
	b.Subscribe("jobs/*", "worker", func(Event) { handled.Add(1) })

	var notified atomic.Int32
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		for i := 0; i < 500; i++ {
			notified.Add(int32(b.Publish("jobs/run", nil, "scheduler")))
		}
	}()

	time.Sleep(time.Millisecond)
	require.NoError(t, b.Close())
	<-publisherDone

	// A delivery racing Close is either drained by the executor or
	// rejected through the drop path; none vanish.
	assert.Equal(t, notified.Load(), handled.Load()+dropped.Load())
}

func TestStatsStoreSeedAndFlush(t *testing.T) {
	store := statstore.NewMemoryStore()

	b := NewBus(BusConfig{StatsStore: store})
	b.PublishSync("orders/created", nil, "orders-svc")
	b.PublishSync("orders/created", nil, "orders-svc")
	require.NoError(t, b.Close())

	persisted, err := store.Load("orders/created")
	require.NoError(t, err)
	assert.Equal(t, int64(2), persisted.EventCount)

	// A new bus seeded from the same store keeps counting monotonically.
	b2 := NewBus(BusConfig{StatsStore: store})
	b2.PublishSync("orders/created", nil, "orders-svc")
	assert.Equal(t, int64(3), b2.Stats("orders/created").EventCount)
	require.NoError(t, b2.Close())
}

func TestConcurrentPublishSubscribeChurn(t *testing.T) {
	b := newTestBus(t, BusConfig{})

	stopPublish := make(chan struct{})
	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		for {
			select {
			case <-stopPublish:
				return
			default:
				b.Publish("orders/created", nil, "publisher")
				b.PublishSync("orders/created", nil, "publisher")
			}
		}
	}()

	var churners sync.WaitGroup
	for i := 0; i < 4; i++ {
		churners.Add(1)
		go func() {
			defer churners.Done()
			for j := 0; j < 100; j++ {
				id := b.Subscribe("orders/*", "churner", func(Event) {})
				b.SubscriberCount("orders/created")
				b.Unsubscribe(id)
			}
		}()
	}

	churners.Wait()
	close(stopPublish)
	<-publisherDone

	assert.Equal(t, 0, b.TotalSubscribers())
}
