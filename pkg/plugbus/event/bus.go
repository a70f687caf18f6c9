package event

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/modkit/plugbus/pkg/plugbus/observability"
	"github.com/modkit/plugbus/pkg/plugbus/statstore"
	"github.com/modkit/plugbus/pkg/plugbus/topic"
)

// BusConfig configures bus behavior. The zero value is usable; NewBus
// fills in defaults.
type BusConfig struct {
	// QueueSize is the bound on deferred async deliveries.
	// Default: 1024.
	QueueSize int

	// Logger receives structured bus logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records publish/delivery/request metrics.
	// Default: observability.NoopMetrics{}.
	Metrics observability.MetricsRecorder

	// StatsStore, when set, seeds topic counters at construction and
	// receives them on FlushStats/Close. The caller owns the store.
	StatsStore statstore.Store

	// OnDrop is called when the async queue is full and a deferred
	// delivery is discarded.
	OnDrop func(evt Event, subscriberID string)

	// OnHandlerPanic is called after a recovered handler panic.
	OnHandlerPanic func(evt Event, subscriberID string, recovered any)

	// Subscription change notifications for diagnostics observers.
	// All run outside the bus lock, on the mutating goroutine.
	OnSubscriptionAdded   func(id, pattern string)
	OnSubscriptionRemoved func(id string)
	OnSubscribersChanged  func()
	OnTopicsChanged       func()
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	QueueSize: 1024,
}

// Bus is the in-process event bus. Construct with NewBus.
type Bus struct {
	cfg BusConfig

	// mu guards every map below plus the insertion sequence and the
	// observer set. It is never held across a handler or callback.
	mu           sync.Mutex
	subs         map[string]*subscription
	bySubscriber map[string][]string
	stats        map[string]*topicRecord
	handlers     map[string]requestHandlerEntry
	observers    map[int]func(Event)
	nextSeq      int64
	nextObserver int

	queue  chan func()
	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// subscription is the stored record for one active subscription.
type subscription struct {
	id           string
	pattern      string
	matcher      *topic.Matcher
	subscriberID string
	handler      Handler
	opts         SubscriptionOptions
	seq          int64
}

// NewBus creates a bus and starts its executor goroutine.
// Call Close to stop it.
func NewBus(config BusConfig) *Bus {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultBusConfig.QueueSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = observability.NoopMetrics{}
	}

	b := &Bus{
		cfg:          config,
		subs:         make(map[string]*subscription),
		bySubscriber: make(map[string][]string),
		stats:        make(map[string]*topicRecord),
		handlers:     make(map[string]requestHandlerEntry),
		observers:    make(map[int]func(Event)),
		queue:        make(chan func(), config.QueueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	b.seedStats()

	go b.run()
	return b
}

// Subscribe registers a handler for every topic matching pattern and
// returns the subscription id. It always succeeds: any number of
// subscriptions may share a pattern or subscriber. The pattern is
// compiled eagerly so publish pays for matching only.
//
// handler may be nil for signal-only subscribers that are counted in
// notified totals and observe events through Observe instead.
func (b *Bus) Subscribe(pattern, subscriberID string, handler Handler, opts ...SubscribeOption) string {
	options := defaultSubscriptionOptions()
	for _, opt := range opts {
		opt(&options)
	}

	sub := &subscription{
		id:           uuid.NewString(),
		pattern:      pattern,
		matcher:      topic.Compile(pattern),
		subscriberID: subscriberID,
		handler:      handler,
		opts:         options,
	}

	b.mu.Lock()
	sub.seq = b.nextSeq
	b.nextSeq++
	b.subs[sub.id] = sub
	b.bySubscriber[subscriberID] = append(b.bySubscriber[subscriberID], sub.id)
	b.mu.Unlock()

	observability.LogSubscribed(b.cfg.Logger, subscriberID, pattern, sub.id)
	if b.cfg.OnSubscriptionAdded != nil {
		b.cfg.OnSubscriptionAdded(sub.id, pattern)
	}
	b.notifySubscriptionsChanged()

	return sub.id
}

// Unsubscribe removes a subscription by id. It returns false when the id
// is unknown (never existed or already removed), so calling it twice is
// safe.
func (b *Bus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	sub, ok := b.subs[subscriptionID]
	if ok {
		delete(b.subs, subscriptionID)
		b.dropSubscriberIndex(sub.subscriberID, subscriptionID)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}

	observability.LogUnsubscribed(b.cfg.Logger, subscriptionID)
	if b.cfg.OnSubscriptionRemoved != nil {
		b.cfg.OnSubscriptionRemoved(subscriptionID)
	}
	b.notifySubscriptionsChanged()
	return true
}

// UnsubscribeAll removes every subscription owned by subscriberID.
// Removal is atomic with respect to concurrent publishes: an in-flight
// publish snapshot sees either all of the subscriber's subscriptions or
// none of them.
func (b *Bus) UnsubscribeAll(subscriberID string) {
	b.mu.Lock()
	ids := b.bySubscriber[subscriberID]
	delete(b.bySubscriber, subscriberID)
	for _, id := range ids {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		if b.cfg.OnSubscriptionRemoved != nil {
			b.cfg.OnSubscriptionRemoved(id)
		}
	}
	if len(ids) > 0 {
		b.cfg.Logger.Debug("unsubscribed all",
			slog.String("subscriber_id", subscriberID),
			slog.Int("count", len(ids)),
		)
		b.notifySubscriptionsChanged()
	}
}

// Publish delivers an event asynchronously and returns the number of
// subscriptions notified. Synchronous-mode subscriptions still run inline
// on the calling goroutine; all other handlers are deferred to the bus
// executor and the call does not wait for them.
func (b *Bus) Publish(topicStr string, data map[string]any, senderID string) int {
	return b.deliver(NewEvent(topicStr, data, senderID), false)
}

// PublishSync delivers an event synchronously: every matched handler has
// returned by the time the call does.
func (b *Bus) PublishSync(topicStr string, data map[string]any, senderID string) int {
	return b.deliver(NewEvent(topicStr, data, senderID), true)
}

// deliver implements the publish algorithm: stats update and subscription
// snapshot under the lock, then sort, filter, and invoke outside it.
func (b *Bus) deliver(evt Event, sync bool) int {
	if b.closed.Load() {
		return 0
	}
	start := time.Now()
	_, span := observability.StartPublishSpan(context.Background(), evt.Topic, evt.SenderID)

	b.mu.Lock()
	rec, ok := b.stats[evt.Topic]
	if !ok {
		rec = &topicRecord{}
		b.stats[evt.Topic] = rec
	}
	rec.eventCount++
	rec.lastEventTime = evt.Timestamp

	matches := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matcher.Matches(evt.Topic) {
			matches = append(matches, sub)
		}
	}
	observers := make([]func(Event), 0, len(b.observers))
	for _, fn := range b.observers {
		observers = append(observers, fn)
	}
	b.mu.Unlock()

	slices.SortStableFunc(matches, func(x, y *subscription) int {
		if x.opts.Priority != y.opts.Priority {
			return cmp.Compare(y.opts.Priority, x.opts.Priority)
		}
		return cmp.Compare(x.seq, y.seq)
	})

	notified := 0
	for _, sub := range matches {
		if !sub.opts.ReceiveOwnEvents && sub.subscriberID == evt.SenderID {
			continue
		}
		notified++

		if sub.handler == nil {
			continue
		}
		if sync || !sub.opts.Async {
			b.invokeHandler(sub.handler, evt.withClonedData(), sub.subscriberID)
		} else {
			b.deferDelivery(evt, sub.subscriberID, sub.handler)
		}
	}

	// Generic broadcast for non-handler observers, same sync/async rule
	// as the publish call itself.
	for _, fn := range observers {
		if sync {
			b.invokeObserver(fn, evt.withClonedData())
		} else {
			b.deferObserver(evt, fn)
		}
	}

	observability.LogPublished(b.cfg.Logger, evt.Topic, evt.SenderID, notified, sync)
	b.cfg.Metrics.RecordPublish(context.Background(), evt.Topic, notified, time.Since(start), sync)
	observability.EndSpanWithError(span, nil)

	return notified
}

// deferDelivery queues an async handler invocation. A full queue, or a
// bus already closing, drops the invocation and reports it.
func (b *Bus) deferDelivery(evt Event, subscriberID string, handler Handler) {
	delivery := evt.withClonedData()
	task := func() { b.invokeHandler(handler, delivery, subscriberID) }

	if !b.enqueue(task) {
		observability.LogDropped(b.cfg.Logger, evt.Topic, subscriberID)
		b.cfg.Metrics.RecordDrop(context.Background(), evt.Topic)
		if b.cfg.OnDrop != nil {
			b.cfg.OnDrop(evt, subscriberID)
		}
	}
}

func (b *Bus) deferObserver(evt Event, fn func(Event)) {
	delivery := evt.withClonedData()
	task := func() { b.invokeObserver(fn, delivery) }

	if !b.enqueue(task) {
		observability.LogDropped(b.cfg.Logger, evt.Topic, "")
		b.cfg.Metrics.RecordDrop(context.Background(), evt.Topic)
	}
}

// enqueue hands a task to the executor. The closed check and the channel
// send share the bus lock with Close's closed flip, so a task is either
// in the queue before the executor's final drain starts or rejected here
// for the caller's drop path. Never silently lost.
func (b *Bus) enqueue(task func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() {
		return false
	}
	select {
	case b.queue <- task:
		return true
	default:
		return false
	}
}

// invokeHandler runs one handler with panic isolation so a misbehaving
// subscriber cannot break the dispatch for the rest.
func (b *Bus) invokeHandler(handler Handler, evt Event, subscriberID string) {
	start := time.Now()
	panicked := false
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			observability.LogHandlerPanic(b.cfg.Logger, evt.Topic, subscriberID, r)
			if b.cfg.OnHandlerPanic != nil {
				b.cfg.OnHandlerPanic(evt, subscriberID, r)
			}
		}
		b.cfg.Metrics.RecordDelivery(context.Background(), evt.Topic, time.Since(start), panicked)
	}()

	handler(evt)
}

func (b *Bus) invokeObserver(fn func(Event), evt Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.LogHandlerPanic(b.cfg.Logger, evt.Topic, "", r)
		}
	}()
	fn(evt)
}

// Observe registers fn on the generic broadcast channel: it receives
// every published event after handler fan-out, regardless of topic and
// without self-suppression. The returned cancel removes it.
func (b *Bus) Observe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	id := b.nextObserver
	b.nextObserver++
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// SubscriberCount returns how many active subscriptions match topic.
func (b *Bus) SubscriberCount(topicStr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, sub := range b.subs {
		if sub.matcher.Matches(topicStr) {
			count++
		}
	}
	return count
}

// ActiveTopics returns the distinct patterns currently subscribed,
// sorted for determinism.
func (b *Bus) ActiveTopics() []string {
	b.mu.Lock()
	seen := make(map[string]struct{}, len(b.subs))
	for _, sub := range b.subs {
		seen[sub.pattern] = struct{}{}
	}
	b.mu.Unlock()

	patterns := make([]string, 0, len(seen))
	for p := range seen {
		patterns = append(patterns, p)
	}
	slices.Sort(patterns)
	return patterns
}

// SubscriptionsFor returns the subscription ids owned by subscriberID.
func (b *Bus) SubscriptionsFor(subscriberID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.bySubscriber[subscriberID])
}

// TotalSubscribers returns the number of active subscriptions.
func (b *Bus) TotalSubscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// MatchesTopic reports whether topic matches pattern. Pure helper; it
// touches no bus state.
func (b *Bus) MatchesTopic(topicStr, pattern string) bool {
	return topic.Matches(topicStr, pattern)
}

// Close stops the executor after draining queued deliveries, then
// flushes topic stats to the configured store. Subsequent publishes
// return 0. Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	flipped := b.closed.CompareAndSwap(false, true)
	b.mu.Unlock()
	if !flipped {
		return nil
	}
	close(b.stop)
	<-b.done

	return b.FlushStats()
}

// run is the bus executor: a single goroutine that serially drains
// deferred deliveries.
func (b *Bus) run() {
	defer close(b.done)
	for {
		select {
		case task := <-b.queue:
			task()
		case <-b.stop:
			// Drain what was queued before shutdown.
			for {
				select {
				case task := <-b.queue:
					task()
				default:
					return
				}
			}
		}
	}
}

// dropSubscriberIndex removes one id from a subscriber's index entry.
// Callers hold b.mu.
func (b *Bus) dropSubscriberIndex(subscriberID, subscriptionID string) {
	ids := b.bySubscriber[subscriberID]
	ids = slices.DeleteFunc(ids, func(id string) bool { return id == subscriptionID })
	if len(ids) == 0 {
		delete(b.bySubscriber, subscriberID)
	} else {
		b.bySubscriber[subscriberID] = ids
	}
}

func (b *Bus) notifySubscriptionsChanged() {
	if b.cfg.OnSubscribersChanged != nil {
		b.cfg.OnSubscribersChanged()
	}
	if b.cfg.OnTopicsChanged != nil {
		b.cfg.OnTopicsChanged()
	}
}
