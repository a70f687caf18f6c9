package event

// SubscriptionOptions controls how one subscription receives events.
type SubscriptionOptions struct {
	// Async defers handler invocation to the bus executor goroutine.
	// When false the handler runs inline on the publishing goroutine,
	// even for Publish. Default: true.
	Async bool

	// Priority orders delivery within one publish; higher runs first.
	// Equal priorities deliver in subscription insertion order.
	// Default: 0.
	Priority int

	// ReceiveOwnEvents delivers events whose sender is the subscriber
	// itself. Off by default to prevent feedback loops.
	ReceiveOwnEvents bool
}

// defaultSubscriptionOptions returns the documented defaults.
func defaultSubscriptionOptions() SubscriptionOptions {
	return SubscriptionOptions{Async: true}
}

// SubscribeOption customizes a single subscription.
type SubscribeOption func(*SubscriptionOptions)

// WithSync makes delivery synchronous: the handler runs inline on the
// publishing goroutine for both Publish and PublishSync.
func WithSync() SubscribeOption {
	return func(o *SubscriptionOptions) {
		o.Async = false
	}
}

// WithPriority sets the delivery priority. Higher priorities are
// delivered first within one publish.
func WithPriority(priority int) SubscribeOption {
	return func(o *SubscriptionOptions) {
		o.Priority = priority
	}
}

// WithReceiveOwnEvents delivers the subscriber's own publishes back to it.
func WithReceiveOwnEvents() SubscribeOption {
	return func(o *SubscriptionOptions) {
		o.ReceiveOwnEvents = true
	}
}
