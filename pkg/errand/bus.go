package errand

import (
	"context"
	"time"
)

// BackpressurePolicy says what a full subscription queue does with a new event.
type BackpressurePolicy string

const (
	// BackpressureDropNewest rejects the incoming event. This is the default.
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	// BackpressureDropOldest evicts the head of the queue to make room.
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock makes Publish wait for room or for its context to end.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec tunes one subscription. Zero fields take the bus defaults.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
}

// NewDefaultSubscriptionSpec names a subscription and leaves the rest to the bus.
func NewDefaultSubscriptionSpec(name string) SubscriptionSpec {
	return SubscriptionSpec{Name: name}
}

// Subscription is a live registration on the bus.
type Subscription interface {
	Name() string
	// Close stops intake and waits, bounded by ctx, for queued events to be handled.
	Close(ctx context.Context) error
}

// EventBus delivers published events to every subscription whose interest
// matches, each through its own bounded queue.
type EventBus interface {
	EventSink
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	Close(ctx context.Context) error
}
