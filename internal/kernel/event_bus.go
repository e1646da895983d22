package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"errand-bot/pkg/errand"

	"golang.org/x/sync/errgroup"
)

// EventBus fans events out to bounded per-subscription queues served by worker goroutines.
//
// Subscriptions are matched in the order they were made, which for declared
// handlers is module registration order.
type EventBus struct {
	mu            sync.RWMutex
	closed        bool
	subscriptions []*busSubscription
	nextID        atomic.Int64

	defaults     errand.SubscriptionSpec
	onAsyncError func(context.Context, string, error)
}

// NewEventBus creates a bus whose subscriptions default to the given queue
// size, worker count and handler timeout.
func NewEventBus(
	defaultBuffer int,
	defaultWorkers int,
	defaultHandlerTimeout time.Duration,
	onAsyncError func(context.Context, string, error),
) *EventBus {
	return &EventBus{
		defaults: errand.SubscriptionSpec{
			Buffer:         defaultBuffer,
			Workers:        defaultWorkers,
			HandlerTimeout: defaultHandlerTimeout,
			Backpressure:   errand.BackpressureDropNewest,
		},
		onAsyncError: onAsyncError,
	}
}

// Publish queues event on every matching subscription. A full or closed
// subscription is reported asynchronously and does not fail the publish.
func (b *EventBus) Publish(ctx context.Context, event *errand.Event) error {
	if event == nil {
		return fmt.Errorf("publish event: %w", errand.ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: bus closed", event.Kind)
	}
	subscriptions := slices.Clone(b.subscriptions)
	b.mu.RUnlock()

	var publishErr error
	for _, subscription := range subscriptions {
		if !subscription.interest.Matches(event) {
			continue
		}
		err := subscription.enqueue(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, errand.ErrEventDropped), errors.Is(err, errand.ErrSubscriptionClosed):
			b.reportAsyncError(ctx, subscription.spec.Name, err)
		default:
			publishErr = errors.Join(publishErr, err)
		}
	}
	if publishErr != nil {
		return fmt.Errorf("publish event %s: %w", event.Kind, publishErr)
	}

	return nil
}

// Subscribe starts a consumer with its own queue and workers.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest errand.InterestSet,
	spec errand.SubscriptionSpec,
	handler errand.EventHandler,
) (errand.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	id := b.nextID.Add(1)
	spec = b.withDefaults(spec, id)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: bus closed", spec.Name)
	}
	subscription := newBusSubscription(id, interest, spec, handler, b)
	b.subscriptions = append(b.subscriptions, subscription)

	return subscription, nil
}

// Close rejects new publishes and lets every subscription finish its queue.
// Handlers still running when ctx ends are canceled.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subscriptions := b.subscriptions
	b.subscriptions = nil
	b.mu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		closeErr = errors.Join(closeErr, subscription.shutdown(ctx))
	}
	if closeErr != nil {
		return fmt.Errorf("close event bus: %w", closeErr)
	}

	return nil
}

func (b *EventBus) withDefaults(spec errand.SubscriptionSpec, id int64) errand.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaults.Buffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaults.Workers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaults.HandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = b.defaults.Backpressure
	}

	return spec
}

func (b *EventBus) unsubscribe(ctx context.Context, id int64) error {
	b.mu.Lock()
	index := slices.IndexFunc(b.subscriptions, func(subscription *busSubscription) bool {
		return subscription.id == id
	})
	if index < 0 {
		b.mu.Unlock()
		return nil
	}
	subscription := b.subscriptions[index]
	b.subscriptions = slices.Delete(slices.Clone(b.subscriptions), index, index+1)
	b.mu.Unlock()

	if err := subscription.shutdown(ctx); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", subscription.spec.Name, err)
	}

	return nil
}

func (b *EventBus) reportAsyncError(ctx context.Context, scope string, err error) {
	if b.onAsyncError != nil {
		b.onAsyncError(ctx, scope, err)
	}
}

// busSubscription owns the queue and workers of one subscriber.
//
// stopping tells workers to drain what is queued and exit; cancel aborts
// handlers that are still running when shutdown gives up waiting.
type busSubscription struct {
	id       int64
	interest errand.InterestSet
	spec     errand.SubscriptionSpec
	handler  errand.EventHandler
	bus      *EventBus

	queue    chan *errand.Event
	ctx      context.Context
	cancel   context.CancelFunc
	stopping chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once
}

func newBusSubscription(
	id int64,
	interest errand.InterestSet,
	spec errand.SubscriptionSpec,
	handler errand.EventHandler,
	bus *EventBus,
) *busSubscription {
	ctx, cancel := context.WithCancel(context.Background())
	subscription := &busSubscription{
		id:       id,
		interest: cloneInterestSet(interest),
		spec:     spec,
		handler:  handler,
		bus:      bus,
		queue:    make(chan *errand.Event, spec.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}

	var workers errgroup.Group
	for worker := range spec.Workers {
		workers.Go(func() error {
			subscription.work(worker)
			return nil
		})
	}
	go func() {
		_ = workers.Wait()
		close(subscription.done)
	}()

	return subscription
}

// cloneInterestSet copies the slices so later caller edits do not change matching.
func cloneInterestSet(interest errand.InterestSet) errand.InterestSet {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.Sources = slices.Clone(interest.Sources)
	interest.CommandNames = slices.Clone(interest.CommandNames)
	interest.ActionPrefixes = slices.Clone(interest.ActionPrefixes)

	return interest
}

// Name returns the subscription name.
func (s *busSubscription) Name() string {
	return s.spec.Name
}

// Close removes the subscription from its bus and waits for its workers.
func (s *busSubscription) Close(ctx context.Context) error {
	return s.bus.unsubscribe(ctx, s.id)
}

func (s *busSubscription) enqueue(ctx context.Context, event *errand.Event) error {
	if s.closed.Load() {
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, errand.ErrSubscriptionClosed)
	}

	switch s.spec.Backpressure {
	case errand.BackpressureDropNewest:
		if s.offer(event) {
			return nil
		}
	case errand.BackpressureDropOldest:
		if s.offer(event) {
			return nil
		}
		select {
		case <-s.queue:
		default:
		}
		if s.offer(event) {
			return nil
		}
	case errand.BackpressureBlock:
		select {
		case s.queue <- event:
			return nil
		case <-s.stopping:
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, errand.ErrSubscriptionClosed)
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", s.spec.Name, ctx.Err())
		}
	default:
		return fmt.Errorf("enqueue %s: %w", s.spec.Name, errand.ErrInvalidSubscription)
	}

	return fmt.Errorf("enqueue %s: %w", s.spec.Name, errand.ErrEventDropped)
}

// offer queues event without waiting.
func (s *busSubscription) offer(event *errand.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *busSubscription) work(worker int) {
	for {
		select {
		case event := <-s.queue:
			s.deliver(worker, event)
		case <-s.stopping:
			for {
				select {
				case event := <-s.queue:
					s.deliver(worker, event)
				default:
					return
				}
			}
		}
	}
}

// deliver runs the handler once and reports its failure, panics included.
func (s *busSubscription) deliver(worker int, event *errand.Event) {
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.spec.HandlerTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.spec.HandlerTimeout)
	}
	defer cancel()

	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, worker)
	if err := runSafely(scope, func() error {
		return s.handler(ctx, event)
	}); err != nil {
		s.bus.reportAsyncError(ctx, s.spec.Name, fmt.Errorf("%s handle event %s: %w", scope, event.Kind, err))
	}
}

// shutdown stops intake, waits for the queue to drain and cancels
// in-flight handlers if ctx ends first.
func (s *busSubscription) shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopping)
	})

	select {
	case <-s.done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("shutdown subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
