package kernel

import (
	"context"
	"sync"
	"testing"
	"time"

	"errand-bot/pkg/errand"
)

func TestEventBusPublishDeliversMatchingSubscriptions(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan *errand.Event, 1)
	_, err := bus.Subscribe(context.Background(), errand.InterestSet{
		Kinds: []errand.EventKind{errand.EventKindMessageCreated},
	}, errand.SubscriptionSpec{
		Name: "match",
	}, func(_ context.Context, event *errand.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(context.Background(), newTestEvent("e1", errand.EventKindMessageCreated)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.ID != "e1" {
			t.Fatalf("event id = %s, want e1", event.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusBackpressurePolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		policy     errand.BackpressurePolicy
		wantEvents []string
	}{
		{
			name:       "drop newest keeps queued oldest",
			policy:     errand.BackpressureDropNewest,
			wantEvents: []string{"e1", "e2"},
		},
		{
			name:       "drop oldest keeps latest",
			policy:     errand.BackpressureDropOldest,
			wantEvents: []string{"e1", "e3"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			bus := NewEventBus(1, 1, time.Second, nil)
			t.Cleanup(func() {
				_ = bus.Close(context.Background())
			})

			release := make(chan struct{})
			blocked := make(chan struct{}, 1)
			processed := make([]string, 0, 3)
			var first sync.Once
			var mu sync.Mutex

			_, err := bus.Subscribe(context.Background(), errand.InterestSet{
				Kinds: []errand.EventKind{errand.EventKindMessageCreated},
			}, errand.SubscriptionSpec{
				Name:         "policy",
				Workers:      1,
				Buffer:       1,
				Backpressure: testCase.policy,
			}, func(_ context.Context, event *errand.Event) error {
				first.Do(func() {
					blocked <- struct{}{}
					<-release
				})
				mu.Lock()
				processed = append(processed, event.ID)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}

			if err := bus.Publish(context.Background(), newTestEvent("e1", errand.EventKindMessageCreated)); err != nil {
				t.Fatalf("publish e1 failed: %v", err)
			}
			select {
			case <-blocked:
			case <-time.After(time.Second):
				t.Fatal("handler did not block as expected")
			}
			if err := bus.Publish(context.Background(), newTestEvent("e2", errand.EventKindMessageCreated)); err != nil {
				t.Fatalf("publish e2 failed: %v", err)
			}
			if err := bus.Publish(context.Background(), newTestEvent("e3", errand.EventKindMessageCreated)); err != nil {
				t.Fatalf("publish e3 failed: %v", err)
			}

			close(release)
			eventually(t, 2*time.Second, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(processed) == 2
			})

			mu.Lock()
			gotEvents := append([]string(nil), processed...)
			mu.Unlock()
			if gotEvents[0] != testCase.wantEvents[0] || gotEvents[1] != testCase.wantEvents[1] {
				t.Fatalf("processed = %v, want %v", gotEvents, testCase.wantEvents)
			}
		})
	}
}

func TestEventBusCloseRejectsNewPublish(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	err := bus.Publish(context.Background(), newTestEvent("e1", errand.EventKindMessageCreated))
	if err == nil {
		t.Fatal("expected publish on closed bus to fail")
	}
}

func TestEventBusInterestFiltersByActionPrefix(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan string, 4)
	_, err := bus.Subscribe(context.Background(), errand.InterestSet{
		Kinds:          []errand.EventKind{errand.EventKindActionTriggered},
		RequireAction:  true,
		ActionPrefixes: []string{"vote:"},
	}, errand.SubscriptionSpec{Name: "votes"}, func(_ context.Context, event *errand.Event) error {
		received <- event.ID
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	other := newTestEvent("other", errand.EventKindActionTriggered)
	other.Action.Data = "page:2"
	if err := bus.Publish(context.Background(), other); err != nil {
		t.Fatalf("publish other failed: %v", err)
	}
	if err := bus.Publish(context.Background(), newTestEvent("vote", errand.EventKindActionTriggered)); err != nil {
		t.Fatalf("publish vote failed: %v", err)
	}

	select {
	case id := <-received:
		if id != "vote" {
			t.Fatalf("received = %s, want vote", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for vote action")
	}
}

// handled when the bus closes with time to spare.
func TestEventBusCloseDrainsQueuedEvents(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	release := make(chan struct{})
	var mu sync.Mutex
	handled := make([]string, 0, 3)

	_, err := bus.Subscribe(context.Background(), errand.InterestSet{
		Kinds: []errand.EventKind{errand.EventKindCommandReceived},
	}, errand.SubscriptionSpec{Name: "drain"}, func(_ context.Context, event *errand.Event) error {
		<-release
		mu.Lock()
		handled = append(handled, event.ID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for _, id := range []string{"c1", "c2", "c3"} {
		if err := bus.Publish(context.Background(), newTestEvent(id, errand.EventKindCommandReceived)); err != nil {
			t.Fatalf("publish %s failed: %v", id, err)
		}
	}

	closed := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		closed <- bus.Close(ctx)
	}()
	close(release)

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("close did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 3 {
		t.Fatalf("handled = %v, want all three queued events", handled)
	}
}

// cancels handlers that are still running.
func TestEventBusCloseCancelsStuckHandlers(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Minute, nil)
	started := make(chan struct{})
	canceled := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), errand.InterestSet{
		Kinds: []errand.EventKind{errand.EventKindMessageCreated},
	}, errand.SubscriptionSpec{Name: "stuck"}, func(ctx context.Context, _ *errand.Event) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Publish(context.Background(), newTestEvent("e1", errand.EventKindMessageCreated)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bus.Close(ctx); err == nil {
		t.Fatal("expected close to report the expired context")
	}

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("stuck handler was not canceled")
	}
}

func TestEventBusPublishNilEventReturnsError(t *testing.T) {
	t.Parallel()

	bus := NewEventBus(8, 1, time.Second, nil)
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	if err := bus.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected nil event publish to fail")
	}
}

func newTestEvent(id string, kind errand.EventKind) *errand.Event {
	event := &errand.Event{
		ID:         id,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Source:     errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-main"},
		Conversation: errand.Conversation{
			ID:   "chat-1",
			Type: errand.ConversationTypeGroup,
		},
		Actor: errand.Actor{ID: "user-1"},
	}

	switch kind {
	case errand.EventKindMessageCreated:
		event.Message = &errand.Message{ID: "msg-1", Text: "hello", Addressed: true}
	case errand.EventKindCommandReceived:
		event.Message = &errand.Message{ID: "msg-1", Text: "todo list", Addressed: true}
		event.Command = &errand.CommandInvocation{
			Name:            "todo",
			Value:           "list",
			RawInput:        "todo list",
			SourceEventID:   id,
			SourceEventKind: errand.EventKindMessageCreated,
		}
	case errand.EventKindActionTriggered:
		event.Action = &errand.Action{MessageID: "msg-1", Data: "vote:p1:0"}
	}

	return event
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}
