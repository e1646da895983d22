// Package errandtest provides in-memory doubles of the errand contracts for module tests.
package errandtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"errand-bot/pkg/errand"
)

// Collection is an in-memory errand.Collection. Like the disk store it hands
// out JSON round-tripped copies, so a mutation that fails or reports
// ErrNoChange cannot touch the stored records through shared slices or maps.
type Collection[T any] struct {
	mu      sync.Mutex
	records []byte
	updates int
	// UpdateErr, when set, fails every Update before fn runs.
	UpdateErr error
}

// NewCollection seeds a collection with records. It panics when the records
// do not encode as JSON.
func NewCollection[T any](records ...T) *Collection[T] {
	c := &Collection[T]{}
	if err := c.store(records); err != nil {
		panic(fmt.Sprintf("errandtest: seed collection: %v", err))
	}

	return c
}

func (c *Collection[T]) store(records []T) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	c.records = raw

	return nil
}

// decode returns a fresh copy of the stored records, never nil.
func (c *Collection[T]) decode() ([]T, error) {
	records := []T{}
	if len(c.records) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(c.records, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []T{}
	}

	return records, nil
}

// Load returns a copy of the stored records.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.decode()
}

// Update applies fn under the collection lock to a private copy of the records.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.UpdateErr != nil {
		return c.UpdateErr
	}
	current, err := c.decode()
	if err != nil {
		return err
	}
	updated, err := fn(current)
	if errors.Is(err, errand.ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.store(updated); err != nil {
		return err
	}
	c.updates++

	return nil
}

// Append adds records at the end.
func (c *Collection[T]) Append(ctx context.Context, records ...T) error {
	return c.Update(ctx, func(existing []T) ([]T, error) {
		return append(existing, records...), nil
	})
}

// Snapshot returns the stored records without a context.
func (c *Collection[T]) Snapshot() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.decode()
	if err != nil {
		panic(fmt.Sprintf("errandtest: snapshot: %v", err))
	}

	return records
}

// Writes returns how many updates changed the records.
func (c *Collection[T]) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.updates
}

// Dispatcher records outbound requests.
type Dispatcher struct {
	mu    sync.Mutex
	sends []errand.SendMessageRequest
	edits []errand.EditMessageRequest
	next  int

	// SendErr fails every SendMessage call.
	SendErr error
	// EditErr fails every EditMessage call.
	EditErr error
}

// SendMessage records request and returns a sequential message id.
func (d *Dispatcher) SendMessage(
	_ context.Context,
	request errand.SendMessageRequest,
) (*errand.OutboundMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sends = append(d.sends, request)
	if d.SendErr != nil {
		return nil, d.SendErr
	}
	d.next++

	return &errand.OutboundMessage{
		ID:     "sent-" + strconv.Itoa(d.next),
		Target: request.Target,
	}, nil
}

// EditMessage records request.
func (d *Dispatcher) EditMessage(_ context.Context, request errand.EditMessageRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.edits = append(d.edits, request)

	return d.EditErr
}

// Sent returns every recorded send request, failed ones included.
func (d *Dispatcher) Sent() []errand.SendMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]errand.SendMessageRequest(nil), d.sends...)
}

// Edited returns every recorded edit request.
func (d *Dispatcher) Edited() []errand.EditMessageRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]errand.EditMessageRequest(nil), d.edits...)
}

// LastText returns the text of the latest send, or "" when nothing was sent.
func (d *Dispatcher) LastText() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.sends) == 0 {
		return ""
	}

	return d.sends[len(d.sends)-1].Text
}

// Services is a map-backed errand.ServiceRegistry.
type Services map[string]any

// Register binds service to name.
func (s Services) Register(name string, service any) error {
	if _, exists := s[name]; exists {
		return fmt.Errorf("register %s: %w", name, errand.ErrServiceAlreadyRegistered)
	}
	s[name] = service

	return nil
}

// Resolve returns the service bound to name.
func (s Services) Resolve(name string) (any, error) {
	service, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", name, errand.ErrServiceNotFound)
	}

	return service, nil
}

// Runtime is an errand.ModuleRuntime exposing Services. Subscribe is unsupported.
type Runtime struct {
	Registry Services
}

// Services returns the registry.
func (r Runtime) Services() errand.ServiceRegistry {
	return r.Registry
}

// Subscribe always fails; declared handlers are subscribed by the kernel.
func (r Runtime) Subscribe(
	context.Context,
	errand.InterestSet,
	errand.SubscriptionSpec,
	errand.EventHandler,
) (errand.Subscription, error) {
	return nil, fmt.Errorf("errandtest runtime: subscribe unsupported")
}

// Source is the sink reference every test event carries.
var Source = errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-main"}

// CommandEvent builds a command.received event from user in a private conversation.
func CommandEvent(userID, name, value string) *errand.Event {
	raw := name
	if value != "" {
		raw += " " + value
	}

	return &errand.Event{
		ID:         "event-1#command",
		Kind:       errand.EventKindCommandReceived,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		Source:     Source,
		Conversation: errand.Conversation{
			ID:   userID,
			Type: errand.ConversationTypePrivate,
		},
		Actor:   errand.Actor{ID: userID, DisplayName: "Tester"},
		Message: &errand.Message{ID: "msg-1", Text: raw, Addressed: true},
		Command: &errand.CommandInvocation{
			Name:            name,
			Value:           value,
			RawInput:        raw,
			SourceEventID:   "event-1",
			SourceEventKind: errand.EventKindMessageCreated,
		},
	}
}

// ActionEvent builds an action.triggered event for a button press in a group.
func ActionEvent(userID, messageID, data string) *errand.Event {
	return &errand.Event{
		ID:         "action-1",
		Kind:       errand.EventKindActionTriggered,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		Source:     Source,
		Conversation: errand.Conversation{
			ID:   "-100",
			Type: errand.ConversationTypeGroup,
		},
		Actor:  errand.Actor{ID: userID},
		Action: &errand.Action{MessageID: messageID, Data: data},
	}
}

var (
	_ errand.Collection[struct{}] = (*Collection[struct{}])(nil)
	_ errand.SinkDispatcher       = (*Dispatcher)(nil)
	_ errand.ServiceRegistry      = Services(nil)
	_ errand.ModuleRuntime        = Runtime{}
)
