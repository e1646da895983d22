package errand

import (
	"context"
	"fmt"
)

// ServiceSinkDispatcher is the registry key of the process-wide dispatcher.
const ServiceSinkDispatcher = "errand.sink_dispatcher"

// Telegram caps callback data at 64 bytes; no supported platform allows less.
const maxButtonActionBytes = 64

// SinkDispatcher delivers replies and edits through whichever driver owns
// the target conversation.
type SinkDispatcher interface {
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	EditMessage(ctx context.Context, request EditMessageRequest) error
}

// OutboundTarget is a conversation plus, optionally, the driver that must
// deliver to it. Without Sink the dispatcher picks a driver by platform.
type OutboundTarget struct {
	Conversation Conversation
	Sink         *SinkRef
}

// Validate rejects targets the dispatcher could not route.
func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Conversation.Type == "":
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	case t.Sink != nil && t.Sink.IsZero():
		return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent answers in the conversation an event came from,
// through the driver that received it.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	target := OutboundTarget{Conversation: event.Conversation}
	if source := event.Source; !source.IsZero() {
		target.Sink = &source
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// DirectTarget addresses the private conversation with one user, whose id
// doubles as the conversation id.
func DirectTarget(userID string, sink *SinkRef) OutboundTarget {
	target := OutboundTarget{Conversation: Conversation{ID: userID, Type: ConversationTypePrivate}}
	if sink != nil && !sink.IsZero() {
		pinned := *sink
		target.Sink = &pinned
	}

	return target
}

// InlineButton is one pressable control. Action comes back verbatim in the
// action.triggered event the press produces.
type InlineButton struct {
	Label  string
	Action string
}

// OutboundMessage is what a successful send returns: the platform's message
// id and where it went, so the caller can edit it later.
type OutboundMessage struct {
	ID     string
	Target OutboundTarget
}

// SendMessageRequest posts a new text message, optionally as a reply and
// with rows of inline buttons.
type SendMessageRequest struct {
	Target             OutboundTarget
	Text               string
	ReplyToMessageID   string
	Buttons            [][]InlineButton
	DisableLinkPreview bool
}

func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}

	return validateBody("send message", r.Text, r.Buttons)
}

// EditMessageRequest replaces the text and keyboard of a message the bot
// sent earlier. Nil Buttons strips the keyboard.
type EditMessageRequest struct {
	Target             OutboundTarget
	MessageID          string
	Text               string
	Buttons            [][]InlineButton
	DisableLinkPreview bool
}

func (r EditMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate edit message target: %w", err)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}

	return validateBody("edit message", r.Text, r.Buttons)
}

func validateBody(op string, text string, rows [][]InlineButton) error {
	if text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}

	for row := range rows {
		if len(rows[row]) == 0 {
			return fmt.Errorf("validate %s buttons: %w: empty button row %d", op, ErrInvalidOutboundRequest, row)
		}
		for col, button := range rows[row] {
			var problem string
			switch {
			case button.Label == "":
				problem = "missing label"
			case button.Action == "":
				problem = "missing action"
			case len(button.Action) > maxButtonActionBytes:
				problem = fmt.Sprintf("action exceeds %d bytes", maxButtonActionBytes)
			default:
				continue
			}
			return fmt.Errorf("validate %s buttons: %w: button[%d][%d] %s", op, ErrInvalidOutboundRequest, row, col, problem)
		}
	}

	return nil
}
