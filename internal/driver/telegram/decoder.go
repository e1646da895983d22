package telegram

import (
	"context"
	"fmt"
	"time"

	"errand-bot/pkg/errand"
)

// Decoder converts Telegram update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*errand.Event, error)
}

// DefaultDecoder provides default Telegram-to-errand mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*errand.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		if update.Message == nil {
			return nil, fmt.Errorf("decode message: missing message payload")
		}
		event.Kind = errand.EventKindMessageCreated
		event.Message = &errand.Message{
			ID:        update.Message.ID,
			ReplyToID: update.Message.ReplyToID,
			Text:      update.Message.Text,
			Addressed: update.Message.Addressed,
		}
	case UpdateTypeCallback:
		if update.Callback == nil {
			return nil, fmt.Errorf("decode callback: missing callback payload")
		}
		event.Kind = errand.EventKindActionTriggered
		event.Action = &errand.Action{
			MessageID: update.Callback.MessageID,
			Data:      update.Callback.Data,
		}
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *errand.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &errand.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Source:     errand.SinkRef{Platform: DriverPlatform},
		Conversation: errand.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: errand.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Metadata: update.Metadata,
	}
}
