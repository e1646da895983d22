package telegram

import (
	"time"

	"errand-bot/pkg/errand"
)

// UpdateType is the kind of inbound update the driver forwards.
type UpdateType string

const (
	UpdateTypeMessage  UpdateType = "message"
	UpdateTypeCallback UpdateType = "callback"
)

// Update is a gotd update reduced to what the decoder needs. Exactly one
// of Message and Callback is set, matching Type.
type Update struct {
	ID         string
	Type       UpdateType
	OccurredAt time.Time
	Chat       ChatRef
	Actor      ActorRef
	Message    *MessagePayload
	Callback   *CallbackPayload
	// Metadata carries the gotd update class for logs.
	Metadata map[string]string
}

// ChatRef is the conversation an update belongs to. Private chats use the
// peer user's id.
type ChatRef struct {
	ID    string
	Title string
	Type  errand.ConversationType
}

// ActorRef is whoever sent the message or pressed the button.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
	// Addressed: private chat, slash command, mention, or reply to the bot.
	Addressed bool
}

// CallbackPayload is one inline button press. QueryID must be answered or
// the client keeps showing a spinner.
type CallbackPayload struct {
	QueryID   int64
	MessageID string
	Data      string
}
