package errand

import (
	"fmt"
	"strings"
	"time"
)

// EventKind names what happened. It selects the payload of an Event.
type EventKind string

const (
	EventKindMessageCreated EventKind = "message.created"
	// EventKindCommandReceived is derived by the kernel, never by drivers.
	EventKindCommandReceived EventKind = "command.received"
	EventKindActionTriggered EventKind = "action.triggered"
)

// Platform is the chat network a driver talks to.
type Platform string

const PlatformTelegram Platform = "telegram"

// ConversationType tells direct chats from groups and broadcast channels.
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// SinkRef names one configured driver instance, such as telegram/main.
type SinkRef struct {
	Platform Platform `json:"platform,omitempty"`
	ID       string   `json:"id,omitempty"`
}

func (s SinkRef) IsZero() bool {
	return s == SinkRef{}
}

// Event is what drivers publish and modules consume. Exactly one of
// Message, Command and Action is required, chosen by Kind; a command event
// also keeps the Message it was parsed from.
type Event struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time
	// Source is the driver that received the event. Replies go back through it.
	Source       SinkRef
	Conversation Conversation
	Actor        Actor

	Message *Message
	Command *CommandInvocation
	Action  *Action

	Metadata map[string]string
}

// Conversation is a chat as the platform identifies it.
type Conversation struct {
	ID    string           `json:"id"`
	Type  ConversationType `json:"type"`
	Title string           `json:"title,omitempty"`
}

// Actor is the account behind an event.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Label is how replies address the actor: display name, then @username,
// then the raw id.
func (a Actor) Label() string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	if handle := strings.TrimSpace(a.Username); handle != "" {
		return "@" + handle
	}

	return a.ID
}

type Message struct {
	ID        string
	ReplyToID string
	Text      string
	// Addressed marks messages meant for the bot. Only addressed messages
	// are parsed as commands.
	Addressed bool
}

// Action is an inline button press on a message the bot sent.
type Action struct {
	MessageID string
	Data      string
}

// Validate checks the envelope fields every event needs, then the payload
// its Kind requires.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	var missing string
	switch {
	case e.ID == "":
		missing = "id"
	case e.Kind == "":
		missing = "kind"
	case e.OccurredAt.IsZero():
		missing = "occurred_at"
	case e.Conversation.ID == "":
		missing = "conversation id"
	}
	if missing != "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, missing)
	}

	var payloadOK bool
	switch e.Kind {
	case EventKindMessageCreated:
		payloadOK = e.Message != nil
	case EventKindCommandReceived:
		payloadOK = e.Command != nil
	case EventKindActionTriggered:
		payloadOK = e.Action != nil && e.Action.MessageID != ""
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}
	if !payloadOK {
		return fmt.Errorf("%w: %s without its payload", ErrInvalidEvent, e.Kind)
	}

	return nil
}
