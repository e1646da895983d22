package errand

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	event := &Event{
		ID:           "e1",
		Kind:         EventKindMessageCreated,
		OccurredAt:   time.Unix(10, 0),
		Source:       SinkRef{Platform: PlatformTelegram, ID: "tg-main"},
		Conversation: Conversation{ID: "-100", Type: ConversationTypeGroup},
		Message:      &Message{ID: "5", Text: "hi"},
	}

	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent failed: %v", err)
	}
	if target.Conversation.ID != "-100" {
		t.Fatalf("conversation id = %q, want -100", target.Conversation.ID)
	}
	if target.Sink == nil || target.Sink.ID != "tg-main" {
		t.Fatalf("sink = %+v, want tg-main", target.Sink)
	}

	event.Source = SinkRef{}
	target, err = OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent without source failed: %v", err)
	}
	if target.Sink != nil {
		t.Fatalf("sink = %+v, want nil", target.Sink)
	}

	if _, err := OutboundTargetFromEvent(nil); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("nil event error = %v, want ErrInvalidOutboundRequest", err)
	}
}

func TestDirectTarget(t *testing.T) {
	t.Parallel()

	sink := &SinkRef{Platform: PlatformTelegram, ID: "tg-main"}
	target := DirectTarget("42", sink)
	if target.Conversation.ID != "42" || target.Conversation.Type != ConversationTypePrivate {
		t.Fatalf("conversation = %+v, want private 42", target.Conversation)
	}
	sink.ID = "mutated"
	if target.Sink == nil || target.Sink.ID != "tg-main" {
		t.Fatalf("sink = %+v, want detached copy", target.Sink)
	}
	if err := target.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if DirectTarget("42", &SinkRef{}).Sink != nil {
		t.Fatal("zero sink should be dropped")
	}
}

func TestSendMessageRequestValidate(t *testing.T) {
	t.Parallel()

	target := DirectTarget("42", nil)
	tests := []struct {
		name    string
		request SendMessageRequest
		wantErr bool
	}{
		{
			name:    "plain text",
			request: SendMessageRequest{Target: target, Text: "hello"},
		},
		{
			name: "buttons",
			request: SendMessageRequest{
				Target: target,
				Text:   "pick",
				Buttons: [][]InlineButton{
					{{Label: "Yes", Action: "vote:p:0"}},
					{{Label: "No", Action: "vote:p:1"}},
				},
			},
		},
		{
			name:    "missing text",
			request: SendMessageRequest{Target: target},
			wantErr: true,
		},
		{
			name:    "missing conversation",
			request: SendMessageRequest{Text: "hello"},
			wantErr: true,
		},
		{
			name: "empty row",
			request: SendMessageRequest{
				Target:  target,
				Text:    "pick",
				Buttons: [][]InlineButton{{}},
			},
			wantErr: true,
		},
		{
			name: "oversized action",
			request: SendMessageRequest{
				Target:  target,
				Text:    "pick",
				Buttons: [][]InlineButton{{{Label: "x", Action: strings.Repeat("a", 65)}}},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.wantErr && !errors.Is(err, ErrInvalidOutboundRequest) {
				t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestEditMessageRequestValidate(t *testing.T) {
	t.Parallel()

	target := OutboundTarget{Conversation: Conversation{ID: "-1", Type: ConversationTypeGroup}}
	if err := (EditMessageRequest{Target: target, MessageID: "3", Text: "x"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (EditMessageRequest{Target: target, Text: "x"}).Validate(); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("missing id error = %v, want ErrInvalidOutboundRequest", err)
	}
}
