package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

func TestOutboundDispatcherSendMessage(t *testing.T) {
	t.Parallel()

	groupTarget := errand.OutboundTarget{
		Conversation: errand.Conversation{ID: "100", Type: errand.ConversationTypeGroup},
	}

	tests := []struct {
		name        string
		request     errand.SendMessageRequest
		rpcErr      error
		wantErr     error
		wantKind    errand.OutboundErrorKind
		wantRPC     bool
		wantReplyTo int
		wantRows    int
	}{
		{
			name:    "plain send",
			request: errand.SendMessageRequest{Target: groupTarget, Text: "Task added"},
			wantRPC: true,
		},
		{
			name: "reply with inline buttons",
			request: errand.SendMessageRequest{
				Target:           groupTarget,
				Text:             "Lunch?",
				ReplyToMessageID: "77",
				Buttons: [][]errand.InlineButton{
					{{Label: "Yes (0)", Action: "vote:p1:0"}},
					{{Label: "No (0)", Action: "vote:p1:1"}},
				},
			},
			wantRPC:     true,
			wantReplyTo: 77,
			wantRows:    2,
		},
		{
			name:    "empty text is invalid",
			request: errand.SendMessageRequest{Target: groupTarget},
			wantErr: errand.ErrInvalidOutboundRequest,
		},
		{
			name: "unknown group is invalid",
			request: errand.SendMessageRequest{
				Target: errand.OutboundTarget{Conversation: errand.Conversation{ID: "404", Type: errand.ConversationTypeGroup}},
				Text:   "hello",
			},
			wantErr: errand.ErrInvalidOutboundRequest,
		},
		{
			name:    "bad reply id is invalid",
			request: errand.SendMessageRequest{Target: groupTarget, Text: "hello", ReplyToMessageID: "abc"},
			wantErr: errand.ErrInvalidOutboundRequest,
		},
		{
			name:     "flood wait is rate limited",
			request:  errand.SendMessageRequest{Target: groupTarget, Text: "hello"},
			rpcErr:   tgerr.New(420, "FLOOD_WAIT_3"),
			wantRPC:  true,
			wantKind: errand.OutboundErrorKindRateLimited,
		},
		{
			name:     "blocked user is permanent",
			request:  errand.SendMessageRequest{Target: groupTarget, Text: "hello"},
			rpcErr:   tgerr.New(403, "USER_IS_BLOCKED"),
			wantRPC:  true,
			wantKind: errand.OutboundErrorKindPermanent,
		},
		{
			name:     "transport failure is unknown",
			request:  errand.SendMessageRequest{Target: groupTarget, Text: "hello"},
			rpcErr:   errors.New("connection reset"),
			wantRPC:  true,
			wantKind: errand.OutboundErrorKindUnknown,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			rpc := &stubOutboundRPC{sendID: 901, sendErr: testCase.rpcErr}
			peers := NewPeerCache()
			peers.RememberConversation(ChatRef{ID: "100", Type: errand.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})
			dispatcher, err := newOutboundDispatcherWithRPC(rpc, peers, WithSinkRef(errand.SinkRef{ID: "tg-main"}))
			if err != nil {
				t.Fatalf("new dispatcher failed: %v", err)
			}

			sent, err := dispatcher.SendMessage(context.Background(), testCase.request)
			if (rpc.sendCalls > 0) != testCase.wantRPC {
				t.Fatalf("rpc called = %v, want %v", rpc.sendCalls > 0, testCase.wantRPC)
			}
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("send error = %v, want %v", err, testCase.wantErr)
				}
				return
			}
			if testCase.wantKind != "" {
				outboundErr, ok := errand.AsOutboundError(err)
				if !ok {
					t.Fatalf("send error = %v, want outbound error", err)
				}
				if outboundErr.Kind != testCase.wantKind {
					t.Fatalf("error kind = %s, want %s", outboundErr.Kind, testCase.wantKind)
				}
				if outboundErr.SinkID != "tg-main" || outboundErr.Operation != errand.OutboundOperationSendMessage {
					t.Fatalf("error = %+v, want send_message on tg-main", outboundErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
			if sent.ID != "901" {
				t.Fatalf("sent id = %s, want 901", sent.ID)
			}
			if !peers.IsOwnMessage("100", "901") {
				t.Fatal("expected sent message to be remembered as own")
			}
			if rpc.lastSend.replyTo != testCase.wantReplyTo {
				t.Fatalf("reply to = %d, want %d", rpc.lastSend.replyTo, testCase.wantReplyTo)
			}
			if rows := markupRows(rpc.lastSend.markup); rows != testCase.wantRows {
				t.Fatalf("keyboard rows = %d, want %d", rows, testCase.wantRows)
			}
		})
	}
}

func TestOutboundDispatcherSendMessageToUnseenUser(t *testing.T) {
	t.Parallel()

	rpc := &stubOutboundRPC{sendID: 5}
	dispatcher, err := newOutboundDispatcherWithRPC(rpc, NewPeerCache())
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}

	if _, err := dispatcher.SendMessage(context.Background(), errand.SendMessageRequest{
		Target: errand.DirectTarget("42", nil),
		Text:   "Reminder: stretch",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	user, ok := rpc.lastPeer.(*tg.InputPeerUser)
	if !ok || user.UserID != 42 {
		t.Fatalf("peer = %#v, want user 42", rpc.lastPeer)
	}
}

func TestOutboundDispatcherEditMessage(t *testing.T) {
	t.Parallel()

	target := errand.OutboundTarget{
		Conversation: errand.Conversation{ID: "100", Type: errand.ConversationTypeGroup},
	}

	tests := []struct {
		name     string
		request  errand.EditMessageRequest
		rpcErr   error
		wantErr  bool
		wantRows int
	}{
		{
			name: "edit with buttons",
			request: errand.EditMessageRequest{
				Target:    target,
				MessageID: "321",
				Text:      "Lunch? 1 vote",
				Buttons:   [][]errand.InlineButton{{{Label: "Yes (1)", Action: "vote:p1:0"}}},
			},
			wantRows: 1,
		},
		{
			name:    "unchanged content is not an error",
			request: errand.EditMessageRequest{Target: target, MessageID: "321", Text: "same"},
			rpcErr:  tgerr.New(400, "MESSAGE_NOT_MODIFIED"),
		},
		{
			name:    "invalid message id",
			request: errand.EditMessageRequest{Target: target, MessageID: "0", Text: "x"},
			wantErr: true,
		},
		{
			name:    "rpc failure",
			request: errand.EditMessageRequest{Target: target, MessageID: "321", Text: "x"},
			rpcErr:  tgerr.New(400, "MESSAGE_ID_INVALID"),
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			rpc := &stubOutboundRPC{editErr: testCase.rpcErr}
			peers := NewPeerCache()
			peers.RememberConversation(ChatRef{ID: "100", Type: errand.ConversationTypeGroup}, &tg.InputPeerChat{ChatID: 100})
			dispatcher, err := newOutboundDispatcherWithRPC(rpc, peers, WithOutboundTimeout(time.Second))
			if err != nil {
				t.Fatalf("new dispatcher failed: %v", err)
			}

			err = dispatcher.EditMessage(context.Background(), testCase.request)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected edit error")
				}
				return
			}
			if err != nil {
				t.Fatalf("edit failed: %v", err)
			}
			if rpc.lastEditID != 321 {
				t.Fatalf("edited id = %d, want 321", rpc.lastEditID)
			}
			if rows := markupRows(rpc.lastEdit.markup); rows != testCase.wantRows {
				t.Fatalf("keyboard rows = %d, want %d", rows, testCase.wantRows)
			}
		})
	}
}

func TestOutboundDispatcherAnswerCallback(t *testing.T) {
	t.Parallel()

	rpc := &stubOutboundRPC{}
	dispatcher, err := newOutboundDispatcherWithRPC(rpc, NewPeerCache())
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}
	if err := dispatcher.AnswerCallback(context.Background(), 77); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if rpc.answered != 77 {
		t.Fatalf("answered = %d, want 77", rpc.answered)
	}
}

func TestInlineMarkup(t *testing.T) {
	t.Parallel()

	if got := inlineMarkup(nil); got != nil {
		t.Fatalf("markup = %#v, want nil", got)
	}

	markup, ok := inlineMarkup([][]errand.InlineButton{
		{{Label: "A", Action: "vote:p:0"}, {Label: "B", Action: "vote:p:1"}},
	}).(*tg.ReplyInlineMarkup)
	if !ok {
		t.Fatal("expected inline markup")
	}
	button, ok := markup.Rows[0].Buttons[1].(*tg.KeyboardButtonCallback)
	if !ok {
		t.Fatalf("button = %T, want callback button", markup.Rows[0].Buttons[1])
	}
	if button.Text != "B" || string(button.Data) != "vote:p:1" {
		t.Fatalf("button = %+v, want B/vote:p:1", button)
	}
}

func TestClassifyTelegramRPCError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  *tgerr.Error
		want errand.OutboundErrorKind
	}{
		"flood type":    {err: tgerr.New(400, "FLOOD_PREMIUM_WAIT_5"), want: errand.OutboundErrorKindRateLimited},
		"too many":      {err: tgerr.New(429, "TOO_MANY"), want: errand.OutboundErrorKindRateLimited},
		"migrate":       {err: tgerr.New(303, "NETWORK_MIGRATE_2"), want: errand.OutboundErrorKindTemporary},
		"bad request":   {err: tgerr.New(400, "PEER_ID_INVALID"), want: errand.OutboundErrorKindPermanent},
		"server":        {err: tgerr.New(500, "INTERNAL"), want: errand.OutboundErrorKindTemporary},
		"odd code":      {err: tgerr.New(418, "TEAPOT"), want: errand.OutboundErrorKindUnknown},
		"nil rpc error": {err: nil, want: errand.OutboundErrorKindUnknown},
	}

	for name, testCase := range tests {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := classifyTelegramRPCError(testCase.err); got != testCase.want {
				t.Fatalf("classify = %s, want %s", got, testCase.want)
			}
		})
	}
}

func markupRows(markup tg.ReplyMarkupClass) int {
	inline, ok := markup.(*tg.ReplyInlineMarkup)
	if !ok {
		return 0
	}
	return len(inline.Rows)
}

type stubOutboundRPC struct {
	sendID     int
	sendErr    error
	editErr    error
	sendCalls  int
	lastPeer   tg.InputPeerClass
	lastSend   outboundText
	lastEdit   outboundText
	lastEditID int
	answered   int64
}

func (s *stubOutboundRPC) SendText(_ context.Context, peer tg.InputPeerClass, message outboundText) (int, error) {
	s.sendCalls++
	s.lastPeer = peer
	s.lastSend = message
	if s.sendErr != nil {
		return 0, s.sendErr
	}
	return s.sendID, nil
}

func (s *stubOutboundRPC) EditText(_ context.Context, peer tg.InputPeerClass, messageID int, message outboundText) error {
	s.lastPeer = peer
	s.lastEdit = message
	s.lastEditID = messageID
	return s.editErr
}

func (s *stubOutboundRPC) AnswerCallback(_ context.Context, queryID int64) error {
	s.answered = queryID
	return nil
}
