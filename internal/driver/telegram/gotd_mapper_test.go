package telegram

import (
	"context"
	"testing"
	"time"

	"errand-bot/pkg/errand"

	"github.com/gotd/td/tg"
)

func TestDefaultGotdUpdateMapperMapMessages(t *testing.T) {
	t.Parallel()

	occurredAt := time.Unix(1_700_000_000, 0).UTC()
	alice := newTGUser(42, "alice", "Alice", "User", false)

	groupEnvelope := func(message *tg.Message) gotdUpdateEnvelope {
		return gotdUpdateEnvelope{
			update:     &tg.UpdateNewMessage{Message: message},
			occurredAt: occurredAt,
			usersByID:  map[int64]*tg.User{42: alice},
			chatsByID: map[int64]gotdChatInfo{
				100: {title: "errands", kind: errand.ConversationTypeGroup},
			},
			updateClass: "updateNewMessage",
		}
	}
	groupMessage := func(id int, text string) *tg.Message {
		return &tg.Message{
			ID:      id,
			PeerID:  &tg.PeerChat{ChatID: 100},
			FromID:  &tg.PeerUser{UserID: 42},
			Date:    1_700_000_000,
			Message: text,
		}
	}

	tests := []struct {
		name          string
		raw           any
		wantAccepted  bool
		wantChat      ChatRef
		wantText      string
		wantAddressed bool
		wantReplyTo   string
	}{
		{
			name:          "group mention is addressed",
			raw:           groupEnvelope(groupMessage(777, "hey @ErrandBot, todo list")),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "hey @ErrandBot, todo list",
			wantAddressed: true,
		},
		{
			name:          "group chatter is not addressed",
			raw:           groupEnvelope(groupMessage(778, "lunch anyone?")),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "lunch anyone?",
			wantAddressed: false,
		},
		{
			name:          "mention of another bot is not addressed",
			raw:           groupEnvelope(groupMessage(779, "@errandbotx todo list")),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "@errandbotx todo list",
			wantAddressed: false,
		},
		{
			name:          "slash command is addressed",
			raw:           groupEnvelope(groupMessage(780, "/todo list")),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "/todo list",
			wantAddressed: true,
		},
		{
			name: "reply to own message is addressed",
			raw: groupEnvelope(func() *tg.Message {
				message := groupMessage(781, "done 5")
				header := &tg.MessageReplyHeader{}
				header.SetReplyToMsgID(500)
				message.SetReplyTo(header)
				return message
			}()),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "done 5",
			wantAddressed: true,
			wantReplyTo:   "500",
		},
		{
			name: "reply to someone else is not addressed",
			raw: groupEnvelope(func() *tg.Message {
				message := groupMessage(782, "agreed")
				header := &tg.MessageReplyHeader{}
				header.SetReplyToMsgID(501)
				message.SetReplyTo(header)
				return message
			}()),
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "100", Title: "errands", Type: errand.ConversationTypeGroup},
			wantText:      "agreed",
			wantAddressed: false,
			wantReplyTo:   "501",
		},
		{
			name: "private message is addressed",
			raw: gotdUpdateEnvelope{
				update: &tg.UpdateNewMessage{Message: &tg.Message{
					ID:      12,
					PeerID:  &tg.PeerUser{UserID: 42},
					Date:    1_700_000_000,
					Message: "stats",
				}},
				occurredAt: occurredAt,
				usersByID:  map[int64]*tg.User{42: alice},
			},
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "42", Title: "Alice User", Type: errand.ConversationTypePrivate},
			wantText:      "stats",
			wantAddressed: true,
		},
		{
			name: "supergroup message via channel update",
			raw: gotdUpdateEnvelope{
				update: &tg.UpdateNewChannelMessage{Message: &tg.Message{
					ID:      90,
					PeerID:  &tg.PeerChannel{ChannelID: 300},
					FromID:  &tg.PeerUser{UserID: 42},
					Date:    1_700_000_000,
					Message: "@errandbot help",
				}},
				occurredAt: occurredAt,
				usersByID:  map[int64]*tg.User{42: alice},
				chatsByID: map[int64]gotdChatInfo{
					300: {title: "team", kind: errand.ConversationTypeGroup},
				},
			},
			wantAccepted:  true,
			wantChat:      ChatRef{ID: "300", Title: "team", Type: errand.ConversationTypeGroup},
			wantText:      "@errandbot help",
			wantAddressed: true,
		},
		{
			name: "outgoing echo is skipped",
			raw: groupEnvelope(func() *tg.Message {
				message := groupMessage(783, "Task added")
				message.Out = true
				return message
			}()),
			wantAccepted: false,
		},
		{
			name:         "service message is skipped",
			raw:          gotdUpdateEnvelope{update: &tg.UpdateNewMessage{Message: &tg.MessageService{ID: 1}}},
			wantAccepted: false,
		},
		{
			name:         "unsupported update class is skipped",
			raw:          gotdUpdateEnvelope{update: &tg.UpdateUserTyping{UserID: 42}},
			wantAccepted: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			peers := NewPeerCache()
			peers.RememberOwnMessage("100", "500")
			self := &SelfIdentity{}
			self.Set(7, "@errandbot")
			mapper := NewDefaultGotdUpdateMapper(WithPeerCache(peers), WithSelfIdentity(self))

			got, accepted, err := mapper.Map(context.Background(), testCase.raw)
			if err != nil {
				t.Fatalf("map failed: %v", err)
			}
			if accepted != testCase.wantAccepted {
				t.Fatalf("accepted = %v, want %v", accepted, testCase.wantAccepted)
			}
			if !accepted {
				return
			}
			if got.Type != UpdateTypeMessage {
				t.Fatalf("type = %s, want %s", got.Type, UpdateTypeMessage)
			}
			if got.Chat != testCase.wantChat {
				t.Fatalf("chat = %+v, want %+v", got.Chat, testCase.wantChat)
			}
			if got.Actor.ID != "42" {
				t.Fatalf("actor id = %s, want 42", got.Actor.ID)
			}
			if got.Message.Text != testCase.wantText {
				t.Fatalf("text = %q, want %q", got.Message.Text, testCase.wantText)
			}
			if got.Message.Addressed != testCase.wantAddressed {
				t.Fatalf("addressed = %v, want %v", got.Message.Addressed, testCase.wantAddressed)
			}
			if got.Message.ReplyToID != testCase.wantReplyTo {
				t.Fatalf("reply to = %q, want %q", got.Message.ReplyToID, testCase.wantReplyTo)
			}
			if !got.OccurredAt.Equal(occurredAt) {
				t.Fatalf("occurred at = %v, want %v", got.OccurredAt, occurredAt)
			}
		})
	}
}

func TestDefaultGotdUpdateMapperMapMentionByEntity(t *testing.T) {
	t.Parallel()

	self := &SelfIdentity{}
	self.Set(7, "")
	mapper := NewDefaultGotdUpdateMapper(WithSelfIdentity(self))

	message := &tg.Message{
		ID:      5,
		PeerID:  &tg.PeerChat{ChatID: 100},
		FromID:  &tg.PeerUser{UserID: 42},
		Message: "Errand poll lunch?",
	}
	message.SetEntities([]tg.MessageEntityClass{
		&tg.MessageEntityMentionName{Offset: 0, Length: 6, UserID: 7},
	})

	got, accepted, err := mapper.Map(context.Background(), gotdUpdateEnvelope{
		update:     &tg.UpdateNewMessage{Message: message},
		occurredAt: time.Now().UTC(),
	})
	if err != nil || !accepted {
		t.Fatalf("map = (%v, %v), want accepted", accepted, err)
	}
	if !got.Message.Addressed {
		t.Fatal("expected entity mention to address the bot")
	}
}

func TestDefaultGotdUpdateMapperMapCallbackQuery(t *testing.T) {
	t.Parallel()

	occurredAt := time.Unix(1_700_000_500, 0).UTC()
	peers := NewPeerCache()
	mapper := NewDefaultGotdUpdateMapper(WithPeerCache(peers))

	got, accepted, err := mapper.Map(context.Background(), gotdUpdateEnvelope{
		update: &tg.UpdateBotCallbackQuery{
			QueryID: 9001,
			UserID:  42,
			Peer:    &tg.PeerChat{ChatID: 100},
			MsgID:   321,
			Data:    []byte("vote:p1:1"),
		},
		occurredAt:  occurredAt,
		usersByID:   map[int64]*tg.User{42: newTGUser(42, "alice", "Alice", "", false)},
		updateClass: "updateBotCallbackQuery",
	})
	if err != nil {
		t.Fatalf("map failed: %v", err)
	}
	if !accepted {
		t.Fatal("expected callback to be accepted")
	}
	if got.Type != UpdateTypeCallback {
		t.Fatalf("type = %s, want %s", got.Type, UpdateTypeCallback)
	}
	if got.ID != "tg:callback:100:9001" {
		t.Fatalf("id = %s, want tg:callback:100:9001", got.ID)
	}
	want := CallbackPayload{QueryID: 9001, MessageID: "321", Data: "vote:p1:1"}
	if got.Callback == nil || *got.Callback != want {
		t.Fatalf("callback = %+v, want %+v", got.Callback, want)
	}
	if got.Actor.Username != "alice" {
		t.Fatalf("actor username = %s, want alice", got.Actor.Username)
	}
	if got.Metadata["gotd_update"] != "updateBotCallbackQuery" {
		t.Fatalf("metadata = %v, want gotd_update", got.Metadata)
	}

	peer, err := peers.Resolve(errand.Conversation{ID: "100", Type: errand.ConversationTypeGroup})
	if err != nil {
		t.Fatalf("resolve callback conversation: %v", err)
	}
	if chat, ok := peer.(*tg.InputPeerChat); !ok || chat.ChatID != 100 {
		t.Fatalf("peer = %#v, want chat 100", peer)
	}
}

func TestDefaultGotdUpdateMapperMapContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewDefaultGotdUpdateMapper().Map(ctx, gotdUpdateEnvelope{})
	if err == nil {
		t.Fatal("expected canceled context error")
	}
}

func TestDefaultGotdUpdateMapperMapRejectsUnknownRaw(t *testing.T) {
	t.Parallel()

	if _, _, err := NewDefaultGotdUpdateMapper().Map(context.Background(), 42); err == nil {
		t.Fatal("expected unsupported raw type error")
	}
}

func TestComposeUpdateID(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		updateType UpdateType
		chatID     string
		parts      []string
		want       string
	}{
		"message":       {updateType: UpdateTypeMessage, chatID: "100", parts: []string{"777"}, want: "tg:message:100:777"},
		"empty parts":   {updateType: UpdateTypeMessage, chatID: "100", parts: []string{"", "7"}, want: "tg:message:100:7"},
		"no chat":       {updateType: UpdateTypeCallback, parts: []string{"9"}, want: "tg:callback:9"},
		"type and chat": {updateType: UpdateTypeCallback, chatID: "5", want: "tg:callback:5"},
	}

	for name, testCase := range tests {
		testCase := testCase
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := composeUpdateID(testCase.updateType, testCase.chatID, testCase.parts...); got != testCase.want {
				t.Fatalf("composeUpdateID = %s, want %s", got, testCase.want)
			}
		})
	}
}

func newTGUser(id int64, username, firstName, lastName string, isBot bool) *tg.User {
	user := &tg.User{ID: id}
	user.Bot = isBot
	if username != "" {
		user.SetUsername(username)
	}
	if firstName != "" {
		user.SetFirstName(firstName)
	}
	if lastName != "" {
		user.SetLastName(lastName)
	}
	return user
}
