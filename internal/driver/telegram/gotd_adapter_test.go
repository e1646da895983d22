package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestGotdUpdateChannelUpdatesNilContext(t *testing.T) {
	t.Parallel()

	stream := NewGotdUpdateChannel(1)
	//nolint:staticcheck // nil context is the failure under test.
	if _, err := stream.Updates(nil); err == nil {
		t.Fatal("expected nil context error")
	}
}

func TestFlattenGotdUpdates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		updates     tg.UpdatesClass
		wantClasses []string
		wantErr     bool
	}{
		{
			name: "batch keeps every update with shared entities",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{
					&tg.UpdateNewMessage{Message: &tg.Message{ID: 1, PeerID: &tg.PeerChat{ChatID: 100}}},
					&tg.UpdateBotCallbackQuery{QueryID: 2, Peer: &tg.PeerChat{ChatID: 100}},
				},
				Users: []tg.UserClass{newTGUser(42, "alice", "", "", false)},
				Chats: []tg.ChatClass{&tg.Chat{ID: 100, Title: "errands"}},
				Date:  1_700_000_000,
			},
			wantClasses: []string{"updateNewMessage", "updateBotCallbackQuery"},
		},
		{
			name: "short private message expands to new message",
			updates: &tg.UpdateShortMessage{
				ID:      3,
				UserID:  42,
				Message: "todo list",
				Date:    1_700_000_000,
			},
			wantClasses: []string{"updateShortMessage"},
		},
		{
			name: "short chat message expands to new message",
			updates: &tg.UpdateShortChatMessage{
				ID:      4,
				FromID:  42,
				ChatID:  100,
				Message: "poll lunch?",
				Date:    1_700_000_000,
			},
			wantClasses: []string{"updateShortChatMessage"},
		},
		{
			name:    "too long yields nothing",
			updates: &tg.UpdatesTooLong{},
		},
		{
			name:    "nil container fails",
			updates: nil,
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := flattenGotdUpdates(testCase.updates)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected flatten error")
				}
				return
			}
			if err != nil {
				t.Fatalf("flatten failed: %v", err)
			}
			if len(got) != len(testCase.wantClasses) {
				t.Fatalf("flattened = %d, want %d", len(got), len(testCase.wantClasses))
			}
			for index, envelope := range got {
				if envelope.updateClass != testCase.wantClasses[index] {
					t.Fatalf("class[%d] = %s, want %s", index, envelope.updateClass, testCase.wantClasses[index])
				}
				if envelope.occurredAt.IsZero() {
					t.Fatalf("envelope[%d] missing occurred_at", index)
				}
			}
		})
	}
}

func TestFlattenGotdUpdatesIndexesEntities(t *testing.T) {
	t.Parallel()

	got, err := flattenGotdUpdates(&tg.Updates{
		Updates: []tg.UpdateClass{&tg.UpdateNewMessage{Message: &tg.Message{ID: 1}}},
		Users:   []tg.UserClass{newTGUser(42, "alice", "", "", false)},
		Chats: []tg.ChatClass{
			&tg.Channel{ID: 300, Title: "team", Megagroup: true, AccessHash: 3},
		},
		Date: 1_700_000_000,
	})
	if err != nil {
		t.Fatalf("flatten failed: %v", err)
	}
	envelope := got[0]
	if envelope.usersByID[42] == nil {
		t.Fatal("expected indexed user 42")
	}
	if info := envelope.chatsByID[300]; info.title != "team" || info.kind != "group" {
		t.Fatalf("chat 300 = %+v, want megagroup titled team", info)
	}
	if !envelope.occurredAt.Equal(time.Unix(1_700_000_000, 0).UTC()) {
		t.Fatalf("occurred at = %v, want batch date", envelope.occurredAt)
	}
}

func TestGotdUpdateChannelHandleForwardsToStream(t *testing.T) {
	t.Parallel()

	stream := NewGotdUpdateChannel(4)
	ctx := context.Background()
	updates, err := stream.Updates(ctx)
	if err != nil {
		t.Fatalf("updates failed: %v", err)
	}

	if err := stream.Handle(ctx, &tg.UpdateShortMessage{ID: 9, UserID: 42, Message: "stats"}); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	select {
	case raw := <-updates:
		envelope, ok := raw.(gotdUpdateEnvelope)
		if !ok {
			t.Fatalf("raw = %T, want gotdUpdateEnvelope", raw)
		}
		update, ok := envelope.update.(*tg.UpdateNewMessage)
		if !ok {
			t.Fatalf("update = %T, want *tg.UpdateNewMessage", envelope.update)
		}
		message, ok := update.Message.(*tg.Message)
		if !ok || message.Message != "stats" {
			t.Fatalf("message = %#v, want text stats", update.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded update")
	}
}

func TestGotdUpdateChannelHandleHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	stream := NewGotdUpdateChannel(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Fill the buffer so the second send must wait on ctx.
	stream.updates <- gotdUpdateEnvelope{}
	if err := stream.Handle(ctx, &tg.UpdateShortMessage{ID: 1, UserID: 42}); err == nil {
		t.Fatal("expected canceled handle error")
	}
}
