package errand

import (
	"testing"
	"time"
)

func testCommandSpecs() []CommandSpec {
	return []CommandSpec{
		{Name: "todo"},
		{Name: "remind"},
		{Name: "poll"},
		{Name: "define"},
		{Name: "gif"},
		{Name: "timer"},
		{Name: "search"},
		{Name: "stats"},
		{Name: "help", Tier: CommandTierSecondary},
		{Name: "chat", Tier: CommandTierFallback},
	}
}

func TestMatchCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		text      string
		wantName  string
		wantValue string
	}{
		{
			name:      "keyword after mention",
			text:      "@errandbot todo add Buy milk !high #errands",
			wantName:  "todo",
			wantValue: "add Buy milk !high #errands",
		},
		{
			name:      "slash command with bot suffix",
			text:      "/timer@errandbot 25",
			wantName:  "timer",
			wantValue: "25",
		},
		{
			name:      "keyword is case insensitive and keeps value casing",
			text:      "Poll Should we ship? Yes, No",
			wantName:  "poll",
			wantValue: "Should we ship? Yes, No",
		},
		{
			name:      "earliest keyword token wins",
			text:      "remind me to update the todo list in 5 minutes",
			wantName:  "remind",
			wantValue: "me to update the todo list in 5 minutes",
		},
		{
			name:      "keyword with trailing punctuation",
			text:      "stats, please",
			wantName:  "stats",
			wantValue: "please",
		},
		{
			name:      "substring of a longer word does not match",
			text:      "my todoodle is great",
			wantName:  "chat",
			wantValue: "my todoodle is great",
		},
		{
			name:      "help only when no keyword matched",
			text:      "help me search cats",
			wantName:  "search",
			wantValue: "cats",
		},
		{
			name:      "secondary tier",
			text:      "could you help?",
			wantName:  "help",
			wantValue: "",
		},
		{
			name:      "mention tokens are not keywords",
			text:      "@todo hello",
			wantName:  "chat",
			wantValue: "@todo hello",
		},
		{
			name:     "empty text falls back",
			text:     "   ",
			wantName: "chat",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			match, ok := MatchCommand(testCase.text, testCommandSpecs())
			if !ok {
				t.Fatal("MatchCommand ok = false, want true")
			}
			if match.Spec.Name != testCase.wantName {
				t.Fatalf("name = %q, want %q", match.Spec.Name, testCase.wantName)
			}
			if match.Value != testCase.wantValue {
				t.Fatalf("value = %q, want %q", match.Value, testCase.wantValue)
			}
		})
	}
}

func TestMatchCommandWithoutFallback(t *testing.T) {
	t.Parallel()

	_, ok := MatchCommand("hello there", []CommandSpec{{Name: "todo"}})
	if ok {
		t.Fatal("MatchCommand ok = true, want false")
	}
}

func TestCommandSpecValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    CommandSpec
		wantErr bool
	}{
		{name: "keyword default tier", spec: CommandSpec{Name: "todo"}},
		{name: "fallback tier", spec: CommandSpec{Name: "chat", Tier: CommandTierFallback}},
		{name: "missing name", spec: CommandSpec{Name: "  "}, wantErr: true},
		{name: "punctuation in name", spec: CommandSpec{Name: "to-do"}, wantErr: true},
		{name: "unknown tier", spec: CommandSpec{Name: "todo", Tier: "later"}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.spec.Validate()
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewCommandInvocation(t *testing.T) {
	t.Parallel()

	source := &Event{
		ID:         "tg-1",
		Kind:       EventKindMessageCreated,
		OccurredAt: time.Unix(1, 0),
		Message:    &Message{ID: "7", Text: "@bot Todo list"},
	}
	match, ok := MatchCommand(source.Message.Text, testCommandSpecs())
	if !ok {
		t.Fatal("MatchCommand ok = false")
	}

	invocation, err := NewCommandInvocation(match, source)
	if err != nil {
		t.Fatalf("NewCommandInvocation failed: %v", err)
	}
	if invocation.Name != "todo" || invocation.Value != "list" {
		t.Fatalf("invocation = %+v, want todo/list", invocation)
	}
	if invocation.RawInput != "@bot Todo list" {
		t.Fatalf("raw input = %q", invocation.RawInput)
	}
	if invocation.SourceEventID != "tg-1" || invocation.SourceEventKind != EventKindMessageCreated {
		t.Fatalf("source = %s/%s", invocation.SourceEventID, invocation.SourceEventKind)
	}

	if _, err := NewCommandInvocation(match, nil); err == nil {
		t.Fatal("expected error for nil source event")
	}
}
