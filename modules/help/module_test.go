package help

import (
	"context"
	"errors"
	"strings"
	"testing"

	"errand-bot/pkg/errand"
	"errand-bot/pkg/errand/errandtest"
)

func TestModuleHandleCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		event            *errand.Event
		catalogCommands  []errand.RegisteredCommand
		catalogErr       error
		wantErr          bool
		wantSent         bool
		wantTextContains []string
		wantTextExcludes []string
	}{
		{
			name:  "help renders keyword commands by module",
			event: errandtest.CommandEvent("7", helpCommandName, ""),
			catalogCommands: []errand.RegisteredCommand{
				{
					ModuleName: "todo",
					Command:    errand.CommandSpec{Name: "todo", Usage: "add <task>", Description: "keep track of your tasks"},
				},
				{
					ModuleName: "reminder",
					Command:    errand.CommandSpec{Name: "remind", Usage: "<task> in <N> minutes"},
				},
				{
					ModuleName: "reminder",
					Command:    errand.CommandSpec{Name: "timer", Usage: "<minutes>", Description: "start a countdown"},
				},
				{
					ModuleName: "digest",
					Command:    errand.CommandSpec{Name: "digest", Description: "today's reading"},
				},
				{
					ModuleName: "help",
					Command:    errand.CommandSpec{Name: "help", Tier: errand.CommandTierSecondary},
				},
			},
			wantSent: true,
			wantTextContains: []string{
				"Please, Tester, allow me to present my humble services:",
				"*Your Task Ledger*\n• `todo add <task>` - keep track of your tasks",
				"*Time Keeping*\n• `remind <task> in <N> minutes`\n• `timer <minutes>` - start a countdown",
				"*The Morning Gazette*\n• `digest` - today's reading",
			},
			wantTextExcludes: []string{"`help`"},
		},
		{
			name:             "help with empty catalog",
			event:            errandtest.CommandEvent("7", helpCommandName, ""),
			wantSent:         true,
			wantTextContains: []string{"(none yet"},
		},
		{
			name:       "catalog failure returns error",
			event:      errandtest.CommandEvent("7", helpCommandName, ""),
			catalogErr: errors.New("catalog down"),
			wantErr:    true,
		},
		{
			name:             "chat replies with filler",
			event:            errandtest.CommandEvent("7", chatCommandName, "how are you"),
			wantSent:         true,
			wantTextContains: []string{"Tester", "`help`"},
		},
		{
			name:  "unrelated command is ignored",
			event: errandtest.CommandEvent("7", "todo", "list"),
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := &errandtest.Dispatcher{}
			module := New()
			module.dispatcher = dispatcher
			module.commandCatalog = &captureCommandCatalog{
				commands: testCase.catalogCommands,
				err:      testCase.catalogErr,
			}
			module.pick = func(int) int { return 0 }

			err := module.handleCommand(context.Background(), testCase.event)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sent := dispatcher.Sent()
			if (len(sent) > 0) != testCase.wantSent {
				t.Fatalf("sent = %d, want sent %v", len(sent), testCase.wantSent)
			}
			if !testCase.wantSent {
				return
			}
			if sent[0].ReplyToMessageID != "msg-1" {
				t.Fatalf("reply_to = %q, want msg-1", sent[0].ReplyToMessageID)
			}
			for _, want := range testCase.wantTextContains {
				if !strings.Contains(sent[0].Text, want) {
					t.Fatalf("text = %q, want substring %q", sent[0].Text, want)
				}
			}
			for _, unwanted := range testCase.wantTextExcludes {
				if strings.Contains(sent[0].Text, unwanted) {
					t.Fatalf("text = %q, must not contain %q", sent[0].Text, unwanted)
				}
			}
		})
	}
}

func TestFillerLinesFormat(t *testing.T) {
	t.Parallel()

	for index, line := range fillerLines {
		if strings.Count(line, "%s") != 1 {
			t.Fatalf("filler line %d has %d placeholders, want 1", index, strings.Count(line, "%s"))
		}
	}
}

func TestModuleOnRegister(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		registry errandtest.Services
		wantErr  bool
	}{
		{
			name: "resolves dispatcher and catalog",
			registry: errandtest.Services{
				errand.ServiceSinkDispatcher: &errandtest.Dispatcher{},
				errand.ServiceCommandCatalog: &captureCommandCatalog{},
			},
		},
		{
			name: "missing catalog fails",
			registry: errandtest.Services{
				errand.ServiceSinkDispatcher: &errandtest.Dispatcher{},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := New().OnRegister(context.Background(), errandtest.Runtime{Registry: testCase.registry})
			if testCase.wantErr != (err != nil) {
				t.Fatalf("OnRegister error = %v, want error %v", err, testCase.wantErr)
			}
		})
	}
}

func TestModuleSpecTiers(t *testing.T) {
	t.Parallel()

	commands := New().Spec().Commands
	if len(commands) != 2 {
		t.Fatalf("command count = %d, want 2", len(commands))
	}
	if commands[0].EffectiveTier() != errand.CommandTierSecondary {
		t.Fatalf("help tier = %q, want secondary", commands[0].EffectiveTier())
	}
	if commands[1].EffectiveTier() != errand.CommandTierFallback {
		t.Fatalf("chat tier = %q, want fallback", commands[1].EffectiveTier())
	}
}

type captureCommandCatalog struct {
	commands []errand.RegisteredCommand
	err      error
}

func (c *captureCommandCatalog) ListCommands(context.Context) ([]errand.RegisteredCommand, error) {
	if c.err != nil {
		return nil, c.err
	}

	return append([]errand.RegisteredCommand(nil), c.commands...), nil
}
