package driver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"errand-bot/pkg/errand"
)

func TestRegistryBuildEnabled(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry([]Descriptor{{
		Type:     "telegram",
		Platform: errand.PlatformTelegram,
		Builder: func(_ context.Context, definition Definition, _ *slog.Logger) (Runtime, error) {
			if definition.Name == "broken" {
				return Runtime{}, errors.New("broken build")
			}

			return Runtime{Driver: stubDriver{name: definition.Name}}, nil
		},
	}})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	tests := []struct {
		name        string
		definitions []Definition
		wantErr     bool
		wantSources []errand.SinkRef
	}{
		{
			name: "enabled definitions get name and platform",
			definitions: []Definition{
				{Name: "tg-main", Type: "telegram", Enabled: true},
				{Name: "tg-off", Type: "telegram", Enabled: false},
			},
			wantSources: []errand.SinkRef{{Platform: errand.PlatformTelegram, ID: "tg-main"}},
		},
		{
			name: "builder failure",
			definitions: []Definition{
				{Name: "broken", Type: "telegram", Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "duplicate names",
			definitions: []Definition{
				{Name: "tg", Type: "telegram", Enabled: true},
				{Name: "tg", Type: "telegram", Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			definitions: []Definition{
				{Name: "irc", Type: "irc", Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			runtimes, err := registry.BuildEnabled(context.Background(), testCase.definitions, slog.Default())
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected build error")
				}
				return
			}
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			if len(runtimes) != len(testCase.wantSources) {
				t.Fatalf("runtimes = %d, want %d", len(runtimes), len(testCase.wantSources))
			}
			for index, want := range testCase.wantSources {
				if runtimes[index].Source != want {
					t.Fatalf("source[%d] = %+v, want %+v", index, runtimes[index].Source, want)
				}
			}
		})
	}
}

func TestCompositeSinkDispatcherRouting(t *testing.T) {
	t.Parallel()

	primary := &stubSinkDispatcher{}
	secondary := &stubSinkDispatcher{}
	multi, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-main"}, SinkDispatcher: primary},
		{Source: errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-alt"}, SinkDispatcher: secondary},
	})
	if err != nil {
		t.Fatalf("new composite failed: %v", err)
	}
	single, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-main"}, SinkDispatcher: primary},
	})
	if err != nil {
		t.Fatalf("new composite failed: %v", err)
	}

	conversation := errand.Conversation{ID: "42", Type: errand.ConversationTypePrivate}
	tests := []struct {
		name       string
		dispatcher *CompositeSinkDispatcher
		sink       *errand.SinkRef
		want       *stubSinkDispatcher
		wantErr    bool
	}{
		{
			name:       "by id",
			dispatcher: multi,
			sink:       &errand.SinkRef{ID: "tg-alt"},
			want:       secondary,
		},
		{
			name:       "platform mismatch",
			dispatcher: multi,
			sink:       &errand.SinkRef{Platform: "discord", ID: "tg-alt"},
			wantErr:    true,
		},
		{
			name:       "ambiguous platform",
			dispatcher: multi,
			sink:       &errand.SinkRef{Platform: errand.PlatformTelegram},
			wantErr:    true,
		},
		{
			name:       "missing sink with several sinks",
			dispatcher: multi,
			wantErr:    true,
		},
		{
			name:       "missing sink with one sink",
			dispatcher: single,
			want:       primary,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := testCase.dispatcher.resolve(errand.OutboundTarget{
				Conversation: conversation,
				Sink:         testCase.sink,
			})
			if testCase.wantErr {
				if !errors.Is(err, errand.ErrSinkUnavailable) {
					t.Fatalf("error = %v, want ErrSinkUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if got != testCase.want {
				t.Fatal("resolved unexpected dispatcher")
			}
		})
	}
}

func TestCompositeSinkDispatcherSendMessage(t *testing.T) {
	t.Parallel()

	primary := &stubSinkDispatcher{}
	dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: errand.SinkRef{Platform: errand.PlatformTelegram, ID: "tg-main"}, SinkDispatcher: primary},
	})
	if err != nil {
		t.Fatalf("new composite failed: %v", err)
	}

	_, err = dispatcher.SendMessage(context.Background(), errand.SendMessageRequest{
		Target: errand.DirectTarget("42", nil),
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if primary.sent != 1 {
		t.Fatalf("sent = %d, want 1", primary.sent)
	}

	if err := (&CompositeSinkDispatcher{}).EditMessage(context.Background(), errand.EditMessageRequest{}); !errors.Is(err, errand.ErrSinkUnavailable) {
		t.Fatalf("empty composite edit error = %v, want ErrSinkUnavailable", err)
	}
}

type stubDriver struct {
	name string
}

func (d stubDriver) Name() string {
	return d.name
}

func (stubDriver) Start(context.Context, errand.EventSink) error {
	return nil
}

func (stubDriver) Shutdown(context.Context) error {
	return nil
}

type stubSinkDispatcher struct {
	sent int
}

func (d *stubSinkDispatcher) SendMessage(
	_ context.Context,
	request errand.SendMessageRequest,
) (*errand.OutboundMessage, error) {
	d.sent++

	return &errand.OutboundMessage{ID: "1", Target: request.Target}, nil
}

func (*stubSinkDispatcher) EditMessage(context.Context, errand.EditMessageRequest) error {
	return nil
}
