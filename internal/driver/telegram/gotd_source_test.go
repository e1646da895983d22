package telegram

import (
	"context"
	"errors"
	"testing"
)

func TestGotdSourceConsume(t *testing.T) {
	t.Parallel()

	handlerErr := errors.New("sink closed")
	tests := []struct {
		name        string
		raw         []any
		handlerErr  error
		wantHandled []string
		wantMapErrs int
		wantErr     error
	}{
		{
			name:        "accepted updates reach handler in order",
			raw:         []any{"a", "skip", "b"},
			wantHandled: []string{"a", "b"},
		},
		{
			name:        "map failures and panics are reported and skipped",
			raw:         []any{"fail", "panic", "c"},
			wantHandled: []string{"c"},
			wantMapErrs: 2,
		},
		{
			name:        "handler failure stops the session",
			raw:         []any{"a", "b"},
			handlerErr:  handlerErr,
			wantHandled: []string{"a"},
			wantErr:     handlerErr,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			stream := make(chan any, len(testCase.raw))
			for _, raw := range testCase.raw {
				stream <- raw
			}
			close(stream)

			mapErrs := 0
			source, err := NewGotdSource(
				passthroughSession{},
				staticStream{updates: stream},
				stringMapper{},
				func(context.Context, error) { mapErrs++ },
			)
			if err != nil {
				t.Fatalf("new gotd source failed: %v", err)
			}

			var handled []string
			err = source.Consume(context.Background(), func(_ context.Context, update Update) error {
				handled = append(handled, update.ID)
				return testCase.handlerErr
			})
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("consume error = %v, want %v", err, testCase.wantErr)
				}
			} else if err != nil {
				t.Fatalf("consume failed: %v", err)
			}
			if len(handled) != len(testCase.wantHandled) {
				t.Fatalf("handled = %v, want %v", handled, testCase.wantHandled)
			}
			for index := range handled {
				if handled[index] != testCase.wantHandled[index] {
					t.Fatalf("handled = %v, want %v", handled, testCase.wantHandled)
				}
			}
			if mapErrs != testCase.wantMapErrs {
				t.Fatalf("map errors = %d, want %d", mapErrs, testCase.wantMapErrs)
			}
		})
	}
}

func TestNewGotdSourceValidation(t *testing.T) {
	t.Parallel()

	stream := staticStream{updates: make(chan any)}
	if _, err := NewGotdSource(nil, stream, stringMapper{}, nil); err == nil {
		t.Fatal("expected nil client error")
	}
	if _, err := NewGotdSource(passthroughSession{}, nil, stringMapper{}, nil); err == nil {
		t.Fatal("expected nil stream error")
	}
	if _, err := NewGotdSource(passthroughSession{}, stream, nil, nil); err == nil {
		t.Fatal("expected nil mapper error")
	}
}

type passthroughSession struct{}

func (passthroughSession) Run(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type staticStream struct {
	updates chan any
}

func (s staticStream) Updates(context.Context) (<-chan any, error) {
	return s.updates, nil
}

// stringMapper accepts string ids, skipping "skip", failing "fail" and
// panicking on "panic".
type stringMapper struct{}

func (stringMapper) Map(_ context.Context, raw any) (Update, bool, error) {
	switch id := raw.(string); id {
	case "skip":
		return Update{}, false, nil
	case "fail":
		return Update{}, false, errors.New("unmappable")
	case "panic":
		panic("mapper bug")
	default:
		return Update{ID: id, Type: UpdateTypeMessage}, true, nil
	}
}
