package errandtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"errand-bot/pkg/errand"

	"github.com/google/go-cmp/cmp"
)

func TestCollectionUpdateIsolatesAbortedMutations(t *testing.T) {
	t.Parallel()

	seed := errand.Poll{
		ID:        "p1",
		Question:  "Lunch?",
		Options:   []string{"soup", "pie"},
		Votes:     [][]string{{"7"}, {}},
		CreatorID: "7",
		Created:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name    string
		outcome error
	}{
		{name: "no change", outcome: errand.ErrNoChange},
		{name: "failure", outcome: errors.New("vote rejected")},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			polls := NewCollection(seed)
			err := polls.Update(context.Background(), func(records []errand.Poll) ([]errand.Poll, error) {
				records[0].CastVote("7", 1)
				records[0].Question = "Dinner?"
				return records, testCase.outcome
			})
			if errors.Is(testCase.outcome, errand.ErrNoChange) != (err == nil) {
				t.Fatalf("Update error = %v, outcome %v", err, testCase.outcome)
			}

			if diff := cmp.Diff([]errand.Poll{seed}, polls.Snapshot()); diff != "" {
				t.Fatalf("stored polls changed (-want +got):\n%s", diff)
			}
			if polls.Writes() != 0 {
				t.Fatalf("writes = %d, want 0", polls.Writes())
			}
		})
	}
}

func TestCollectionLoadReturnsCopies(t *testing.T) {
	t.Parallel()

	polls := NewCollection(errand.Poll{ID: "p1", Options: []string{"a"}, Votes: [][]string{{"1"}}})

	loaded, err := polls.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	loaded[0].Votes[0][0] = "2"

	if got := polls.Snapshot()[0].Votes[0][0]; got != "1" {
		t.Fatalf("stored voter = %q, want 1", got)
	}
	if empty := (&Collection[errand.Todo]{}).Snapshot(); empty == nil || len(empty) != 0 {
		t.Fatalf("zero collection snapshot = %#v, want empty slice", empty)
	}
}
