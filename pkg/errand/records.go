package errand

import (
	"fmt"
	"strings"
	"time"
)

// Collection names used by the persisted store.
const (
	CollectionTodos        = "todos"
	CollectionReminders    = "reminders"
	CollectionTimers       = "timers"
	CollectionPolls        = "polls"
	CollectionInteractions = "interactions"
	CollectionActivity     = "activity"
)

// Collections lists every persisted collection name.
func Collections() []string {
	return []string{
		CollectionTodos,
		CollectionReminders,
		CollectionTimers,
		CollectionPolls,
		CollectionInteractions,
		CollectionActivity,
	}
}

// Priority ranks a todo.
type Priority string

const (
	// PriorityHigh is requested with !high.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default.
	PriorityMedium Priority = "medium"
	// PriorityLow is requested with !low.
	PriorityLow Priority = "low"
)

// ParsePriority maps a case-insensitive token to a priority.
func ParsePriority(value string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("parse priority %q: unsupported value", value)
	}
}

// DefaultTodoCategory groups todos added without a #category tag.
const DefaultTodoCategory = "general"

// Todo is one task owned by a single user.
type Todo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Task        string     `json:"task"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	Done        bool       `json:"done"`
	Created     time.Time  `json:"created"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Complete marks the todo done at the given instant.
func (t *Todo) Complete(at time.Time) {
	completedAt := at.UTC()
	t.Done = true
	t.CompletedAt = &completedAt
}

// Reminder is a one-off notification due at Time.
type Reminder struct {
	ID     string        `json:"id"`
	UserID string        `json:"userId"`
	Text   string        `json:"text"`
	Time   time.Time     `json:"time"`
	Sent   bool          `json:"sent"`
	Origin *Conversation `json:"origin,omitempty"`
	Sink   *SinkRef      `json:"sink,omitempty"`
}

// Due reports whether the reminder should fire at now.
func (r Reminder) Due(now time.Time) bool {
	return !r.Sent && !r.Time.After(now)
}

// Timer is a countdown that fires once at EndTime.
type Timer struct {
	ID       string        `json:"id"`
	UserID   string        `json:"userId"`
	Minutes  int           `json:"minutes"`
	EndTime  time.Time     `json:"endTime"`
	Notified bool          `json:"notified"`
	Origin   *Conversation `json:"origin,omitempty"`
	Sink     *SinkRef      `json:"sink,omitempty"`
}

// Due reports whether the timer should fire at now.
func (t Timer) Due(now time.Time) bool {
	return !t.Notified && !t.EndTime.After(now)
}

// Live reports whether the timer must stay in the persisted collection.
func (t Timer) Live(now time.Time) bool {
	return t.EndTime.After(now) || !t.Notified
}

// Poll is a single-choice vote. Votes[i] holds the user ids that picked Options[i].
type Poll struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	Votes     [][]string `json:"votes"`
	CreatorID string     `json:"creatorId"`
	Created   time.Time  `json:"created"`
}

// CastVote moves voterID to the option at index.
//
// The voter is removed from every option before being added to the chosen one,
// so a user holds at most one vote per poll. It reports false without changes
// when index is out of range.
func (p *Poll) CastVote(voterID string, index int) bool {
	if index < 0 || index >= len(p.Options) {
		return false
	}
	for len(p.Votes) < len(p.Options) {
		p.Votes = append(p.Votes, []string{})
	}

	for optionIndex, voters := range p.Votes {
		kept := voters[:0]
		for _, voter := range voters {
			if voter != voterID {
				kept = append(kept, voter)
			}
		}
		p.Votes[optionIndex] = kept
	}
	p.Votes[index] = append(p.Votes[index], voterID)

	return true
}

// Counts returns the number of votes per option.
func (p Poll) Counts() []int {
	counts := make([]int, len(p.Options))
	for index := range p.Options {
		if index < len(p.Votes) {
			counts[index] = len(p.Votes[index])
		}
	}

	return counts
}

// Interaction is one addressed inbound message, kept for stats.
type Interaction struct {
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityFingerprint is the last coding activity a notification was sent for.
type ActivityFingerprint struct {
	Project   string    `json:"project"`
	Language  string    `json:"language"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Same reports whether other describes the same project and language.
func (f ActivityFingerprint) Same(other ActivityFingerprint) bool {
	return f.Project == other.Project && f.Language == other.Language
}
