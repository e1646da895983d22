// Package poll runs single-choice polls voted on with inline buttons.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"errand-bot/pkg/errand"

	"github.com/google/uuid"
)

const (
	commandName  = "poll"
	actionPrefix = "vote:"
)

var defaultOptions = []string{"Yes", "No"}

// Module creates polls and applies votes.
type Module struct {
	dispatcher errand.SinkDispatcher
	polls      errand.Collection[errand.Poll]
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// New creates a poll module.
func New() *Module {
	return &Module{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "poll"
}

// Spec declares the poll command and the vote button handler.
func (m *Module) Spec() errand.ModuleSpec {
	required := []string{
		errand.ServiceSinkDispatcher,
		errand.CollectionService(errand.CollectionPolls),
	}

	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "poll-command-handler",
					Description: "posts a poll with one vote button per option",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: required,
				},
				Subscription: errand.NewDefaultSubscriptionSpec("poll-commands"),
				Handler:      m.handleCommand,
			},
			{
				Capability: errand.Capability{
					Name:        "poll-vote-handler",
					Description: "records votes and refreshes the poll message",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindActionTriggered},
						RequireAction:  true,
						ActionPrefixes: []string{actionPrefix},
					},
					RequiredServices: required,
				},
				// One worker keeps edits of the same poll message in vote order.
				Subscription: errand.SubscriptionSpec{Name: "poll-votes", Workers: 1},
				Handler:      m.handleVote,
			},
		},
		Commands: []errand.CommandSpec{
			{
				Name:        commandName,
				Usage:       "<question>? <option>, <option>, ...",
				Description: "ask the room",
			},
		},
	}
}

// OnRegister resolves the dispatcher, the poll collection and the logger.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](runtime.Services(), errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("poll resolve sink dispatcher: %w", err)
	}
	polls, err := errand.ResolveCollection[errand.Poll](runtime.Services(), errand.CollectionPolls)
	if err != nil {
		return fmt.Errorf("poll resolve collection: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](runtime.Services(), errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("poll resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.polls = polls

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Command == nil || event.Command.Name != commandName {
		return nil
	}
	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("poll derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}

	question, options := parsePoll(event.Command.Value)
	if question == "" {
		request.Text = "A poll needs a question! Try `poll Lunch? Pizza, Sushi`."
		if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
			return fmt.Errorf("poll send usage: %w", err)
		}
		return nil
	}

	poll := errand.Poll{
		ID:        m.newID(),
		Question:  question,
		Options:   options,
		Votes:     make([][]string, len(options)),
		CreatorID: event.Actor.ID,
		Created:   m.now().UTC(),
	}
	for index := range poll.Votes {
		poll.Votes[index] = []string{}
	}
	if err := m.polls.Append(ctx, poll); err != nil {
		return fmt.Errorf("poll create: %w", err)
	}

	request.Text = renderPoll(poll)
	request.Buttons = voteButtons(poll)
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("poll send %s: %w", poll.ID, err)
	}

	return nil
}

func (m *Module) handleVote(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Action == nil {
		return nil
	}
	pollID, index, ok := parseVoteAction(event.Action.Data)
	if !ok {
		return nil
	}

	var updated errand.Poll
	err := m.polls.Update(ctx, func(polls []errand.Poll) ([]errand.Poll, error) {
		for position := range polls {
			if polls[position].ID != pollID {
				continue
			}
			if !polls[position].CastVote(event.Actor.ID, index) {
				return nil, errand.ErrNoChange
			}
			updated = polls[position]
			return polls, nil
		}
		return nil, errand.ErrNoChange
	})
	if err != nil {
		return fmt.Errorf("poll vote %s: %w", pollID, err)
	}
	if updated.ID == "" {
		m.logger.DebugContext(ctx, "ignored vote", "poll_id", pollID, "option", index)
		return nil
	}

	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("poll derive edit target: %w", err)
	}
	err = m.dispatcher.EditMessage(ctx, errand.EditMessageRequest{
		Target:    target,
		MessageID: event.Action.MessageID,
		Text:      renderPoll(updated),
		Buttons:   voteButtons(updated),
	})
	if err != nil {
		return fmt.Errorf("poll refresh %s: %w", pollID, err)
	}

	return nil
}

// parsePoll splits "question? a, b" on the first "?". Options default to Yes/No.
func parsePoll(value string) (string, []string) {
	questionPart, optionPart, _ := strings.Cut(value, "?")
	question := strings.TrimSpace(questionPart)

	options := make([]string, 0)
	for _, option := range strings.Split(optionPart, ",") {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}
	if len(options) == 0 {
		options = append(options, defaultOptions...)
	}

	return question, options
}

func parseVoteAction(data string) (string, int, bool) {
	rest, ok := strings.CutPrefix(data, actionPrefix)
	if !ok {
		return "", 0, false
	}
	pollID, rawIndex, ok := strings.Cut(rest, ":")
	if !ok || pollID == "" {
		return "", 0, false
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		return "", 0, false
	}

	return pollID, index, true
}

func renderPoll(poll errand.Poll) string {
	var builder strings.Builder
	builder.WriteString("📊 *Poll:* ")
	builder.WriteString(poll.Question)
	builder.WriteString("?\n")
	for index, count := range poll.Counts() {
		noun := "votes"
		if count == 1 {
			noun = "vote"
		}
		fmt.Fprintf(&builder, "\n%d. %s (%d %s)", index+1, poll.Options[index], count, noun)
	}

	return builder.String()
}

func voteButtons(poll errand.Poll) [][]errand.InlineButton {
	rows := make([][]errand.InlineButton, 0, len(poll.Options))
	for index, option := range poll.Options {
		rows = append(rows, []errand.InlineButton{{
			Label:  fmt.Sprintf("%d. %s", index+1, option),
			Action: actionPrefix + poll.ID + ":" + strconv.Itoa(index),
		}})
	}

	return rows
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
