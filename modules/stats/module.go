// Package stats logs addressed messages and reports per-user activity.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"errand-bot/pkg/errand"
)

const (
	commandName = "stats"

	chatKeyword = "chat"
	noneKeyword = "none"
)

// Module is both the stats command and the kernel's inbound recorder.
type Module struct {
	dispatcher   errand.SinkDispatcher
	catalog      errand.CommandCatalog
	interactions errand.Collection[errand.Interaction]
	todos        errand.Collection[errand.Todo]
	reminders    errand.Collection[errand.Reminder]
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a stats module.
func New() *Module {
	return &Module{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "stats"
}

// Spec declares the stats command.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "stats-command-handler",
					Description: "summarizes the caller's interactions, todos and reminders",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						errand.ServiceCommandCatalog,
						errand.CollectionService(errand.CollectionInteractions),
						errand.CollectionService(errand.CollectionTodos),
						errand.CollectionService(errand.CollectionReminders),
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("stats-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{Name: commandName, Description: "see your ledger"},
		},
	}
}

// OnRegister resolves dependencies and registers the module as the inbound recorder.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	services := runtime.Services()
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](services, errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("stats resolve sink dispatcher: %w", err)
	}
	catalog, err := errand.ResolveAs[errand.CommandCatalog](services, errand.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("stats resolve command catalog: %w", err)
	}
	interactions, err := errand.ResolveCollection[errand.Interaction](services, errand.CollectionInteractions)
	if err != nil {
		return fmt.Errorf("stats resolve interactions: %w", err)
	}
	todos, err := errand.ResolveCollection[errand.Todo](services, errand.CollectionTodos)
	if err != nil {
		return fmt.Errorf("stats resolve todos: %w", err)
	}
	reminders, err := errand.ResolveCollection[errand.Reminder](services, errand.CollectionReminders)
	if err != nil {
		return fmt.Errorf("stats resolve reminders: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](services, errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("stats resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.catalog = catalog
	m.interactions = interactions
	m.todos = todos
	m.reminders = reminders

	if err := services.Register(errand.ServiceInboundRecorder, m); err != nil {
		return fmt.Errorf("stats register inbound recorder: %w", err)
	}

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

// RecordInbound appends one interaction for an addressed message.
func (m *Module) RecordInbound(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Message == nil {
		return nil
	}

	err := m.interactions.Append(ctx, errand.Interaction{
		UserID:    event.Actor.ID,
		Text:      event.Message.Text,
		Timestamp: m.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("stats record inbound: %w", err)
	}

	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *errand.Event) error {
	if event == nil || event.Command == nil || event.Command.Name != commandName {
		return nil
	}

	ledger, err := m.ledgerFor(ctx, event.Actor.ID)
	if err != nil {
		return err
	}

	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("stats derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target, Text: ledger.render()}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("stats send reply: %w", err)
	}

	return nil
}

type ledger struct {
	interactions   int
	topKeyword     string
	todosCompleted int
	remindersSet   int
}

func (l ledger) render() string {
	return fmt.Sprintf(
		"📊 Your ledger shows:\n"+
			"• Commands issued: %d\n"+
			"• Most frequent request: %s\n"+
			"• Tasks completed: %d\n"+
			"• Reminders set: %d\n\n"+
			"Quite the productive one, you are!",
		l.interactions,
		l.topKeyword,
		l.todosCompleted,
		l.remindersSet,
	)
}

// ledgerFor rescans the collections for userID.
func (m *Module) ledgerFor(ctx context.Context, userID string) (ledger, error) {
	interactions, err := m.interactions.Load(ctx)
	if err != nil {
		return ledger{}, fmt.Errorf("stats load interactions: %w", err)
	}
	todos, err := m.todos.Load(ctx)
	if err != nil {
		return ledger{}, fmt.Errorf("stats load todos: %w", err)
	}
	reminders, err := m.reminders.Load(ctx)
	if err != nil {
		return ledger{}, fmt.Errorf("stats load reminders: %w", err)
	}
	registered, err := m.catalog.ListCommands(ctx)
	if err != nil {
		return ledger{}, fmt.Errorf("stats list commands: %w", err)
	}

	texts := make([]string, 0)
	for _, interaction := range interactions {
		if interaction.UserID == userID {
			texts = append(texts, interaction.Text)
		}
	}

	result := ledger{
		interactions: len(texts),
		topKeyword:   mostFrequentKeyword(texts, keywordSpecs(registered)),
	}
	for _, todo := range todos {
		if todo.UserID == userID && todo.Done {
			result.todosCompleted++
		}
	}
	for _, reminder := range reminders {
		if reminder.UserID == userID {
			result.remindersSet++
		}
	}

	return result, nil
}

func keywordSpecs(registered []errand.RegisteredCommand) []errand.CommandSpec {
	specs := make([]errand.CommandSpec, 0, len(registered))
	for _, spec := range errand.CommandSpecs(registered) {
		if spec.EffectiveTier() == errand.CommandTierKeyword {
			specs = append(specs, spec)
		}
	}

	return specs
}

// mostFrequentKeyword classifies each text with the command matcher. Texts
// naming no keyword count as "chat". Ties go to the keyword seen first.
func mostFrequentKeyword(texts []string, specs []errand.CommandSpec) string {
	if len(texts) == 0 {
		return noneKeyword
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, text := range texts {
		keyword := chatKeyword
		if match, ok := errand.MatchCommand(text, specs); ok {
			keyword = errand.NormalizeCommandName(match.Spec.Name)
		}
		if _, seen := counts[keyword]; !seen {
			order = append(order, keyword)
		}
		counts[keyword]++
	}

	best := order[0]
	for _, keyword := range order[1:] {
		if counts[keyword] > counts[best] {
			best = keyword
		}
	}

	return best
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
	_ errand.InboundRecorder = (*Module)(nil)
)
