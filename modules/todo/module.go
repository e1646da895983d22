// Package todo keeps a per-user task list driven by the "todo" command.
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"errand-bot/pkg/errand"
)

const commandName = "todo"

var (
	priorityPattern = regexp.MustCompile(`(?i)!(high|medium|low)\b`)
	categoryPattern = regexp.MustCompile(`#(\w+)`)
)

// Module serves todo add, todo done and todo list.
type Module struct {
	dispatcher errand.SinkDispatcher
	todos      errand.Collection[errand.Todo]
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a todo module.
func New() *Module {
	return &Module{
		logger: slog.Default(),
		now:    time.Now,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "todo"
}

// Spec declares the todo command.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "todo-command-handler",
					Description: "adds, completes and lists the caller's todos",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						errand.CollectionService(errand.CollectionTodos),
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("todo-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{
				Name:        commandName,
				Usage:       "add <task> [!high|!medium|!low] [#category] | list | done <id>",
				Description: "keep track of your tasks",
			},
		},
	}
}

// OnRegister resolves the dispatcher, the todo collection and the logger.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](runtime.Services(), errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("todo resolve sink dispatcher: %w", err)
	}
	todos, err := errand.ResolveCollection[errand.Todo](runtime.Services(), errand.CollectionTodos)
	if err != nil {
		return fmt.Errorf("todo resolve collection: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](runtime.Services(), errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("todo resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.todos = todos

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

	subcommand, rest := splitSubcommand(event.Command.Value)
	var (
		text string
		err  error
	)
	switch subcommand {
	case "add":
		text, err = m.add(ctx, event.Actor.ID, rest)
	case "done":
		text, err = m.done(ctx, event.Actor.ID, rest)
	case "list":
		text, err = m.list(ctx, event.Actor.ID)
	default:
		text = usageText
	}
	if err != nil {
		return err
	}

	return m.reply(ctx, event, text)
}

const usageText = "I keep your errands in order! Try:\n" +
	"• todo add <task> !high #work\n" +
	"• todo list\n" +
	"• todo done <ID>"

func (m *Module) add(ctx context.Context, userID, input string) (string, error) {
	todo, ok := parseTodo(input)
	if !ok {
		return "Forgive me, I didn't quite catch which task to write down!", nil
	}
	todo.UserID = userID
	todo.Created = m.now().UTC()

	err := m.todos.Update(ctx, func(todos []errand.Todo) ([]errand.Todo, error) {
		todo.ID = nextTodoID(todos, todo.Created)
		return append(todos, todo), nil
	})
	if err != nil {
		return "", fmt.Errorf("todo add: %w", err)
	}
	m.logger.DebugContext(ctx, "todo added", "todo_id", todo.ID, "user_id", userID)

	return fmt.Sprintf(
		"Right away! Noted under your %s todos with %s priority: %s ✅",
		todo.Category,
		todo.Priority,
		todo.Task,
	), nil
}

func (m *Module) done(ctx context.Context, userID, input string) (string, error) {
	id := strings.TrimSpace(input)
	if fields := strings.Fields(id); len(fields) > 0 {
		id = fields[0]
	}
	if id == "" {
		return "Which task have you finished? Give me its ID from `todo list`.", nil
	}

	var task string
	err := m.todos.Update(ctx, func(todos []errand.Todo) ([]errand.Todo, error) {
		for index := range todos {
			if todos[index].ID != id || todos[index].UserID != userID {
				continue
			}
			todos[index].Complete(m.now())
			task = todos[index].Task
			return todos, nil
		}
		return nil, errand.ErrRecordNotFound
	})
	switch {
	case errors.Is(err, errand.ErrRecordNotFound):
		return "So sorry, I couldn't find that task on your list.", nil
	case err != nil:
		return "", fmt.Errorf("todo done %s: %w", id, err)
	}

	return fmt.Sprintf("Splendid work! %q is ticked off. 🎉", task), nil
}

func (m *Module) list(ctx context.Context, userID string) (string, error) {
	todos, err := m.todos.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("todo list: %w", err)
	}

	return renderOpenTodos(todos, userID), nil
}

func (m *Module) reply(ctx context.Context, event *errand.Event, text string) error {
	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("todo derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target, Text: text}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("todo send reply: %w", err)
	}

	return nil
}

// parseTodo extracts priority and category tags from input.
// ok is false when no task text remains.
func parseTodo(input string) (errand.Todo, bool) {
	todo := errand.Todo{
		Priority: errand.PriorityMedium,
		Category: errand.DefaultTodoCategory,
	}
	if match := priorityPattern.FindStringSubmatch(input); match != nil {
		if priority, err := errand.ParsePriority(match[1]); err == nil {
			todo.Priority = priority
		}
	}
	if match := categoryPattern.FindStringSubmatch(input); match != nil {
		todo.Category = match[1]
	}

	task := priorityPattern.ReplaceAllString(input, "")
	task = categoryPattern.ReplaceAllString(task, "")
	todo.Task = strings.Join(strings.Fields(task), " ")

	return todo, todo.Task != ""
}

// nextTodoID returns the creation time in unix milliseconds, bumped until no
// existing todo uses it.
func nextTodoID(todos []errand.Todo, created time.Time) string {
	taken := make(map[string]struct{}, len(todos))
	for _, todo := range todos {
		taken[todo.ID] = struct{}{}
	}

	candidate := created.UnixMilli()
	for {
		id := strconv.FormatInt(candidate, 10)
		if _, exists := taken[id]; !exists {
			return id
		}
		candidate++
	}
}

func renderOpenTodos(todos []errand.Todo, userID string) string {
	order := make([]string, 0)
	grouped := make(map[string][]string)
	for _, todo := range todos {
		if todo.UserID != userID || todo.Done {
			continue
		}
		if _, seen := grouped[todo.Category]; !seen {
			order = append(order, todo.Category)
		}
		grouped[todo.Category] = append(
			grouped[todo.Category],
			fmt.Sprintf("• [%s] %s (ID: %s)", todo.Priority, todo.Task, todo.ID),
		)
	}
	if len(order) == 0 {
		return "Not a single task outstanding. Free as a bird! 🎉"
	}

	var builder strings.Builder
	builder.WriteString("Here is everything still on your plate:\n")
	for _, category := range order {
		builder.WriteString("\n*")
		builder.WriteString(category)
		builder.WriteString("*:\n")
		builder.WriteString(strings.Join(grouped[category], "\n"))
		builder.WriteString("\n")
	}
	builder.WriteString("\nFinished one? Say `todo done <ID>`.")

	return builder.String()
}

func splitSubcommand(value string) (string, string) {
	value = strings.TrimSpace(value)
	head, rest, _ := strings.Cut(value, " ")

	return strings.ToLower(head), strings.TrimSpace(rest)
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
