// Package lookup answers define, gif and search from read-only web sources.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"errand-bot/pkg/errand"
)

const (
	defineCommandName = "define"
	gifCommandName    = "gif"
	searchCommandName = "search"
)

// Service registry keys of the lookup collaborators.
const (
	ServiceDefiner      = "lookup.definer"
	ServiceGIFSearcher  = "lookup.gif_searcher"
	ServiceEncyclopedia = "lookup.encyclopedia"
)

// Definer returns the definition of one word. Unknown words fail with errand.ErrNoResult.
type Definer interface {
	Define(ctx context.Context, word string) (string, error)
}

// GIFSearcher finds one animated image URL for a query.
type GIFSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string) (string, error)
}

// Summary is an encyclopedia answer.
type Summary struct {
	Title   string
	Extract string
	Related []string
	URL     string
}

// Encyclopedia summarizes the best article for a query.
type Encyclopedia interface {
	Summarize(ctx context.Context, query string) (Summary, error)
}

const troubleReply = "Terribly sorry, I've run into a spot of trouble with my research. Could we try again in a moment? 🎩"

// Module serves the lookup commands.
type Module struct {
	dispatcher   errand.SinkDispatcher
	definer      Definer
	gifs         GIFSearcher
	encyclopedia Encyclopedia
	logger       *slog.Logger
}

// New creates a lookup module.
func New() *Module {
	return &Module{logger: slog.Default()}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "lookup"
}

// Spec declares the define, gif and search commands.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "lookup-command-handler",
					Description: "answers dictionary, gif and encyclopedia lookups",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{defineCommandName, gifCommandName, searchCommandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						ServiceDefiner,
						ServiceGIFSearcher,
						ServiceEncyclopedia,
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("lookup-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{Name: defineCommandName, Usage: "<word>", Description: "look a word up in the dictionary"},
			{Name: gifCommandName, Usage: "<query>", Description: "find a moving picture"},
			{Name: searchCommandName, Usage: "<query>", Description: "ask the encyclopedia"},
		},
	}
}

// OnRegister resolves the dispatcher and the lookup collaborators.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	services := runtime.Services()
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](services, errand.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("lookup resolve sink dispatcher: %w", err)
	}
	definer, err := errand.ResolveAs[Definer](services, ServiceDefiner)
	if err != nil {
		return fmt.Errorf("lookup resolve definer: %w", err)
	}
	gifs, err := errand.ResolveAs[GIFSearcher](services, ServiceGIFSearcher)
	if err != nil {
		return fmt.Errorf("lookup resolve gif searcher: %w", err)
	}
	encyclopedia, err := errand.ResolveAs[Encyclopedia](services, ServiceEncyclopedia)
	if err != nil {
		return fmt.Errorf("lookup resolve encyclopedia: %w", err)
	}
	logger, err := errand.ResolveAs[*slog.Logger](services, errand.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger.With("module", m.Name())
	case errors.Is(err, errand.ErrServiceNotFound):
	default:
		return fmt.Errorf("lookup resolve logger: %w", err)
	}

	m.dispatcher = dispatcher
	m.definer = definer
	m.gifs = gifs
	m.encyclopedia = encyclopedia

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
	if event == nil || event.Command == nil {
		return nil
	}
	query := strings.TrimSpace(event.Command.Value)

	var (
		text        string
		linkPreview = true
	)
	switch event.Command.Name {
	case defineCommandName:
		text = m.define(ctx, query)
	case gifCommandName:
		text = m.gif(ctx, query)
	case searchCommandName:
		text = m.search(ctx, query)
		linkPreview = false
	default:
		return nil
	}

	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("lookup derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{
		Target:             target,
		Text:               text,
		DisableLinkPreview: !linkPreview,
	}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("lookup send %s reply: %w", event.Command.Name, err)
	}

	return nil
}

func (m *Module) define(ctx context.Context, word string) string {
	if fields := strings.Fields(word); len(fields) > 0 {
		word = fields[0]
	}
	if word == "" {
		return "Which word shall I look up for you?"
	}

	definition, err := m.definer.Define(ctx, word)
	switch {
	case errors.Is(err, errand.ErrNoResult):
		return fmt.Sprintf("I've thumbed through every page, but %q isn't in my dictionary. Perhaps the schoolmaster could help?", word)
	case err != nil:
		m.logger.ErrorContext(ctx, "define lookup failed", "word", word, "error", err)
		return troubleReply
	}

	return fmt.Sprintf("*%s*, you ask? Why, that would be: %s", word, definition)
}

func (m *Module) gif(ctx context.Context, query string) string {
	if !m.gifs.Enabled() {
		return "I'm afraid my picture-finding abilities are rather limited at present."
	}
	if query == "" {
		return "What kind of moving picture would you like me to find?"
	}

	gifURL, err := m.gifs.Search(ctx, query)
	switch {
	case errors.Is(err, errand.ErrNoResult):
		return fmt.Sprintf("Couldn't find a moving picture of %q. Somebody must have pinched it!", query)
	case err != nil:
		m.logger.ErrorContext(ctx, "gif search failed", "query", query, "error", err)
		return troubleReply
	}

	return "Look what I found in my pocket! " + gifURL
}

func (m *Module) search(ctx context.Context, query string) string {
	if query == "" {
		return "What shall I search for?"
	}

	summary, err := m.encyclopedia.Summarize(ctx, query)
	switch {
	case errors.Is(err, errand.ErrNoResult):
		return fmt.Sprintf("I've searched high and low through every encyclopedia in town, but found nothing about %q.", query)
	case err != nil:
		m.logger.ErrorContext(ctx, "encyclopedia search failed", "query", query, "error", err)
		return troubleReply
	}

	return renderSummary(summary)
}

func renderSummary(summary Summary) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "📚 *%s*\n%s\n", summary.Title, summary.Extract)
	if len(summary.Related) > 0 {
		builder.WriteString("\n*Other findings you might fancy:*\n")
		for _, title := range summary.Related {
			builder.WriteString("• ")
			builder.WriteString(title)
			builder.WriteString("\n")
		}
	}
	builder.WriteString("\nSource: ")
	builder.WriteString(summary.URL)

	return builder.String()
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
