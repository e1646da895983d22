// Package help renders the command reference and answers small talk.
package help

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"errand-bot/pkg/errand"
)

const (
	helpCommandName = "help"
	chatCommandName = "chat"
)

// sectionTitles names help sections by the module that registered the commands.
var sectionTitles = map[string]string{
	"todo":     "Your Task Ledger",
	"reminder": "Time Keeping",
	"lookup":   "Knowledge from the Streets",
	"poll":     "Gathering Opinions",
	"stats":    "Your Records",
	"digest":   "The Morning Gazette",
}

// fillerLines answer addressed messages that name no command. %s is the caller.
var fillerLines = []string{
	"Good day, %s! Might I assist you? Just say `help`!",
	"At your service, %s! Though only an errand boy, I know plenty of tricks. Say `help` to see them!",
	"*Tugs gently at your sleeve* Pardon me, %s, might you need a hand? `help` is all you need say!",
	"*Adjusts cap nervously* Begging your pardon, %s, I've quite a repertoire! `help` will show you.",
	"Oh! %s! What fortunate timing! A quick `help` will tell you all I can do.",
	"*Straightens worn waistcoat* At your disposal, %s! Try `help` to see my services.",
	"*Polishes a battered pocket watch* Perfect timing, %s! Shall I show you around? Say `help`!",
	"Consider me your humble servant, %s! Say `help` and I shall prove my worth.",
}

// Module serves the help command and the chat fallback.
type Module struct {
	dispatcher     errand.SinkDispatcher
	commandCatalog errand.CommandCatalog
	pick           func(n int) int
}

// New creates a help module.
func New() *Module {
	return &Module{pick: rand.IntN}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares help as a secondary command and chat as the fallback.
func (m *Module) Spec() errand.ModuleSpec {
	return errand.ModuleSpec{
		Handlers: []errand.ModuleHandler{
			{
				Capability: errand.Capability{
					Name:        "help-command-handler",
					Description: "renders the command reference and small-talk replies",
					Interest: errand.InterestSet{
						Kinds:          []errand.EventKind{errand.EventKindCommandReceived},
						RequireCommand: true,
						CommandNames:   []string{helpCommandName, chatCommandName},
					},
					RequiredServices: []string{
						errand.ServiceSinkDispatcher,
						errand.ServiceCommandCatalog,
					},
				},
				Subscription: errand.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleCommand,
			},
		},
		Commands: []errand.CommandSpec{
			{
				Name:        helpCommandName,
				Tier:        errand.CommandTierSecondary,
				Description: "show everything I can do",
			},
			{
				Name:        chatCommandName,
				Tier:        errand.CommandTierFallback,
				Description: "small talk",
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime errand.ModuleRuntime) error {
	dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](
		runtime.Services(),
		errand.ServiceSinkDispatcher,
	)
	if err != nil {
		return fmt.Errorf("help resolve sink dispatcher: %w", err)
	}
	commandCatalog, err := errand.ResolveAs[errand.CommandCatalog](
		runtime.Services(),
		errand.ServiceCommandCatalog,
	)
	if err != nil {
		return fmt.Errorf("help resolve command catalog: %w", err)
	}

	m.dispatcher = dispatcher
	m.commandCatalog = commandCatalog

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

	var body string
	switch event.Command.Name {
	case helpCommandName:
		commands, err := m.commandCatalog.ListCommands(ctx)
		if err != nil {
			return fmt.Errorf("help list commands: %w", err)
		}
		body = renderHelp(event.Actor.Label(), commands)
	case chatCommandName:
		body = fmt.Sprintf(fillerLines[m.pick(len(fillerLines))], event.Actor.Label())
	default:
		return nil
	}

	target, err := errand.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help derive outbound target: %w", err)
	}
	request := errand.SendMessageRequest{Target: target, Text: body}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("help send %s message: %w", event.Command.Name, err)
	}

	return nil
}

// renderHelp lists keyword commands grouped by module in registration order.
func renderHelp(caller string, commands []errand.RegisteredCommand) string {
	order := make([]string, 0)
	sections := make(map[string][]string)
	for _, command := range commands {
		if command.Command.EffectiveTier() != errand.CommandTierKeyword {
			continue
		}
		moduleName := strings.TrimSpace(command.ModuleName)
		if _, seen := sections[moduleName]; !seen {
			order = append(order, moduleName)
		}
		sections[moduleName] = append(sections[moduleName], commandLine(command.Command))
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Please, %s, allow me to present my humble services:\n", caller)
	if len(order) == 0 {
		builder.WriteString("\n(none yet, I'm afraid)")
		return builder.String()
	}
	for _, moduleName := range order {
		builder.WriteString("\n*")
		builder.WriteString(sectionTitle(moduleName))
		builder.WriteString("*\n")
		builder.WriteString(strings.Join(sections[moduleName], "\n"))
		builder.WriteString("\n")
	}
	builder.WriteString("\nI aim to serve with the utmost efficiency! 🎩")

	return builder.String()
}

func commandLine(command errand.CommandSpec) string {
	label := errand.NormalizeCommandName(command.Name)
	if usage := strings.TrimSpace(command.Usage); usage != "" {
		label += " " + usage
	}
	line := "• `" + label + "`"
	if description := strings.TrimSpace(command.Description); description != "" {
		line += " - " + description
	}

	return line
}

func sectionTitle(moduleName string) string {
	if title, ok := sectionTitles[moduleName]; ok {
		return title
	}
	if moduleName == "" {
		return "Other"
	}

	return strings.ToUpper(moduleName[:1]) + moduleName[1:]
}

var (
	_ errand.Module          = (*Module)(nil)
	_ errand.ModuleRegistrar = (*Module)(nil)
)
