package kernel

import (
	"context"
	"fmt"

	"errand-bot/pkg/errand"
)

const derivedCommandSuffix = "#command"

type commandRegistration struct {
	moduleName string
	spec       errand.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs.
// Registration order is kept because it breaks ties between keyword matches.
func (k *Kernel) registerModuleCommands(
	_ context.Context,
	moduleName string,
	commands []errand.CommandSpec,
) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]errand.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command.Name = errand.NormalizeCommandName(command.Name)
		command.Tier = command.EffectiveTier()
		if _, exists := seenInModule[command.Name]; exists {
			return fmt.Errorf("register command %s for module %s: duplicate declaration", command.Name, moduleName)
		}
		seenInModule[command.Name] = struct{}{}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		if existing, exists := k.commands[command.Name]; exists {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				command.Name,
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range normalized {
		k.commands[command.Name] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
		k.commandOrder = append(k.commandOrder, command.Name)
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
			k.commandOrder = removeOrderedName(k.commandOrder, key)
		}
	}
}

// newDriverEventSink creates the source-event sink wrapped with command derivation.
func (k *Kernel) newDriverEventSink() errand.EventSink {
	return &commandDerivingSink{
		base: k.bus,
		commandSpecs: func() []errand.CommandSpec {
			return errand.CommandSpecs(k.registeredCommands())
		},
		serviceLookup: k.services,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingSink publishes source events and derives command events.
type commandDerivingSink struct {
	base          errand.EventSink
	commandSpecs  func() []errand.CommandSpec
	serviceLookup errand.ServiceRegistry
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and, for addressed messages, records the
// interaction and derives exactly one command event.
func (s *commandDerivingSink) Publish(ctx context.Context, event *errand.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	if event.Kind != errand.EventKindMessageCreated || event.Message == nil || !event.Message.Addressed {
		return nil
	}
	if event.Actor.IsBot {
		return nil
	}

	s.recordInbound(ctx, event)

	var specs []errand.CommandSpec
	if s.commandSpecs != nil {
		specs = s.commandSpecs()
	}
	match, matched := errand.MatchCommand(event.Message.Text, specs)
	if !matched {
		return nil
	}
	invocation, err := errand.NewCommandInvocation(match, event)
	if err != nil {
		s.reportAsyncError(ctx, "derive command", err)
		return nil
	}

	if err := s.base.Publish(ctx, derivedCommandEvent(event, invocation)); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

// recordInbound appends the interaction log entry when a recorder is registered.
func (s *commandDerivingSink) recordInbound(ctx context.Context, event *errand.Event) {
	if s.serviceLookup == nil {
		return
	}
	recorder, err := errand.ResolveAs[errand.InboundRecorder](s.serviceLookup, errand.ServiceInboundRecorder)
	if err != nil {
		return
	}
	if err := recorder.RecordInbound(ctx, event); err != nil {
		s.reportAsyncError(ctx, "record inbound", err)
	}
}

func (s *commandDerivingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

func derivedCommandEvent(sourceEvent *errand.Event, invocation errand.CommandInvocation) *errand.Event {
	message := *sourceEvent.Message

	return &errand.Event{
		ID:           sourceEvent.ID + derivedCommandSuffix,
		Kind:         errand.EventKindCommandReceived,
		OccurredAt:   sourceEvent.OccurredAt,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

// withCommandFailureReply answers the originating message once when a
// command handler returns an error, then hands the error back to the bus.
func (k *Kernel) withCommandFailureReply(moduleName string, handler errand.EventHandler) errand.EventHandler {
	return func(ctx context.Context, event *errand.Event) error {
		handlerErr := handler(ctx, event)
		if handlerErr == nil || event == nil || event.Command == nil {
			return handlerErr
		}

		dispatcher, err := errand.ResolveAs[errand.SinkDispatcher](k.services, errand.ServiceSinkDispatcher)
		if err != nil {
			k.cfg.onAsyncError(ctx, "command failure reply resolve dispatcher", err)
			return handlerErr
		}
		target, err := errand.OutboundTargetFromEvent(event)
		if err != nil {
			k.cfg.onAsyncError(ctx, "command failure reply derive target", err)
			return handlerErr
		}
		request := errand.SendMessageRequest{
			Target: target,
			Text:   k.cfg.failureReply,
		}
		if event.Message != nil {
			request.ReplyToMessageID = event.Message.ID
		}
		if _, err := dispatcher.SendMessage(context.WithoutCancel(ctx), request); err != nil {
			k.cfg.onAsyncError(ctx, "command failure reply send", err)
		}

		return fmt.Errorf("module %s command %s: %w", moduleName, event.Command.Name, handlerErr)
	}
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}

func removeOrderedName(ordered []string, target string) []string {
	filtered := make([]string, 0, len(ordered))
	for _, item := range ordered {
		if item != target {
			filtered = append(filtered, item)
		}
	}

	return filtered
}
