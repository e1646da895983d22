package kernel

import (
	"context"
	"fmt"

	"errand-bot/pkg/errand"
)

// kernelCommandCatalog exposes kernel command registrations through ServiceRegistry.
type kernelCommandCatalog struct {
	kernel *Kernel
}

// ListCommands returns registered commands in registration order.
func (c *kernelCommandCatalog) ListCommands(ctx context.Context) ([]errand.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	if c == nil || c.kernel == nil {
		return nil, fmt.Errorf("list commands: nil catalog")
	}

	return c.kernel.registeredCommands(), nil
}

// registeredCommands snapshots the command table in registration order.
func (k *Kernel) registeredCommands() []errand.RegisteredCommand {
	k.mu.RLock()
	defer k.mu.RUnlock()

	commands := make([]errand.RegisteredCommand, 0, len(k.commandOrder))
	for _, key := range k.commandOrder {
		registration, exists := k.commands[key]
		if !exists {
			continue
		}
		commands = append(commands, errand.RegisteredCommand{
			ModuleName: registration.moduleName,
			Command:    registration.spec,
		})
	}

	return commands
}

var _ errand.CommandCatalog = (*kernelCommandCatalog)(nil)
