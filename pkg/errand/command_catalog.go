package errand

import "context"

// ServiceCommandCatalog names the kernel's CommandCatalog in the service registry.
const ServiceCommandCatalog = "errand.command_catalog"

// RegisteredCommand pairs a command with the module that owns it.
type RegisteredCommand struct {
	ModuleName string
	Command    CommandSpec
}

// CommandCatalog lists registered commands in registration order, which is
// also keyword matching order. Safe for concurrent use.
type CommandCatalog interface {
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}

// CommandSpecs drops the owning module names.
func CommandSpecs(commands []RegisteredCommand) []CommandSpec {
	specs := make([]CommandSpec, len(commands))
	for index := range commands {
		specs[index] = commands[index].Command
	}

	return specs
}
