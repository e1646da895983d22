package errand

import "fmt"

// ServiceLogger names the process *slog.Logger. Modules treat it as optional.
const ServiceLogger = "logger"

// ServiceRegistry is the set of named singletons modules look up in
// OnRegister: sink dispatcher, logger, collections and lookup collaborators.
type ServiceRegistry interface {
	Register(name string, service any) error
	Resolve(name string) (any, error)
}

// ResolveAs looks up name and asserts it to T. A missing name keeps
// ErrServiceNotFound in the chain so callers can treat it as optional.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var typed T
	service, err := registry.Resolve(name)
	if err != nil {
		return typed, fmt.Errorf("resolve service %s: %w", name, err)
	}
	typed, ok := service.(T)
	if !ok {
		return typed, fmt.Errorf("resolve service %s: registered %T is not %T", name, service, typed)
	}

	return typed, nil
}
