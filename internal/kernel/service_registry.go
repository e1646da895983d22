package kernel

import (
	"fmt"
	"reflect"
	"sync"

	"errand-bot/pkg/errand"
)

// ServiceRegistry holds named singletons shared between cmd wiring and modules.
// A name is bound once; rebinding fails with errand.ErrServiceAlreadyRegistered.
type ServiceRegistry struct {
	mu     sync.RWMutex
	byName map[string]any
}

// NewServiceRegistry returns an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{byName: make(map[string]any)}
}

// Register binds service to name. Nil values, typed nil pointers included,
// are rejected so lookups never hand out an unusable service.
func (r *ServiceRegistry) Register(name string, service any) error {
	switch {
	case name == "":
		return fmt.Errorf("register service: empty name")
	case isNilService(service):
		return fmt.Errorf("register service %s: nil service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("register service %s: %w", name, errand.ErrServiceAlreadyRegistered)
	}
	r.byName[name] = service

	return nil
}

// Resolve returns the service bound to name or errand.ErrServiceNotFound.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	if name == "" {
		return nil, fmt.Errorf("resolve service: empty name")
	}

	r.mu.RLock()
	service, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resolve service %s: %w", name, errand.ErrServiceNotFound)
	}

	return service, nil
}

func isNilService(service any) bool {
	if service == nil {
		return true
	}
	switch value := reflect.ValueOf(service); value.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return value.IsNil()
	default:
		return false
	}
}
