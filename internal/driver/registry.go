// Package driver builds configured platform drivers and routes outbound
// requests to the sink that owns the target conversation.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"errand-bot/pkg/errand"
)

// Definition is one entry of the "drivers" config list.
type Definition struct {
	// Name identifies the instance; it becomes the sink id.
	Name string
	// Type selects the builder, for example "telegram".
	Type    string
	Enabled bool
	// Config is handed to the builder as raw JSON.
	Config []byte
}

// Runtime is one built driver instance and the sink that writes back through it.
type Runtime struct {
	Source         errand.SinkRef
	Driver         errand.Driver
	SinkDispatcher errand.SinkDispatcher
}

// BuilderFunc builds the runtime for one enabled definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor registers a driver type.
type Descriptor struct {
	Type     string
	Platform errand.Platform
	Builder  BuilderFunc
}

// Registry knows how to build each supported driver type.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry validates descriptors and indexes them by type.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	index := make(map[string]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		var problem string
		switch {
		case descriptor.Type == "":
			problem = "empty type"
		case descriptor.Platform == "":
			problem = "empty platform"
		case descriptor.Builder == nil:
			problem = "nil builder"
		}
		if _, taken := index[descriptor.Type]; taken && problem == "" {
			problem = "duplicate type"
		}
		if problem != "" {
			return nil, fmt.Errorf("new driver registry: descriptor %q: %s", descriptor.Type, problem)
		}
		index[descriptor.Type] = descriptor
	}

	return &Registry{descriptors: index}, nil
}

// Types lists the registered driver types alphabetically.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return slices.Sorted(maps.Keys(r.descriptors))
}

// PlatformForType reports which platform a driver type serves.
func (r *Registry) PlatformForType(driverType string) (errand.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("platform for type %s: nil registry", driverType)
	}
	descriptor, ok := r.descriptors[driverType]
	if !ok {
		return "", fmt.Errorf("unsupported type %s", driverType)
	}

	return descriptor.Platform, nil
}

// BuildEnabled builds every enabled definition in config order. Names must be
// unique since they double as sink ids.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	var runtimes []Runtime
	names := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" || names[definition.Name] {
			return nil, fmt.Errorf("build driver %q: name must be unique and non-empty", definition.Name)
		}
		names[definition.Name] = true

		runtime, err := r.build(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

// build fills in the sink identity a builder left blank.
func (r *Registry) build(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	descriptor, ok := r.descriptors[definition.Type]
	if !ok {
		return Runtime{}, fmt.Errorf("unsupported type %q", definition.Type)
	}

	runtime, err := descriptor.Builder(ctx, definition, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("type %s: %w", definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("type %s: builder returned no driver", definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}

	return runtime, nil
}
