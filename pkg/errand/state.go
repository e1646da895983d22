package errand

import (
	"context"
	"errors"
)

// ErrNoChange may be returned by a Collection.Update mutation to skip the write.
var ErrNoChange = errors.New("errand: no change")

// Collection is serialized read-modify-write access to one persisted record list.
//
// Update runs fn while holding the collection lock, so two updates of the same
// collection never interleave. Returning ErrNoChange from fn leaves the stored
// records untouched; any other error aborts the update.
type Collection[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Update(ctx context.Context, fn func([]T) ([]T, error)) error
	Append(ctx context.Context, records ...T) error
}

// CollectionService returns the service registry key of one collection.
func CollectionService(name string) string {
	return "errand.collection." + name
}

// ResolveCollection resolves the collection registered for name.
func ResolveCollection[T any](registry ServiceRegistry, name string) (Collection[T], error) {
	return ResolveAs[Collection[T]](registry, CollectionService(name))
}
