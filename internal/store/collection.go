package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"errand-bot/pkg/errand"
)

// Collection is a typed view over one named collection.
type Collection[T any] struct {
	store *Store
	name  string
}

// NewCollection binds a typed view to name.
func NewCollection[T any](store *Store, name string) (*Collection[T], error) {
	if store == nil {
		return nil, fmt.Errorf("new collection %s: nil store", name)
	}
	if err := validateName(name); err != nil {
		return nil, fmt.Errorf("new collection: %w", err)
	}

	return &Collection[T]{store: store, name: name}, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Load returns a snapshot of every record.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", c.name, err)
	}

	lock := c.store.lockFor(c.name)
	lock.Lock()
	defer lock.Unlock()

	records, _, err := c.decode()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", c.name, err)
	}

	return records, nil
}

// Update runs fn over the current records and persists what it returns.
//
// The collection stays locked for the whole call, so fn observes every
// earlier update and no other update interleaves with it. fn returning
// ErrNoChange skips the write; any other error aborts and is returned wrapped.
func (c *Collection[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	if fn == nil {
		return fmt.Errorf("update %s: nil mutation", c.name)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}

	lock := c.store.lockFor(c.name)
	lock.Lock()
	defer lock.Unlock()

	records, version, err := c.decode()
	if err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}

	updated, err := fn(records)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}
	if updated == nil {
		updated = []T{}
	}

	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("update %s: encode records: %w", c.name, err)
	}
	if err := c.store.write(c.name, envelope{Version: version + 1, Records: raw}); err != nil {
		return fmt.Errorf("update %s: %w", c.name, err)
	}

	return nil
}

// Append adds records at the end of the collection.
func (c *Collection[T]) Append(ctx context.Context, records ...T) error {
	if len(records) == 0 {
		return nil
	}

	return c.Update(ctx, func(existing []T) ([]T, error) {
		return append(existing, records...), nil
	})
}

// decode reads and unmarshals the records. Callers hold the collection lock.
func (c *Collection[T]) decode() ([]T, uint64, error) {
	doc, err := c.store.read(c.name)
	if err != nil {
		return nil, 0, err
	}

	records := make([]T, 0)
	if err := json.Unmarshal(doc.Records, &records); err != nil {
		return nil, 0, fmt.Errorf("decode %s records: %w", c.name, err)
	}

	return records, doc.Version, nil
}

var _ errand.Collection[errand.Todo] = (*Collection[errand.Todo])(nil)
