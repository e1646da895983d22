package kernel

import "sync"

// namedEntry is one value kept by an ordered registry.
type namedEntry[T any] struct {
	name  string
	value T
}

// orderedRegistry keeps named values in registration order.
// Startup walks it forward and shutdown walks it backward.
type orderedRegistry[T any] struct {
	mu      sync.RWMutex
	entries []namedEntry[T]
	index   map[string]int
}

func newOrderedRegistry[T any]() *orderedRegistry[T] {
	return &orderedRegistry[T]{index: make(map[string]int)}
}

// add appends value under name and reports false when name is taken.
func (r *orderedRegistry[T]) add(name string, value T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[name]; exists {
		return false
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, namedEntry[T]{name: name, value: value})

	return true
}

// remove drops name, keeping the order of the rest.
func (r *orderedRegistry[T]) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	position, exists := r.index[name]
	if !exists {
		return
	}
	r.entries = append(r.entries[:position], r.entries[position+1:]...)
	delete(r.index, name)
	for i := position; i < len(r.entries); i++ {
		r.index[r.entries[i].name] = i
	}
}

// snapshot copies the entries in registration order.
func (r *orderedRegistry[T]) snapshot() []namedEntry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]namedEntry[T](nil), r.entries...)
}

// reversed copies the entries newest first.
func (r *orderedRegistry[T]) reversed() []namedEntry[T] {
	entries := r.snapshot()
	for left, right := 0, len(entries)-1; left < right; left, right = left+1, right-1 {
		entries[left], entries[right] = entries[right], entries[left]
	}

	return entries
}
