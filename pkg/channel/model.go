package channel

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/patch"
)

// Model is a shared mutable cell that emits every new value to derived
// streams. Unlike a plain channel, a stream derived with Observe
// synchronously yields the current value before subsequent updates, so a
// late observer never starts stale.
//
// A Model may be shared across tasks via its handle; each mutation is
// serialized through the backing channel, so concurrent Set calls are
// linearized into the emission order observers see.
type Model[T any] struct {
	mu    sync.Mutex
	value T
	hub   *hub[T]
}

// NewModel creates a model holding initial.
func NewModel[T any](initial T) *Model[T] {
	h := &hub[T]{
		capacity: DefaultCapacity,
		closed:   make(chan struct{}),
		replay:   true,
		last:     initial,
		hasLast:  true,
	}
	return &Model[T]{value: initial, hub: h}
}

// Get returns the current value.
func (m *Model[T]) Get() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}

// Set stores v and emits it to every observer. It suspends while an
// observer's queue is full; a model with no observers simply stores the
// value.
func (m *Model[T]) Set(ctx context.Context, v T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	if err := m.hub.send(ctx, v); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		return err
	}
	return nil
}

// Update applies f to the current value, stores the result and emits it.
func (m *Model[T]) Update(ctx context.Context, f func(T) T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = f(m.value)
	if err := m.hub.send(ctx, m.value); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		return err
	}
	return nil
}

// Observe derives a stream of values, starting with the current one.
func (m *Model[T]) Observe() *Stream[T] {
	return m.hub.subscribe()
}

// ListPatchModel is an ordered sequence whose mutations are expressed as
// list patches. Every applied patch is emitted verbatim to observers; a new
// observer first receives a single synthetic Splice carrying the current
// contents, so replaying its stream reconstructs the sequence exactly.
type ListPatchModel[T any] struct {
	mu    sync.Mutex
	items []T
	hub   *hub[patch.ListPatch[T]]
}

// NewListPatchModel creates an empty list model.
func NewListPatchModel[T any]() *ListPatchModel[T] {
	return &ListPatchModel[T]{
		hub: &hub[patch.ListPatch[T]]{
			capacity: DefaultCapacity,
			closed:   make(chan struct{}),
		},
	}
}

// Items returns a copy of the current contents.
func (m *ListPatchModel[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]T, len(m.items))
	copy(items, m.items)
	return items
}

// Len returns the current item count.
func (m *ListPatchModel[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Patch applies p to the model and emits it to observers. An invalid index
// returns *errors.IndexError and emits nothing.
func (m *ListPatchModel[T]) Patch(ctx context.Context, p patch.ListPatch[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := patch.Apply(&m.items, p); err != nil {
		return err
	}
	if err := m.hub.send(ctx, p); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		return err
	}
	return nil
}

// Observe derives a stream of patches. The first value is a Splice of the
// current contents into an empty list.
func (m *ListPatchModel[T]) Observe() *Stream[patch.ListPatch[T]] {
	// Holding sendMu keeps a concurrent Patch from slipping between the
	// subscription and the preloaded snapshot.
	m.hub.sendMu.Lock()
	defer m.hub.sendMu.Unlock()
	m.mu.Lock()
	items := make([]T, len(m.items))
	copy(items, m.items)
	m.mu.Unlock()
	s := m.hub.subscribe()
	if len(items) > 0 {
		s.ch <- patch.Splice(0, 0, items...)
	}
	return s
}

// HashPatchModel is a key-value mapping with unique keys whose mutations are
// expressed as hash patches, each emitted verbatim to observers. A new
// observer first receives one insert patch per current entry.
type HashPatchModel[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	hub     *hub[patch.HashPatch[K, V]]
}

// NewHashPatchModel creates an empty hash model.
func NewHashPatchModel[K comparable, V any]() *HashPatchModel[K, V] {
	return &HashPatchModel[K, V]{
		entries: make(map[K]V),
		hub: &hub[patch.HashPatch[K, V]]{
			capacity: DefaultCapacity,
			closed:   make(chan struct{}),
		},
	}
}

// Get returns the value stored under key.
func (m *HashPatchModel[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

// Len returns the current entry count.
func (m *HashPatchModel[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Patch applies p to the model and emits it to observers.
func (m *HashPatchModel[K, V]) Patch(ctx context.Context, p patch.HashPatch[K, V]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	patch.ApplyHash(m.entries, p)
	if err := m.hub.send(ctx, p); err != nil && !stderrors.Is(err, errors.ErrClosed) {
		return err
	}
	return nil
}

// Observe derives a stream of patches, preceded by one insert per current
// entry. Iteration order of the preloaded inserts is unspecified.
func (m *HashPatchModel[K, V]) Observe() *Stream[patch.HashPatch[K, V]] {
	m.hub.sendMu.Lock()
	defer m.hub.sendMu.Unlock()
	m.mu.Lock()
	preload := make([]patch.HashPatch[K, V], 0, len(m.entries))
	for k, v := range m.entries {
		preload = append(preload, patch.HInsert(k, v))
	}
	m.mu.Unlock()
	s := m.hub.subscribe()
	for _, p := range preload {
		select {
		case s.ch <- p:
		default:
			// Preload exceeding the queue is dropped; observers of very
			// large maps should read promptly or snapshot separately.
		}
	}
	return s
}
