package patch

import (
	"github.com/go-loom/loom/pkg/errors"
)

// KeyOp identifies the variant of a KeyPatch.
type KeyOp uint8

const (
	// KeyInsert inserts Value under Key at position Index. If Key is
	// already present the existing item is replaced and moved instead, so
	// a Remove/Insert pair for one logical item stays idempotent under
	// reordering.
	KeyInsert KeyOp = iota
	// KeyRemove removes the item stored under Key.
	KeyRemove
	// KeyMove moves the item stored under Key to position To.
	KeyMove
	// KeyReplace swaps the value stored under Key for Value, in place.
	KeyReplace
	// KeyClear removes every item.
	KeyClear
)

func (op KeyOp) String() string {
	switch op {
	case KeyInsert:
		return "Insert"
	case KeyRemove:
		return "Remove"
	case KeyMove:
		return "Move"
	case KeyReplace:
		return "Replace"
	case KeyClear:
		return "Clear"
	default:
		return "invalid"
	}
}

// KeyPatch is one incremental change to a keyed ordered collection. Keys are
// stable identifiers chosen by the application, not positions.
type KeyPatch[K comparable, T any] struct {
	Op    KeyOp
	Key   K
	Index int
	To    int
	Value T
}

// KInsert returns a keyed patch inserting v under key at position i.
func KInsert[K comparable, T any](key K, i int, v T) KeyPatch[K, T] {
	return KeyPatch[K, T]{Op: KeyInsert, Key: key, Index: i, Value: v}
}

// KRemove returns a keyed patch removing the item under key.
func KRemove[K comparable, T any](key K) KeyPatch[K, T] {
	return KeyPatch[K, T]{Op: KeyRemove, Key: key}
}

// KMove returns a keyed patch moving the item under key to position to.
func KMove[K comparable, T any](key K, to int) KeyPatch[K, T] {
	return KeyPatch[K, T]{Op: KeyMove, Key: key, To: to}
}

// KReplace returns a keyed patch replacing the value under key.
func KReplace[K comparable, T any](key K, v T) KeyPatch[K, T] {
	return KeyPatch[K, T]{Op: KeyReplace, Key: key, Value: v}
}

// KClear returns a keyed patch removing every item.
func KClear[K comparable, T any]() KeyPatch[K, T] {
	return KeyPatch[K, T]{Op: KeyClear}
}

// MapKey rebinds the patch value type, preserving operation, key and
// positions.
func MapKey[K comparable, T, X any](p KeyPatch[K, T], f func(T) X) KeyPatch[K, X] {
	out := KeyPatch[K, X]{Op: p.Op, Key: p.Key, Index: p.Index, To: p.To}
	if p.Op == KeyInsert || p.Op == KeyReplace {
		out.Value = f(p.Value)
	}
	return out
}

// KeyedList is an ordered collection addressed by stable keys. It maintains
// a key-to-position index alongside the items so keyed patches resolve in
// O(1) amortized at the tail; an arbitrary-position move re-indexes the
// shifted range, O(n) worst case, which is acceptable for UI child counts.
type KeyedList[K comparable, T any] struct {
	keys  []K
	items []T
	index map[K]int
}

// NewKeyedList returns an empty keyed list.
func NewKeyedList[K comparable, T any]() *KeyedList[K, T] {
	return &KeyedList[K, T]{index: make(map[K]int)}
}

// Len returns the number of items.
func (l *KeyedList[K, T]) Len() int { return len(l.items) }

// At returns the item at position i.
func (l *KeyedList[K, T]) At(i int) T { return l.items[i] }

// Keys returns the keys in current order. The returned slice is a copy.
func (l *KeyedList[K, T]) Keys() []K {
	keys := make([]K, len(l.keys))
	copy(keys, l.keys)
	return keys
}

// Values returns the items in current order. The returned slice is a copy.
func (l *KeyedList[K, T]) Values() []T {
	items := make([]T, len(l.items))
	copy(items, l.items)
	return items
}

// Get returns the item stored under key.
func (l *KeyedList[K, T]) Get(key K) (T, bool) {
	if i, ok := l.index[key]; ok {
		return l.items[i], true
	}
	var zero T
	return zero, false
}

// reindex refreshes the key-to-position index for positions [from, to).
func (l *KeyedList[K, T]) reindex(from, to int) {
	if from < 0 {
		from = 0
	}
	if to > len(l.keys) {
		to = len(l.keys)
	}
	for i := from; i < to; i++ {
		l.index[l.keys[i]] = i
	}
}

func (l *KeyedList[K, T]) insertAt(i int, key K, v T) {
	l.keys = append(l.keys, *new(K))
	copy(l.keys[i+1:], l.keys[i:])
	l.keys[i] = key
	l.items = append(l.items, *new(T))
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = v
	l.reindex(i, len(l.keys))
}

func (l *KeyedList[K, T]) removeAt(i int) (K, T) {
	key, v := l.keys[i], l.items[i]
	l.keys = append(l.keys[:i], l.keys[i+1:]...)
	l.items = append(l.items[:i], l.items[i+1:]...)
	delete(l.index, key)
	l.reindex(i, len(l.keys))
	return key, v
}

// Apply mutates the list according to p and returns the removed items.
// An unknown key on Move or Replace, or an out-of-range position, is a
// *errors.IndexError: a logic bug upstream, fatal to the caller.
// Removing an absent key is a no-op, which is what makes keyed
// remove/insert pairs idempotent when patches arrive reordered.
func (l *KeyedList[K, T]) Apply(p KeyPatch[K, T]) ([]T, error) {
	n := len(l.items)
	switch p.Op {
	case KeyInsert:
		if cur, ok := l.index[p.Key]; ok {
			// Same logical item: replace the value and move it to the
			// requested position rather than duplicating the key. The
			// position is validated before anything is touched so a failed
			// patch leaves the list as it was.
			if p.Index < 0 || p.Index >= n {
				return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
			}
			removed := l.items[cur]
			l.items[cur] = p.Value
			if err := l.moveTo(cur, p.Index); err != nil {
				return nil, err
			}
			return []T{removed}, nil
		}
		if p.Index < 0 || p.Index > n {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		l.insertAt(p.Index, p.Key, p.Value)
		return nil, nil

	case KeyRemove:
		i, ok := l.index[p.Key]
		if !ok {
			return nil, nil
		}
		_, v := l.removeAt(i)
		return []T{v}, nil

	case KeyMove:
		i, ok := l.index[p.Key]
		if !ok {
			return nil, &errors.IndexError{Op: "Move", Index: -1, Key: p.Key, Len: n}
		}
		if err := l.moveTo(i, p.To); err != nil {
			return nil, err
		}
		return nil, nil

	case KeyReplace:
		i, ok := l.index[p.Key]
		if !ok {
			return nil, &errors.IndexError{Op: "Replace", Index: -1, Key: p.Key, Len: n}
		}
		removed := l.items[i]
		l.items[i] = p.Value
		return []T{removed}, nil

	case KeyClear:
		removed := l.items
		l.keys = nil
		l.items = nil
		l.index = make(map[K]int)
		return removed, nil

	default:
		return nil, &errors.IndexError{Op: "invalid", Index: -1, Len: n}
	}
}

func (l *KeyedList[K, T]) moveTo(from, to int) error {
	n := len(l.items)
	if to < 0 || to >= n {
		return &errors.IndexError{Op: "Move", Index: to, Len: n}
	}
	if from == to {
		return nil
	}
	key, v := l.keys[from], l.items[from]
	l.keys = append(l.keys[:from], l.keys[from+1:]...)
	l.items = append(l.items[:from], l.items[from+1:]...)
	l.keys = append(l.keys, *new(K))
	copy(l.keys[to+1:], l.keys[to:])
	l.keys[to] = key
	l.items = append(l.items, *new(T))
	copy(l.items[to+1:], l.items[to:])
	l.items[to] = v
	if from < to {
		l.reindex(from, to+1)
	} else {
		l.reindex(to, from+1)
	}
	return nil
}
