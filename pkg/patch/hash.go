package patch

// HashOp identifies the variant of a HashPatch.
type HashOp uint8

const (
	// HashInsert stores Value under Key, replacing any previous value.
	HashInsert HashOp = iota
	// HashRemove deletes the entry stored under Key.
	HashRemove
)

// HashPatch is one incremental change to a key-value mapping. Unlike keyed
// list patches there is no ordering to preserve, so insert and remove are
// the only variants.
type HashPatch[K comparable, V any] struct {
	Op    HashOp
	Key   K
	Value V
}

// HInsert returns a patch storing v under key.
func HInsert[K comparable, V any](key K, v V) HashPatch[K, V] {
	return HashPatch[K, V]{Op: HashInsert, Key: key, Value: v}
}

// HRemove returns a patch deleting the entry under key.
func HRemove[K comparable, V any](key K) HashPatch[K, V] {
	return HashPatch[K, V]{Op: HashRemove, Key: key}
}

// ApplyHash mutates m according to p and returns the displaced value, if
// any. Removing an absent key is a no-op.
func ApplyHash[K comparable, V any](m map[K]V, p HashPatch[K, V]) (V, bool) {
	switch p.Op {
	case HashInsert:
		old, ok := m[p.Key]
		m[p.Key] = p.Value
		return old, ok
	case HashRemove:
		old, ok := m[p.Key]
		delete(m, p.Key)
		return old, ok
	}
	var zero V
	return zero, false
}

// MapHash rebinds the patch value type.
func MapHash[K comparable, V, X any](p HashPatch[K, V], f func(V) X) HashPatch[K, X] {
	out := HashPatch[K, X]{Op: p.Op, Key: p.Key}
	if p.Op == HashInsert {
		out.Value = f(p.Value)
	}
	return out
}
