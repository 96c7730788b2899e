// Package patch describes incremental, order-preserving mutations to
// collections. Once a collection is attached to a view, patches are the only
// legal mutation path: applying a patch sequence to the live child-view list
// and to the plain in-memory model must leave both in the same observable
// order and membership.
package patch

import (
	"github.com/go-loom/loom/pkg/errors"
)

// ListOp identifies the variant of a ListPatch.
type ListOp uint8

const (
	// OpInsert inserts Values[0] at Index, shifting later items right.
	OpInsert ListOp = iota
	// OpRemoveAt removes the item at Index.
	OpRemoveAt
	// OpMove moves the item at From to To.
	OpMove
	// OpReplaceAt swaps the item at Index for Values[0].
	OpReplaceAt
	// OpSplice replaces the half-open range [Start, End) with Values.
	OpSplice
	// OpClear removes every item.
	OpClear
)

func (op ListOp) String() string {
	switch op {
	case OpInsert:
		return "Insert"
	case OpRemoveAt:
		return "RemoveAt"
	case OpMove:
		return "Move"
	case OpReplaceAt:
		return "ReplaceAt"
	case OpSplice:
		return "Splice"
	case OpClear:
		return "Clear"
	default:
		return "invalid"
	}
}

// ListPatch is one incremental change to an ordered collection.
type ListPatch[T any] struct {
	Op ListOp
	// Index is the target position for Insert, RemoveAt and ReplaceAt.
	Index int
	// From and To are the source and destination positions for Move.
	From, To int
	// Start and End delimit the half-open replaced range for Splice.
	Start, End int
	// Values carries the inserted items.
	Values []T
}

// Insert returns a patch inserting v at index i.
func Insert[T any](i int, v T) ListPatch[T] {
	return ListPatch[T]{Op: OpInsert, Index: i, Values: []T{v}}
}

// RemoveAt returns a patch removing the item at index i.
func RemoveAt[T any](i int) ListPatch[T] {
	return ListPatch[T]{Op: OpRemoveAt, Index: i}
}

// Move returns a patch moving the item at from to to.
func Move[T any](from, to int) ListPatch[T] {
	return ListPatch[T]{Op: OpMove, From: from, To: to}
}

// ReplaceAt returns a patch swapping the item at index i for v.
func ReplaceAt[T any](i int, v T) ListPatch[T] {
	return ListPatch[T]{Op: OpReplaceAt, Index: i, Values: []T{v}}
}

// Splice returns a patch replacing the half-open range [start, end) with vs.
func Splice[T any](start, end int, vs ...T) ListPatch[T] {
	return ListPatch[T]{Op: OpSplice, Start: start, End: end, Values: vs}
}

// Clear returns a patch removing every item.
func Clear[T any]() ListPatch[T] {
	return ListPatch[T]{Op: OpClear}
}

// Push returns a patch appending v. It is Splice at the tail.
func Push[T any](v T) ListPatch[T] {
	return ListPatch[T]{Op: OpSplice, Start: -1, End: -1, Values: []T{v}}
}

// Pop returns a patch removing the last item. It is Splice at the tail.
func Pop[T any]() ListPatch[T] {
	return ListPatch[T]{Op: OpSplice, Start: -2, End: -1}
}

// tailRange resolves the sentinel ranges used by Push and Pop against the
// current length.
func (p ListPatch[T]) resolveRange(n int) (int, int) {
	start, end := p.Start, p.End
	if start == -1 && end == -1 { // Push
		return n, n
	}
	if start == -2 && end == -1 { // Pop
		if n == 0 {
			return 0, 0
		}
		return n - 1, n
	}
	return start, end
}

// Map rebinds the patch value type, preserving the operation and positions.
// The compiler uses it to turn builder patches into view patches.
func Map[T, X any](p ListPatch[T], f func(T) X) ListPatch[X] {
	out := ListPatch[X]{
		Op:    p.Op,
		Index: p.Index,
		From:  p.From,
		To:    p.To,
		Start: p.Start,
		End:   p.End,
	}
	if len(p.Values) > 0 {
		out.Values = make([]X, len(p.Values))
		for i, v := range p.Values {
			out.Values[i] = f(v)
		}
	}
	return out
}

// MapErr is Map for functions that can fail. The first failure aborts the
// mapping and is returned as-is.
func MapErr[T, X any](p ListPatch[T], f func(T) (X, error)) (ListPatch[X], error) {
	out := ListPatch[X]{
		Op:    p.Op,
		Index: p.Index,
		From:  p.From,
		To:    p.To,
		Start: p.Start,
		End:   p.End,
	}
	if len(p.Values) > 0 {
		out.Values = make([]X, len(p.Values))
		for i, v := range p.Values {
			x, err := f(v)
			if err != nil {
				return ListPatch[X]{}, err
			}
			out.Values[i] = x
		}
	}
	return out, nil
}

// Apply mutates list in place according to p and returns the removed items.
// An out-of-range index is reported as *errors.IndexError and leaves the
// list untouched; indices are never clamped, since clamping would hide
// application bugs.
func Apply[T any](list *[]T, p ListPatch[T]) ([]T, error) {
	items := *list
	n := len(items)
	switch p.Op {
	case OpInsert:
		if len(p.Values) == 0 {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		if p.Index < 0 || p.Index > n {
			return nil, &errors.IndexError{Op: "Insert", Index: p.Index, Len: n}
		}
		items = append(items, *new(T))
		copy(items[p.Index+1:], items[p.Index:])
		items[p.Index] = p.Values[0]
		*list = items
		return nil, nil

	case OpRemoveAt:
		if p.Index < 0 || p.Index >= n {
			return nil, &errors.IndexError{Op: "RemoveAt", Index: p.Index, Len: n}
		}
		removed := items[p.Index]
		items = append(items[:p.Index], items[p.Index+1:]...)
		*list = items
		return []T{removed}, nil

	case OpMove:
		if p.From < 0 || p.From >= n {
			return nil, &errors.IndexError{Op: "Move", Index: p.From, Len: n}
		}
		if p.To < 0 || p.To >= n {
			return nil, &errors.IndexError{Op: "Move", Index: p.To, Len: n}
		}
		v := items[p.From]
		items = append(items[:p.From], items[p.From+1:]...)
		items = append(items, *new(T))
		copy(items[p.To+1:], items[p.To:])
		items[p.To] = v
		*list = items
		return nil, nil

	case OpReplaceAt:
		if len(p.Values) == 0 {
			return nil, &errors.IndexError{Op: "ReplaceAt", Index: p.Index, Len: n}
		}
		if p.Index < 0 || p.Index >= n {
			return nil, &errors.IndexError{Op: "ReplaceAt", Index: p.Index, Len: n}
		}
		removed := items[p.Index]
		items[p.Index] = p.Values[0]
		*list = items
		return []T{removed}, nil

	case OpSplice:
		start, end := p.resolveRange(n)
		if start < 0 || end < start || end > n {
			return nil, &errors.IndexError{Op: "Splice", Index: start, Len: n}
		}
		removed := make([]T, end-start)
		copy(removed, items[start:end])
		rest := make([]T, n-end)
		copy(rest, items[end:])
		items = append(items[:start], p.Values...)
		items = append(items, rest...)
		*list = items
		return removed, nil

	case OpClear:
		removed := items
		*list = nil
		return removed, nil

	default:
		return nil, &errors.IndexError{Op: "invalid", Index: -1, Len: n}
	}
}
