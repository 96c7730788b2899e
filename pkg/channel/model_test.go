package channel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-loom/loom/pkg/patch"
)

func TestModelReplaysCurrentValueToNewObserver(t *testing.T) {
	ctx := context.Background()
	m := NewModel("initial")

	early := m.Observe()
	v, err := early.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "initial", v)

	require.NoError(t, m.Set(ctx, "updated"))
	v, err = early.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "updated", v)

	// A late observer starts from the current value, not the history.
	late := m.Observe()
	v, err = late.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "updated", v)
}

func TestModelSetWithoutObserversStoresValue(t *testing.T) {
	ctx := context.Background()
	m := NewModel(1)
	require.NoError(t, m.Set(ctx, 2))
	assert.Equal(t, 2, m.Get())

	st := m.Observe()
	v, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestModelUpdateEmitsDerivedValue(t *testing.T) {
	ctx := context.Background()
	m := NewModel(10)
	st := m.Observe()
	_, err := st.Next(ctx) // replayed initial
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, func(v int) int { return v + 5 }))
	v, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, v)
	assert.Equal(t, 15, m.Get())
}

func TestListPatchModelEmitsPatchesVerbatim(t *testing.T) {
	ctx := context.Background()
	m := NewListPatchModel[string]()
	st := m.Observe()

	p := patch.Insert(0, "a")
	require.NoError(t, m.Patch(ctx, p))

	got, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, []string{"a"}, m.Items())
}

func TestListPatchModelReplaysContentsAsSplice(t *testing.T) {
	ctx := context.Background()
	m := NewListPatchModel[string]()
	require.NoError(t, m.Patch(ctx, patch.Insert(0, "a")))
	require.NoError(t, m.Patch(ctx, patch.Insert(1, "b")))

	st := m.Observe()
	got, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, patch.Splice(0, 0, "a", "b"), got)

	// Replaying the observer's stream reconstructs the sequence exactly.
	var replica []string
	_, err = patch.Apply(&replica, got)
	require.NoError(t, err)
	require.NoError(t, m.Patch(ctx, patch.RemoveAt[string](0)))
	got, err = st.Next(ctx)
	require.NoError(t, err)
	_, err = patch.Apply(&replica, got)
	require.NoError(t, err)
	assert.Equal(t, m.Items(), replica)
}

func TestListPatchModelRejectsInvalidIndex(t *testing.T) {
	ctx := context.Background()
	m := NewListPatchModel[int]()
	st := m.Observe()

	err := m.Patch(ctx, patch.RemoveAt[int](3))
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())

	// Nothing was emitted for the rejected patch.
	require.NoError(t, m.Patch(ctx, patch.Insert(0, 7)))
	got, nerr := st.Next(ctx)
	require.NoError(t, nerr)
	assert.Equal(t, patch.OpInsert, got.Op)
}

func TestHashPatchModelReplaysEntriesAsInserts(t *testing.T) {
	ctx := context.Background()
	m := NewHashPatchModel[string, int]()
	require.NoError(t, m.Patch(ctx, patch.HInsert("a", 1)))
	require.NoError(t, m.Patch(ctx, patch.HInsert("b", 2)))

	st := m.Observe()
	replica := make(map[string]int)
	for i := 0; i < 2; i++ {
		p, err := st.Next(ctx)
		require.NoError(t, err)
		patch.ApplyHash(replica, p)
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, replica)

	require.NoError(t, m.Patch(ctx, patch.HRemove[string, int]("a")))
	p, err := st.Next(ctx)
	require.NoError(t, err)
	patch.ApplyHash(replica, p)
	assert.Equal(t, map[string]int{"b": 2}, replica)
	_, ok := m.Get("a")
	assert.False(t, ok)
}
