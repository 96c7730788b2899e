package view_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-loom/loom/pkg/channel"
	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/patch"
	loomtest "github.com/go-loom/loom/pkg/testing"
	"github.com/go-loom/loom/pkg/view"
)

// capturingHandler records reported errors so failure-path tests can assert
// on them without spamming stderr.
type capturingHandler struct {
	mu   sync.Mutex
	errs []*errors.LoomError
}

func (h *capturingHandler) HandleError(err *errors.LoomError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

func (h *capturingHandler) HandlePanic(*errors.PanicError) {}

func (h *capturingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errs)
}

func (h *capturingHandler) at(i int) *errors.LoomError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errs[i]
}

func captureErrors(t *testing.T) *capturingHandler {
	t.Helper()
	h := &capturingHandler{}
	errors.SetHandler(h)
	t.Cleanup(func() { errors.SetHandler(nil) })
	return h
}

func item(text string) *view.Builder {
	return view.El("li").SetText(text)
}

func TestPatchChildrenAppliesInOrder(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(st))

	require.NoError(t, sink.Send(ctx, patch.Insert(0, item("b"))))
	require.NoError(t, sink.Send(ctx, patch.Insert(0, item("a"))))
	require.NoError(t, sink.Send(ctx, patch.Push(item("c"))))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>a</li><li>b</li><li>c</li></ul>"
	})

	require.NoError(t, sink.Send(ctx, patch.Move[*view.Builder](2, 0)))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>c</li><li>a</li><li>b</li></ul>"
	})

	require.NoError(t, sink.Send(ctx, patch.ReplaceAt(1, item("A"))))
	require.NoError(t, sink.Send(ctx, patch.RemoveAt[*view.Builder](2)))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>c</li><li>A</li></ul>"
	})
}

func TestPatchIndicesCoverStaticChildren(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").
		Append(item("static")).
		PatchChildren(st))

	require.NoError(t, sink.Send(ctx, patch.Insert(0, item("first"))))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>first</li><li>static</li></ul>"
	})
}

func TestClearThenInsertDropsEveryRemovedView(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	_, evStream := channel.New[string](channel.Buffered(8))
	defer evStream.Cancel()

	// Each child owns one live text subscription, so drops are observable
	// through the parent's subscription count.
	child := func(s string) *view.Builder {
		return view.El("li").TextNowLater(s, evStream.Sub())
	}

	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(st))
	for i, s := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Send(ctx, patch.Insert(i, child(s))))
	}
	vt.RequireSettle(t, func() bool { return vt.View().ChildCount() == 3 })
	vt.RequireSettle(t, func() bool { return vt.View().SubscriptionCount() == 4 })

	require.NoError(t, sink.Send(ctx, patch.Clear[*view.Builder]()))
	require.NoError(t, sink.Send(ctx, patch.Insert(0, child("z"))))

	vt.RequireSettle(t, func() bool { return vt.View().ChildCount() == 1 })
	vt.RequireSettle(t, func() bool { return vt.View().SubscriptionCount() == 2 })
	vt.RequireSettle(t, func() bool { return vt.Render() == "<ul><li>z</li></ul>" })
}

func TestRemovedChildStopsReceiving(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	textSink, textStream := channel.New[string](channel.Buffered(8))

	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(st))
	require.NoError(t, sink.Send(ctx, patch.Insert(0, view.El("li").TextStream(textStream))))
	vt.RequireSettle(t, func() bool { return vt.View().ChildCount() == 1 })

	require.NoError(t, sink.Send(ctx, patch.RemoveAt[*view.Builder](0)))
	vt.RequireSettle(t, func() bool { return vt.View().ChildCount() == 0 })

	require.Eventually(t, func() bool {
		_, err := textSink.TrySend("orphaned")
		return stderrors.Is(err, errors.ErrClosed)
	}, 2*time.Second, time.Millisecond)
}

func TestInvalidPatchIndexIsFatalToTheTask(t *testing.T) {
	h := captureErrors(t)
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(st))

	require.NoError(t, sink.Send(ctx, patch.RemoveAt[*view.Builder](5)))
	vt.RequireSettle(t, func() bool { return h.count() == 1 })

	var ie *errors.IndexError
	require.ErrorAs(t, h.at(0), &ie)
	assert.Equal(t, errors.KindPatch, h.at(0).Kind)
	assert.Equal(t, 0, vt.View().ChildCount(), "collection left untouched")

	// The watcher unwound: the patch stream has no consumer anymore.
	require.Eventually(t, func() bool {
		_, err := sink.TrySend(patch.Insert(0, item("late")))
		return stderrors.Is(err, errors.ErrClosed)
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 0, vt.View().ChildCount())
}

func TestFatalPatchStopsLaterPatchesOnLoop(t *testing.T) {
	h := captureErrors(t)
	ctx := context.Background()
	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(st), loomtest.WithLoop())

	// Queue an invalid patch and a valid one behind it. The invalid patch
	// ends the task before the insert can be pulled, even with mutations
	// routed through a loop.
	require.NoError(t, sink.Send(ctx, patch.RemoveAt[*view.Builder](5)))
	require.NoError(t, sink.Send(ctx, patch.Insert(0, item("late"))))

	require.Eventually(t, func() bool {
		_, err := sink.TrySend(patch.Push(item("later")))
		return stderrors.Is(err, errors.ErrClosed)
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, h.count(), "only the fatal patch reported")
	assert.Equal(t, errors.KindPatch, h.at(0).Kind)
	assert.Equal(t, 0, vt.View().ChildCount(), "nothing applied after the fatal patch")
}

func TestChildBuildFailureSkipsPatchOnly(t *testing.T) {
	h := captureErrors(t)
	be := loomtest.NewBackend()
	be.FailTag("bad", assert.AnError)

	sink, st := channel.New[patch.ListPatch[*view.Builder]](channel.Buffered(8))
	v, err := view.Build(view.NewContext(be), view.El("ul").PatchChildren(st))
	require.NoError(t, err)
	t.Cleanup(func() {
		v.Drop()
		v.Wait()
	})

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, patch.Insert(0, view.El("bad"))))
	require.NoError(t, sink.Send(ctx, patch.Insert(0, item("good"))))

	require.Eventually(t, func() bool { return v.ChildCount() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, h.count(), "failed subtree reported once")
	assert.Equal(t, errors.KindBuild, h.at(0).Kind)
}

func TestKeyedPatchChildren(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.KeyPatch[string, *view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildrenKeyed(st))

	require.NoError(t, sink.Send(ctx, patch.KInsert("a", 0, item("X"))))
	require.NoError(t, sink.Send(ctx, patch.KInsert("b", 1, item("Y"))))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>X</li><li>Y</li></ul>"
	})
	assert.Equal(t, []string{"a", "b"}, vt.View().ChildKeys())

	// Moving key "b" to the front reorders both views and keys.
	require.NoError(t, sink.Send(ctx, patch.KMove[string, *view.Builder]("b", 0)))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>Y</li><li>X</li></ul>"
	})
	assert.Equal(t, []string{"b", "a"}, vt.View().ChildKeys())

	require.NoError(t, sink.Send(ctx, patch.KReplace("a", item("X2"))))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>Y</li><li>X2</li></ul>"
	})
}

func TestKeyedRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sink, st := channel.New[patch.KeyPatch[string, *view.Builder]](channel.Buffered(8))
	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildrenKeyed(st))

	require.NoError(t, sink.Send(ctx, patch.KInsert("a", 0, item("X"))))
	vt.RequireSettle(t, func() bool { return vt.View().ChildCount() == 1 })

	require.NoError(t, sink.Send(ctx, patch.KRemove[string, *view.Builder]("a")))
	require.NoError(t, sink.Send(ctx, patch.KRemove[string, *view.Builder]("a")))
	require.NoError(t, sink.Send(ctx, patch.KRemove[string, *view.Builder]("ghost")))
	require.NoError(t, sink.Send(ctx, patch.KInsert("b", 0, item("Y"))))

	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>Y</li></ul>"
	})
	assert.Equal(t, []string{"b"}, vt.View().ChildKeys())
}

func TestModelDrivenChildrenReplayOnBuild(t *testing.T) {
	ctx := context.Background()
	m := channel.NewListPatchModel[*view.Builder]()
	require.NoError(t, m.Patch(ctx, patch.Insert(0, item("pre"))))

	vt := loomtest.NewViewTester(t, view.El("ul").PatchChildren(m.Observe()))

	// The observer's synthetic splice reconstructs existing contents.
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>pre</li></ul>"
	})

	require.NoError(t, m.Patch(ctx, patch.Push(item("post"))))
	vt.RequireSettle(t, func() bool {
		return vt.Render() == "<ul><li>pre</li><li>post</li></ul>"
	})
}
