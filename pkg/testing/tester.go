package testing

import (
	"context"
	"errors"
	stdtesting "testing"
	"time"

	"github.com/go-loom/loom/pkg/backend"
	"github.com/go-loom/loom/pkg/backend/ssr"
	"github.com/go-loom/loom/pkg/loop"
	"github.com/go-loom/loom/pkg/style"
	"github.com/go-loom/loom/pkg/view"
)

// SettleTimeout bounds how long Settle polls before giving up. Stream
// deliveries are asynchronous, so assertions about node state settle instead
// of asserting immediately.
const SettleTimeout = 2 * time.Second

// ErrSettleTimeout is returned when Settle's condition never became true.
var ErrSettleTimeout = errors.New("settle timed out: condition never became true")

// ViewTester builds one view against a recording backend and provides
// synchronous-looking assertions over its asynchronous updates. The view is
// dropped automatically when the test finishes.
type ViewTester struct {
	backend *Backend
	ctx     *view.Context
	view    *view.View
	cancel  context.CancelFunc
}

// Option configures the tester's build context.
type Option func(*view.Context)

// WithStyles supplies a stylesheet for class resolution.
func WithStyles(sheet *style.Sheet) Option {
	return func(ctx *view.Context) { ctx.Styles = sheet }
}

// WithLoop routes node mutations through a freshly started event loop
// instead of applying them inline.
func WithLoop() Option {
	return func(ctx *view.Context) { ctx.Loop = loop.New() }
}

// NewViewTester builds b and registers teardown with t. Build failures fail
// the test immediately.
func NewViewTester(t *stdtesting.T, b *view.Builder, opts ...Option) *ViewTester {
	t.Helper()
	vt, err := TryViewTester(t, b, opts...)
	if err != nil {
		t.Fatalf("build view: %v", err)
	}
	return vt
}

// TryViewTester is NewViewTester for tests that expect the build to fail.
// On success the returned tester owns the view; on failure it is nil.
func TryViewTester(t *stdtesting.T, b *view.Builder, opts ...Option) (*ViewTester, error) {
	t.Helper()
	be := NewBackend()
	vctx := view.NewContext(be)
	for _, opt := range opts {
		opt(vctx)
	}
	var cancel context.CancelFunc
	if vctx.Loop != nil {
		var loopCtx context.Context
		loopCtx, cancel = context.WithCancel(context.Background())
		go vctx.Loop.Run(loopCtx)
	}
	v, err := view.Build(vctx, b)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, err
	}
	vt := &ViewTester{backend: be, ctx: vctx, view: v, cancel: cancel}
	t.Cleanup(vt.Close)
	return vt, nil
}

// Close drops the view, waits for its subscriptions to unwind, and stops the
// loop if one was started. It is registered as test cleanup; calling it
// early is harmless.
func (vt *ViewTester) Close() {
	vt.view.Drop()
	vt.view.Wait()
	if vt.cancel != nil {
		vt.cancel()
	}
}

// View returns the built view.
func (vt *ViewTester) View() *view.View { return vt.view }

// Backend returns the recording backend the view was built against.
func (vt *ViewTester) Backend() *Backend { return vt.backend }

// Context returns the build context, for building further views against the
// same backend and loop.
func (vt *ViewTester) Context() *view.Context { return vt.ctx }

// Node returns the root node as its concrete in-memory type.
func (vt *ViewTester) Node() *ssr.Node {
	return vt.view.Node().(*ssr.Node)
}

// Text returns the root node's current text content.
func (vt *ViewTester) Text() string { return vt.Node().Text() }

// Attribute returns the root node's current value for name.
func (vt *ViewTester) Attribute(name string) (string, bool) {
	return vt.Node().Attribute(name)
}

// Render serializes the current tree to markup.
func (vt *ViewTester) Render() string {
	return ssr.Render(vt.view.Node())
}

// Fire synthesizes an event on the root node.
func (vt *ViewTester) Fire(event string, ev backend.Event) {
	vt.Node().Fire(event, ev)
}

// FireAt synthesizes an event on the child view at the given index path.
func (vt *ViewTester) FireAt(event string, ev backend.Event, path ...int) {
	v := vt.view
	for _, i := range path {
		v = v.ChildAt(i)
	}
	v.Node().(*ssr.Node).Fire(event, ev)
}

// Settle polls cond until it is true or SettleTimeout elapses.
func (vt *ViewTester) Settle(cond func() bool) error {
	deadline := time.Now().Add(SettleTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	if cond() {
		return nil
	}
	return ErrSettleTimeout
}

// RequireSettle fails the test if cond never becomes true.
func (vt *ViewTester) RequireSettle(t *stdtesting.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	if err := vt.Settle(cond); err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", err, msgAndArgs)
		}
		t.Fatal(err)
	}
}
