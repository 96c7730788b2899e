// Package component pairs a view with the asynchronous logic that drives
// it. A component's tasks communicate with its view exclusively through
// sinks and streams captured at construction time; the component owns the
// tasks, and dropping it cancels them before the view is released.
package component

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/view"
)

// Task is one unit of component logic: a message-passing state machine that
// reads and writes channels until its context is cancelled. Cancellation is
// cooperative and is the only teardown mechanism; a task must unwind at its
// next suspension point without further view communication. Returning
// context.Canceled (or nil) after cancellation is the normal exit.
type Task func(ctx context.Context) error

// State describes where a component is in its lifecycle.
type State int32

const (
	// StateBuilt means the view is compiled and no task is running.
	StateBuilt State = iota
	// StateRunning means one or more tasks hold channel endpoints.
	StateRunning
	// StateCancelling means the owning handle was dropped and tasks are
	// being signalled to stop at their next suspension point.
	StateCancelling
	// StateTerminated means every task has observed cancellation and the
	// view's node and subscriptions have been released.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	case StateTerminated:
		return "terminated"
	default:
		return "invalid"
	}
}

// Component is a builder plus the logic tasks to attach to its view.
type Component struct {
	builder *view.Builder
	tasks   []Task
}

// New wraps a builder into a component with no logic. Building it yields a
// handle whose view simply renders.
func New(b *view.Builder) *Component {
	return &Component{builder: b}
}

// WithLogic attaches logic tasks. Tasks are spawned when the component is
// built, in the order they were attached.
func (c *Component) WithLogic(tasks ...Task) *Component {
	c.tasks = append(c.tasks, tasks...)
	return c
}

// Build compiles the component's view and spawns its tasks. The returned
// handle owns both.
func (c *Component) Build(vctx *view.Context) (*Handle, error) {
	v, err := view.Build(vctx, c.builder)
	if err != nil {
		return nil, err
	}
	taskCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		view:   v,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.state.Store(int32(StateBuilt))
	if len(c.tasks) > 0 {
		h.state.Store(int32(StateRunning))
		for _, task := range c.tasks {
			h.wg.Add(1)
			go func(task Task) {
				defer h.wg.Done()
				defer errors.Recover("component.task")
				if err := task(taskCtx); err != nil && !stderrors.Is(err, context.Canceled) {
					errors.Report(&errors.LoomError{Op: "component.task", Kind: errors.KindChannel, Err: err})
				}
			}(task)
		}
	}
	return h, nil
}

// Handle is a built component: a live view plus its running tasks. Dropping
// the handle is the only way to stop them.
type Handle struct {
	view     *view.View
	cancel   context.CancelFunc
	state    atomic.Int32
	wg       sync.WaitGroup
	done     chan struct{}
	dropOnce sync.Once
}

// View returns the live view the handle owns.
func (h *Handle) View() *view.View {
	return h.view
}

// State reports the component's lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the component has terminated.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Drop signals every task to stop at its next suspension point, waits for
// all of them to observe cancellation, and then releases the view's node and
// subscriptions. A task holding a sink into the dead view afterwards simply
// gets errors.ErrClosed on send. Drop blocks; do not call it from the event
// loop goroutine.
func (h *Handle) Drop() {
	h.dropOnce.Do(func() {
		h.state.Store(int32(StateCancelling))
		h.cancel()
		h.wg.Wait()
		h.view.Drop()
		h.view.Wait()
		h.state.Store(int32(StateTerminated))
		close(h.done)
	})
}
