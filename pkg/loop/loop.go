// Package loop provides the single logical event loop that drives a running
// Loom application. All node mutation is serialized onto the loop goroutine,
// making it data-race-free by construction; logic tasks run as ordinary
// goroutines and reach the node tree only by dispatching work here.
package loop

import (
	"context"
	"time"

	"github.com/go-loom/loom/pkg/channel"
	"github.com/go-loom/loom/pkg/errors"
)

// queueSize bounds the dispatch queue. Dispatch suspends when it is full so
// a burst of logic-task updates backpressures instead of growing unbounded.
const queueSize = 1024

// Loop is a cooperative scheduler running callbacks one at a time on a
// single goroutine.
type Loop struct {
	work chan func()
	done chan struct{}
}

// New creates a loop. It does not run until Run is called.
func New() *Loop {
	return &Loop{
		work: make(chan func(), queueSize),
		done: make(chan struct{}),
	}
}

// Run executes dispatched callbacks in FIFO order until ctx is done.
// It must be called from the goroutine that owns the rendering surface.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case fn := <-l.work:
			l.invoke(fn)
		case <-ctx.Done():
			// Drain what was queued before shutdown so teardown callbacks
			// still run.
			for {
				select {
				case fn := <-l.work:
					l.invoke(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer errors.Recover("loop.invoke")
	fn()
}

// Dispatch schedules fn to run on the loop goroutine. It suspends while the
// queue is full and reports false once the loop has stopped.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	// Checked separately because the queue may have room even after stop,
	// and select picks ready cases at random.
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.work <- fn:
		return true
	}
}

// DispatchAndWait runs fn on the loop goroutine and waits for it to finish.
// Calling it from the loop goroutine itself would deadlock; loop-side code
// just calls fn directly.
func (l *Loop) DispatchAndWait(fn func()) bool {
	ran := make(chan struct{})
	ok := l.Dispatch(func() {
		defer close(ran)
		fn()
	})
	if !ok {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed when the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Ticks derives a stream emitting the current time every interval. The
// ticker stops when ctx is done or the stream loses all subscribers.
// Timeouts are expressed by racing a Ticks stream against a value stream;
// no dedicated timeout API exists.
func Ticks(ctx context.Context, interval time.Duration) *channel.Stream[time.Time] {
	sink, out := channel.New[time.Time](channel.Buffered(1))
	go func() {
		defer sink.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				if _, err := sink.TrySend(t); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
