// Package channel provides the sink/stream primitives that carry every
// reactive value and every event in Loom.
//
// A channel is a multi-producer, multi-consumer broadcast: each live Stream
// subscriber observes every value sent after it subscribed, exactly once, in
// send order. Sinks are shareable handles; copying a Sink yields another
// producer into the same channel.
package channel

import (
	"context"
	"sync"

	"github.com/go-loom/loom/pkg/errors"
)

// DefaultCapacity is the per-subscriber buffer size used by Buffered when no
// explicit capacity is given.
const DefaultCapacity = 16

// Policy describes the capacity behavior of a channel.
type Policy struct {
	buffered bool
	capacity int
}

// Immediate returns a policy with no buffering. A Send suspends the caller
// until every subscriber is ready to take the value; a TrySend on a channel
// with no ready subscriber drops the value.
func Immediate() Policy {
	return Policy{}
}

// Buffered returns a policy with a bounded per-subscriber queue. A capacity
// of zero or less selects DefaultCapacity.
func Buffered(capacity int) Policy {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Policy{buffered: true, capacity: capacity}
}

// Sink is the write end of a channel.
//
// Send and TrySend return errors.ErrClosed once every Stream subscribed to
// the channel has been cancelled, or after Close. Fire-and-forget callers
// updating a possibly torn-down view ignore that error by convention.
type Sink[T any] interface {
	// Send delivers v to every live subscriber, suspending cooperatively
	// when a subscriber's queue is full. It must not be called from the
	// platform event loop; event delivery uses TrySend.
	Send(ctx context.Context, v T) error
	// TrySend delivers v without blocking. Subscribers whose bounded queue
	// is full miss the value (drop-on-overflow); TrySend reports how many
	// subscribers received it.
	TrySend(v T) (delivered int, err error)
	// Close closes the channel. Buffered values remain receivable.
	Close()
}

// New creates a channel with the given policy, returning its Sink and an
// initial Stream subscriber. Further independent subscribers are derived
// with Stream.Sub.
func New[T any](p Policy) (Sink[T], *Stream[T]) {
	h := &hub[T]{
		capacity: p.capacity,
		closed:   make(chan struct{}),
	}
	return sink[T]{h}, h.subscribe()
}

// hub is the shared state behind one logical channel.
type hub[T any] struct {
	mu   sync.Mutex
	subs []*Stream[T]

	// sendMu linearizes producers so fan-out order matches send order.
	sendMu sync.Mutex

	capacity  int
	closed    chan struct{}
	closeOnce sync.Once

	// replay retains the last sent value and hands it to new subscribers.
	// Only Model-backed channels enable it.
	replay  bool
	last    T
	hasLast bool
}

func (h *hub[T]) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

func (h *hub[T]) subscribe() *Stream[T] {
	capacity := h.capacity
	if h.replay && capacity < 1 {
		capacity = 1
	}
	s := &Stream[T]{
		hub:  h,
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if h.replay && h.hasLast {
		s.ch <- h.last
	}
	h.subs = append(h.subs, s)
	h.mu.Unlock()
	return s
}

func (h *hub[T]) remove(s *Stream[T]) {
	h.mu.Lock()
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
}

func (h *hub[T]) snapshot() []*Stream[T] {
	h.mu.Lock()
	subs := make([]*Stream[T], len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()
	return subs
}

func (h *hub[T]) send(ctx context.Context, v T) error {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if h.isClosed() {
		return errors.ErrClosed
	}
	if h.replay {
		h.mu.Lock()
		h.last = v
		h.hasLast = true
		h.mu.Unlock()
	}
	subs := h.snapshot()
	if len(subs) == 0 {
		return errors.ErrClosed
	}
	for _, sub := range subs {
		select {
		case sub.ch <- v:
		case <-sub.done:
			// Subscriber cancelled mid-send; skip it.
		case <-h.closed:
			return errors.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *hub[T]) trySend(v T) (int, error) {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if h.isClosed() {
		return 0, errors.ErrClosed
	}
	if h.replay {
		h.mu.Lock()
		h.last = v
		h.hasLast = true
		h.mu.Unlock()
	}
	subs := h.snapshot()
	if len(subs) == 0 {
		return 0, errors.ErrClosed
	}
	delivered := 0
	for _, sub := range subs {
		select {
		case sub.ch <- v:
			delivered++
		default:
			// Queue full or no ready receiver. Forward progress of the
			// event loop wins over delivery.
		}
	}
	return delivered, nil
}

func (h *hub[T]) close() {
	h.closeOnce.Do(func() { close(h.closed) })
}

// sink is the canonical Sink implementation backed by a hub.
type sink[T any] struct {
	hub *hub[T]
}

func (s sink[T]) Send(ctx context.Context, v T) error { return s.hub.send(ctx, v) }
func (s sink[T]) TrySend(v T) (int, error)            { return s.hub.trySend(v) }
func (s sink[T]) Close()                              { s.hub.close() }

// ContraMap adapts a Sink[T] into a Sink[U] by applying f to each value
// before forwarding. No intermediate channel is allocated; the returned sink
// writes directly into the underlying channel. It is used to turn raw
// platform events into domain message types at the point of event binding.
func ContraMap[U, T any](s Sink[T], f func(U) T) Sink[U] {
	return contraSink[U, T]{inner: s, f: f}
}

type contraSink[U, T any] struct {
	inner Sink[T]
	f     func(U) T
}

func (c contraSink[U, T]) Send(ctx context.Context, v U) error {
	return c.inner.Send(ctx, c.f(v))
}

func (c contraSink[U, T]) TrySend(v U) (int, error) {
	return c.inner.TrySend(c.f(v))
}

func (c contraSink[U, T]) Close() { c.inner.Close() }

// Stream is the read end of a channel. Each Stream is an independent
// subscriber with its own bounded queue.
type Stream[T any] struct {
	hub        *hub[T]
	ch         chan T
	done       chan struct{}
	cancelOnce sync.Once
}

// Sub derives a new independent subscriber from the same channel. The new
// Stream observes values sent after Sub returns; it does not replay earlier
// values unless the channel is Model-backed.
func (s *Stream[T]) Sub() *Stream[T] {
	return s.hub.subscribe()
}

// Next suspends until the next value is available, the stream is cancelled
// or closed (errors.ErrClosed), or ctx is done (ctx.Err()). Values buffered
// before a Close are still delivered.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	// Drain buffered values before considering closure.
	select {
	case v := <-s.ch:
		return v, nil
	default:
	}
	select {
	case v := <-s.ch:
		return v, nil
	case <-s.done:
		return zero, errors.ErrClosed
	case <-s.hub.closed:
		select {
		case v := <-s.ch:
			return v, nil
		default:
			return zero, errors.ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Recv exposes the stream's delivery queue for use in select statements.
// Pair it with Done to observe cancellation.
func (s *Stream[T]) Recv() <-chan T {
	return s.ch
}

// Done is closed when the stream is cancelled.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Closed is closed when the channel itself is closed by a Sink. Values
// buffered before the close are still receivable from Recv.
func (s *Stream[T]) Closed() <-chan struct{} {
	return s.hub.closed
}

// Cancel unsubscribes the stream. Once the last subscriber of a channel is
// cancelled, sends into the channel fail with errors.ErrClosed.
func (s *Stream[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		s.hub.remove(s)
	})
}
