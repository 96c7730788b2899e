package channel

import (
	"context"
)

// Map derives a stream that yields f(v) for every v on src. The derived
// stream is pumped by its own task, which stops when ctx is done, src is
// exhausted, or the derived stream loses all subscribers.
func Map[T, U any](ctx context.Context, src *Stream[T], f func(T) U) *Stream[U] {
	sink, out := New[U](Buffered(cap(src.ch)))
	go pump(ctx, src, sink, func(ctx context.Context, s Sink[U], v T) error {
		return s.Send(ctx, f(v))
	})
	return out
}

// Filter derives a stream yielding only the values of src for which pred
// returns true.
func Filter[T any](ctx context.Context, src *Stream[T], pred func(T) bool) *Stream[T] {
	sink, out := New[T](Buffered(cap(src.ch)))
	go pump(ctx, src, sink, func(ctx context.Context, s Sink[T], v T) error {
		if !pred(v) {
			return nil
		}
		return s.Send(ctx, v)
	})
	return out
}

// Fold derives a stream of running accumulations: for each value v on src it
// yields acc = f(acc, v), starting from seed. The seed itself is not
// emitted. Coalescing of bursty updates is built from Fold at the
// application level; the core never coalesces.
func Fold[T, A any](ctx context.Context, src *Stream[T], seed A, f func(A, T) A) *Stream[A] {
	sink, out := New[A](Buffered(cap(src.ch)))
	acc := seed
	go pump(ctx, src, sink, func(ctx context.Context, s Sink[A], v T) error {
		acc = f(acc, v)
		return s.Send(ctx, acc)
	})
	return out
}

// Merge derives a stream that interleaves the values of all sources.
// Ordering is preserved per source. Racing a value stream against a timer
// stream to express a timeout is the intended use.
func Merge[T any](ctx context.Context, srcs ...*Stream[T]) *Stream[T] {
	sink, out := New[T](Buffered(DefaultCapacity))
	done := make(chan struct{})
	remaining := len(srcs)
	completions := make(chan struct{}, len(srcs))
	for _, src := range srcs {
		go func(src *Stream[T]) {
			defer func() { completions <- struct{}{} }()
			pumpUntil(ctx, src, done, func(ctx context.Context, v T) error {
				return sink.Send(ctx, v)
			})
		}(src)
	}
	go func() {
		for range completions {
			remaining--
			if remaining == 0 {
				sink.Close()
				close(done)
				return
			}
		}
	}()
	return out
}

// pump forwards values from src through deliver until the source ends or
// delivery fails because the derived channel lost its subscribers.
func pump[T, U any](ctx context.Context, src *Stream[T], sink Sink[U], deliver func(context.Context, Sink[U], T) error) {
	defer sink.Close()
	for {
		v, err := src.Next(ctx)
		if err != nil {
			return
		}
		if err := deliver(ctx, sink, v); err != nil {
			src.Cancel()
			return
		}
	}
}

func pumpUntil[T any](ctx context.Context, src *Stream[T], done <-chan struct{}, deliver func(context.Context, T) error) {
	for {
		select {
		case <-done:
			src.Cancel()
			return
		default:
		}
		v, err := src.Next(ctx)
		if err != nil {
			return
		}
		if err := deliver(ctx, v); err != nil {
			src.Cancel()
			return
		}
	}
}
