package channel

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-loom/loom/pkg/errors"
)

func collect[T any](t *testing.T, st *Stream[T], n int) []T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out := make([]T, 0, n)
	for len(out) < n {
		v, err := st.Next(ctx)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestFanOutDeliversToEverySubscriberInOrder(t *testing.T) {
	sink, first := New[int](Buffered(8))
	second := first.Sub()
	third := first.Sub()

	want := []int{1, 2, 3, 4, 5}

	var wg sync.WaitGroup
	results := make([][]int, 3)
	for i, st := range []*Stream[int]{first, second, third} {
		wg.Add(1)
		go func(i int, st *Stream[int]) {
			defer wg.Done()
			results[i] = collect(t, st, len(want))
		}(i, st)
	}

	ctx := context.Background()
	for _, v := range want {
		require.NoError(t, sink.Send(ctx, v))
	}
	wg.Wait()

	for i := range results {
		assert.Equal(t, want, results[i], "subscriber %d", i)
	}
}

func TestSendFailsWhenAllSubscribersCancelled(t *testing.T) {
	sink, st := New[int](Buffered(0))
	st.Cancel()
	err := sink.Send(context.Background(), 1)
	require.ErrorIs(t, err, errors.ErrClosed)
	_, err = sink.TrySend(2)
	require.ErrorIs(t, err, errors.ErrClosed)
}

func TestSendFailsAfterClose(t *testing.T) {
	sink, st := New[int](Buffered(0))
	require.NoError(t, sink.Send(context.Background(), 1))
	sink.Close()

	err := sink.Send(context.Background(), 2)
	require.ErrorIs(t, err, errors.ErrClosed)

	// The value buffered before the close is still receivable.
	v, err := st.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = st.Next(context.Background())
	require.ErrorIs(t, err, errors.ErrClosed)
}

func TestTrySendDropsOnFullQueue(t *testing.T) {
	sink, st := New[int](Buffered(1))
	slow := st.Sub()

	delivered, err := sink.TrySend(1)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	// Both queues hold one undrained value, so the next TrySend has nowhere
	// to go and reports zero deliveries.
	delivered, err = sink.TrySend(2)
	require.NoError(t, err)
	assert.Equal(t, 0, delivered)

	v, err := st.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = slow.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestImmediateSendSuspendsUntilReceipt(t *testing.T) {
	sink, st := New[int](Immediate())

	sent := make(chan error, 1)
	go func() {
		sent <- sink.Send(context.Background(), 42)
	}()

	select {
	case err := <-sent:
		t.Fatalf("send completed before receive: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	v, err := st.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	require.NoError(t, <-sent)
}

func TestSendHonorsContextCancellation(t *testing.T) {
	sink, st := New[int](Immediate())
	defer st.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	sent := make(chan error, 1)
	go func() {
		sent <- sink.Send(ctx, 1)
	}()
	cancel()
	require.ErrorIs(t, <-sent, context.Canceled)
}

func TestSubObservesOnlyLaterValues(t *testing.T) {
	sink, st := New[int](Buffered(4))
	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, 1))

	late := st.Sub()
	require.NoError(t, sink.Send(ctx, 2))

	assert.Equal(t, []int{1, 2}, collect(t, st, 2))
	assert.Equal(t, []int{2}, collect(t, late, 1))
}

func TestConcurrentProducersAgreeOnOrder(t *testing.T) {
	sink, st := New[int](Buffered(64))
	other := st.Sub()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, sink.Send(context.Background(), i))
		}(i)
	}
	wg.Wait()

	a := collect(t, st, n)
	b := collect(t, other, n)
	// Producers race, but every subscriber observes the same total order.
	assert.Equal(t, a, b)
}

func TestContraMapAdaptsSink(t *testing.T) {
	sink, st := New[string](Buffered(2))
	numbers := ContraMap(sink, strconv.Itoa)

	delivered, err := numbers.TrySend(3)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)

	v, err := st.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	numbers.Close()
	_, err = st.Next(context.Background())
	require.ErrorIs(t, err, errors.ErrClosed)
}

func TestCancelUnblocksPendingNext(t *testing.T) {
	_, st := New[int](Buffered(0))
	got := make(chan error, 1)
	go func() {
		_, err := st.Next(context.Background())
		got <- err
	}()
	time.Sleep(10 * time.Millisecond)
	st.Cancel()
	require.ErrorIs(t, <-got, errors.ErrClosed)
}
