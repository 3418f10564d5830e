package spsc_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqlab/dmabench-go/spsc"
)

func TestPushPopOrder(t *testing.T) {
	q := spsc.New(4)
	require.Equal(t, 4, q.Capacity())

	for i := uint64(0); i < 4; i++ {
		require.True(t, q.TryPush(i*0x1000))
	}
	require.False(t, q.TryPush(0xdead), "push into full queue must fail")
	require.Equal(t, 4, q.Len())

	for i := uint64(0); i < 4; i++ {
		off, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, i*0x1000, off)
	}
	_, ok := q.TryPop()
	require.False(t, ok, "pop from empty queue must fail")
	require.Equal(t, 0, q.Len())
}

func TestWrapAround(t *testing.T) {
	q := spsc.New(3)
	for round := uint64(0); round < 10; round++ {
		require.True(t, q.TryPush(round))
		require.True(t, q.TryPush(round+100))
		a, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, round, a)
		b, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, round+100, b)
	}
}

// TestSingleOwner runs a producer and a consumer concurrently and checks
// that every offset comes out exactly once and in order, i.e. no offset is
// ever duplicated or lost across the hand-off.
func TestSingleOwner(t *testing.T) {
	const n = 100_000
	q := spsc.New(64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; {
			if q.TryPush(i) {
				i++
			}
		}
	}()

	var next uint64
	for next < n {
		off, ok := q.TryPop()
		if !ok {
			continue
		}
		require.Equal(t, next, off, "offsets must arrive exactly once, in order")
		next++
	}
	wg.Wait()

	_, ok := q.TryPop()
	require.False(t, ok)
}

// TestClosedRing circulates offsets between two queues the way the
// benchmark circulates superpages between the free-list and the readout
// queue: the total number of offsets in flight must stay constant.
func TestClosedRing(t *testing.T) {
	const superpages = 10
	free := spsc.New(superpages + 1)
	readout := spsc.New(superpages + 1)

	for i := uint64(0); i < superpages; i++ {
		require.True(t, free.TryPush(i<<20))
	}

	seen := make(map[uint64]int)
	for round := 0; round < 1000; round++ {
		if off, ok := free.TryPop(); ok {
			require.True(t, readout.TryPush(off))
		}
		if off, ok := readout.TryPop(); ok {
			seen[off]++
			require.True(t, free.TryPush(off))
		}
		require.Equal(t, superpages, free.Len()+readout.Len(),
			"offsets must never leak or duplicate")
	}
	require.Len(t, seen, superpages)
}
