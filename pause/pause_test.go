package pause_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daqlab/dmabench-go/pause"
)

func TestDisabledIsNilAndNoop(t *testing.T) {
	s := pause.New(false)
	require.Nil(t, s)

	start := time.Now()
	s.PauseIfNeeded() // must not panic or block
	s.OnPause(func(time.Duration) {})
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestStallFiresAndRedraws(t *testing.T) {
	// Deadline is immediate, stall length is a fixed 5ms.
	s := pause.NewWithRanges(0, 0, 5*time.Millisecond, 5*time.Millisecond)

	var fired int
	var got time.Duration
	s.OnPause(func(d time.Duration) {
		fired++
		got = d
	})

	start := time.Now()
	s.PauseIfNeeded()
	require.Equal(t, 1, fired)
	require.Equal(t, 5*time.Millisecond, got)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	// Redrawn deadline is again immediate, so a second call stalls too.
	s.PauseIfNeeded()
	require.Equal(t, 2, fired)
}

func TestNoStallBeforeDeadline(t *testing.T) {
	s := pause.NewWithRanges(time.Hour, time.Hour, time.Second, time.Second)

	var fired int
	s.OnPause(func(time.Duration) { fired++ })

	start := time.Now()
	for i := 0; i < 1000; i++ {
		s.PauseIfNeeded()
	}
	require.Zero(t, fired)
	require.Less(t, time.Since(start), time.Second)
}
