package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitRunsImmediatelyWhenOpen(t *testing.T) {
	g := New()

	ran := false
	g.Await(func() { ran = true })

	require.True(t, ran)
}

func TestAwaitQueuesWhileClosed(t *testing.T) {
	g := New()
	g.Close()

	ran := false
	g.Await(func() { ran = true })

	require.False(t, ran)
	g.Open()
	require.True(t, ran)
}

func TestOpenReleasesAllInFIFOOrder(t *testing.T) {
	g := New()
	g.Close()

	var order []int
	for i := 0; i < 5; i++ {
		g.Await(func() { order = append(order, i) })
	}
	require.Empty(t, order)

	g.Open()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)

	// A second open is equivalent to the first.
	g.Open()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCloseIsIdempotent(t *testing.T) {
	g := New()
	g.Close()
	g.Close()

	ran := false
	g.Await(func() { ran = true })
	require.False(t, ran)

	g.Open()
	require.True(t, ran)
}

func TestContinuationCanRecloseGate(t *testing.T) {
	g := New()
	g.Close()

	var order []int
	g.Await(func() {
		order = append(order, 0)
		g.Close()
	})
	g.Await(func() { order = append(order, 1) })

	// The first continuation closes the gate again, so the second stays
	// queued until the next open.
	g.Open()
	require.Equal(t, []int{0}, order)

	g.Open()
	require.Equal(t, []int{0, 1}, order)
}

func TestNoOverlappingContinuations(t *testing.T) {
	g := New()

	var (
		active  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done := make(chan struct{})
			g.Await(func() {
				g.Close()
				defer g.Open()
				if active.Add(1) != 1 {
					overlap.Store(true)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				close(done)
			})
			<-done
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "two continuations were past the gate at once")
}
