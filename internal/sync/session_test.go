package sync

import (
	"context"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_EventTriggersResync(t *testing.T) {
	source := newStubSource()
	c := NewCoordinator(testLogger())
	defer c.End()

	var resyncs atomic.Int32
	c.Begin("alice", source, func(context.Context) { resyncs.Add(1) })

	source.events <- struct{}{}

	require.Eventually(t, func() bool { return resyncs.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice", c.ActiveUser())
	assert.True(t, c.Watching())
}

func TestCoordinator_BeginTearsDownPriorSession(t *testing.T) {
	first := newStubSource()
	second := newStubSource()
	c := NewCoordinator(testLogger())
	defer c.End()

	var aliceRuns, bobRuns atomic.Int32
	c.Begin("alice", first, func(context.Context) { aliceRuns.Add(1) })
	c.Begin("bob", second, func(context.Context) { bobRuns.Add(1) })

	assert.Equal(t, int32(1), first.closed.Load(), "prior feed torn down")
	assert.Equal(t, "bob", c.ActiveUser())

	second.events <- struct{}{}
	require.Eventually(t, func() bool { return bobRuns.Load() == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), aliceRuns.Load())
}

func TestCoordinator_EndStopsEverything(t *testing.T) {
	source := newStubSource()
	c := NewCoordinator(testLogger())

	c.Begin("alice", source, func(context.Context) {})
	c.End()

	assert.Equal(t, "", c.ActiveUser())
	assert.False(t, c.Watching())
	assert.Equal(t, int32(1), source.closed.Load())

	// idempotent
	c.End()
}

func TestCoordinator_NilSourceRunsWithoutNotifier(t *testing.T) {
	c := NewCoordinator(testLogger())
	defer c.End()

	c.Begin("guest", nil, func(context.Context) {})
	assert.Equal(t, "guest", c.ActiveUser())
	assert.False(t, c.Watching())
}

func TestCoordinator_ConcurrentBeginsLeakNothing(t *testing.T) {
	first := newStubSource()
	second := newStubSource()
	c := NewCoordinator(testLogger())

	var wg stdsync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Begin("alice", first, func(context.Context) {})
	}()
	go func() {
		defer wg.Done()
		c.Begin("bob", second, func(context.Context) {})
	}()
	wg.Wait()

	// exactly one session survived the race; the loser was fully torn down
	assert.NotEqual(t, "", c.ActiveUser())
	loserClosed := first.closed.Load() + second.closed.Load()
	assert.Equal(t, int32(1), loserClosed)

	c.End()
	assert.Equal(t, "", c.ActiveUser())
	assert.Equal(t, int32(1), first.closed.Load())
	assert.Equal(t, int32(1), second.closed.Load())
}

func TestCoordinator_BurstOfEventsCoalesces(t *testing.T) {
	source := newStubSource()
	c := NewCoordinator(testLogger())
	defer c.End()

	gate := make(chan struct{})
	started := make(chan struct{}, 16)
	var resyncs atomic.Int32
	c.Begin("alice", source, func(ctx context.Context) {
		resyncs.Add(1)
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
		}
	})

	// first event occupies the worker
	source.events <- struct{}{}
	<-started

	// a burst while the worker is busy collapses into one queued run
	for i := 0; i < 5; i++ {
		source.events <- struct{}{}
	}
	close(gate)

	require.Eventually(t, func() bool { return resyncs.Load() == 2 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), resyncs.Load())
}
