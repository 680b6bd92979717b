package locks

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitGroupWaitReturnsWhenIdle(t *testing.T) {
	wg := NewWaitGroup()
	require.True(t, WaitFor(wg.Wait, time.Second))
	require.Zero(t, wg.Count())
}

func TestWaitGroupWaitsForAllWork(t *testing.T) {
	wg := NewWaitGroup()
	const numWorkers = 16
	var numFinished int32
	release := make(chan struct{})
	for i := 0; i < numWorkers; i++ {
		wg.Add()
		go func() {
			<-release
			atomic.AddInt32(&numFinished, 1)
			wg.Done()
		}()
	}
	require.EqualValues(t, numWorkers, wg.Count())
	require.False(t, WaitFor(wg.Wait, 10*time.Millisecond))

	close(release)
	require.True(t, WaitFor(wg.Wait, time.Second))
	require.EqualValues(t, numWorkers, atomic.LoadInt32(&numFinished))
}

func TestWaitGroupAddDuringWait(t *testing.T) {
	wg := NewWaitGroup()
	wg.Add()
	waitDone := ReceiveFromChanWhenDone(wg.Wait)

	// Work added by outstanding work keeps Wait blocked.
	wg.Add()
	wg.Done()
	select {
	case <-waitDone:
		t.Fatal("Wait returned while work was outstanding")
	case <-time.After(10 * time.Millisecond):
	}

	wg.Done()
	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after all work was done")
	}
}

func TestWaitGroupDoneWithoutAddPanics(t *testing.T) {
	wg := NewWaitGroup()
	require.PanicsWithValue(t,
		"negative values for wg.counter are not allowed. This was likely caused by calling Done() before Add()",
		wg.Done)
}
