package threadpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestTimedCallbackDeliversResultBeforeTimeout(t *testing.T) {
	mock := clock.NewMock()
	pool := NewWithClock("test", 1, mock)
	pool.Start()

	var results []int
	var numTimeoutHandlerCalls int32
	callback := NewTimedCallback(pool, func(result int) { results = append(results, result) }, -1)
	callback.SetTimeoutHandler(func() { atomic.AddInt32(&numTimeoutHandlerCalls, 1) })
	callback.SetTimeout(time.Second)

	callback.Callback(7)
	mock.Add(time.Second)
	callback.Callback(8)
	pool.Join()

	require.Equal(t, []int{7}, results)
	require.Equal(t, int32(0), atomic.LoadInt32(&numTimeoutHandlerCalls))
}

func TestTimedCallbackDeliversTimeoutResult(t *testing.T) {
	mock := clock.NewMock()
	pool := NewWithClock("test", 1, mock)
	pool.Start()

	results := make(chan int, 2)
	var numTimeoutHandlerCalls int32
	callback := NewTimedCallback(pool, func(result int) { results <- result }, -1)
	callback.SetTimeoutHandler(func() { atomic.AddInt32(&numTimeoutHandlerCalls, 1) })
	callback.SetTimeout(time.Second)

	mock.Add(time.Second)
	require.Equal(t, -1, <-results)
	callback.Callback(7)
	pool.Join()

	require.Len(t, results, 0)
	require.Equal(t, int32(1), atomic.LoadInt32(&numTimeoutHandlerCalls))
}

func TestTimedCallbackWithoutTimeout(t *testing.T) {
	pool := New("test", 1)
	pool.Start()

	var result int
	callback := NewTimedCallback(pool, func(value int) { result = value }, -1)
	callback.Callback(3)
	pool.Join()

	require.Equal(t, 3, result)
}
