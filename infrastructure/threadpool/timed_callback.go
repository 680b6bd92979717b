package threadpool

import (
	"sync"
	"time"
)

// TimedCallback delivers exactly one result to a callback: either the
// result of the wrapped operation or, if the timeout elapses first, a fixed
// timeout result. The timeout handler runs only when the timeout wins.
type TimedCallback[T any] struct {
	pool           *Pool
	callback       func(T)
	timeoutResult  T
	timeoutHandler func()

	lock        sync.Mutex
	isCompleted bool
	timer       *Timer
}

// NewTimedCallback wraps callback. No timeout is armed until SetTimeout is
// called.
func NewTimedCallback[T any](pool *Pool, callback func(T), timeoutResult T) *TimedCallback[T] {
	return &TimedCallback[T]{
		pool:           pool,
		callback:       callback,
		timeoutResult:  timeoutResult,
		timeoutHandler: func() {},
	}
}

// SetTimeoutHandler sets the function run before the timeout result is
// delivered.
func (tc *TimedCallback[T]) SetTimeoutHandler(handler func()) {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	tc.timeoutHandler = handler
}

// SetTimeout arms the timeout.
func (tc *TimedCallback[T]) SetTimeout(timeout time.Duration) {
	tc.lock.Lock()
	defer tc.lock.Unlock()
	if tc.isCompleted {
		return
	}
	tc.timer = tc.pool.AfterFunc(timeout, tc.onTimeout)
}

// Callback delivers result unless the timeout already fired.
func (tc *TimedCallback[T]) Callback(result T) {
	tc.lock.Lock()
	if tc.isCompleted {
		tc.lock.Unlock()
		return
	}
	tc.isCompleted = true
	if tc.timer != nil {
		tc.timer.Stop()
	}
	tc.lock.Unlock()

	tc.callback(result)
}

func (tc *TimedCallback[T]) onTimeout() {
	tc.lock.Lock()
	if tc.isCompleted {
		tc.lock.Unlock()
		return
	}
	tc.isCompleted = true
	handler := tc.timeoutHandler
	tc.lock.Unlock()

	handler()
	tc.callback(tc.timeoutResult)
}
