package scheduler

import (
	"sync"
	"time"
)

// TaskResult tells the scheduler what to do after a task callback finished.
type TaskResult int

// TaskResult values.
const (
	TaskResultContinue TaskResult = iota
	TaskResultBreak
)

func (result TaskResult) String() string {
	if result == TaskResultBreak {
		return "Break"
	}
	return "Continue"
}

// Task is a callback executed repeatedly by a Scheduler.
type Task struct {
	// Name identifies the task in logs.
	Name string

	// StartDelay is the delay before the first execution.
	StartDelay time.Duration

	// NextDelay returns the delay between the completion of an execution and
	// the start of the next one.
	NextDelay func() time.Duration

	// Callback starts an execution. The execution ends when the returned
	// channel delivers a result, which must eventually happen.
	Callback func() <-chan TaskResult
}

// UniformDelayGenerator returns a delay generator that always returns delay.
func UniformDelayGenerator(delay time.Duration) func() time.Duration {
	return func() time.Duration {
		return delay
	}
}

// IncreasingDelayGenerator returns a delay generator that starts at
// minDelay and doubles on every call up to maxDelay.
func IncreasingDelayGenerator(minDelay, maxDelay time.Duration) func() time.Duration {
	var lock sync.Mutex
	var previousDelay time.Duration
	return func() time.Duration {
		lock.Lock()
		defer lock.Unlock()
		switch {
		case previousDelay == 0:
			previousDelay = minDelay
		case previousDelay*2 > maxDelay:
			previousDelay = maxDelay
		default:
			previousDelay *= 2
		}
		return previousDelay
	}
}
