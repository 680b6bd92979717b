package threadpool

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a pending delayed task created by AfterFunc.
type Timer struct {
	pool       *Pool
	clockTimer *clock.Timer
	state      uint32
}

const (
	timerPending uint32 = iota
	timerDone
)

// AfterFunc posts f to the pool once d has elapsed on the pool's clock.
// The pending timer counts as outstanding work until it fires or is stopped.
func (p *Pool) AfterFunc(d time.Duration, f func()) *Timer {
	timer := &Timer{pool: p}
	p.outstanding.Add()
	timer.clockTimer = p.spawnAfter(p.name+" timer", d, func() {
		if !atomic.CompareAndSwapUint32(&timer.state, timerPending, timerDone) {
			return
		}
		p.Post(f)
		p.outstanding.Done()
	})
	return timer
}

// Stop cancels the timer. It returns false if the timer already fired or
// was already stopped.
func (t *Timer) Stop() bool {
	if !atomic.CompareAndSwapUint32(&t.state, timerPending, timerDone) {
		return false
	}
	t.clockTimer.Stop()
	t.pool.outstanding.Done()
	return true
}
