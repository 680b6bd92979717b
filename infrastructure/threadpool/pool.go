// Package threadpool runs callbacks on a fixed set of worker goroutines.
//
// Everything that is pending on a Pool, queued tasks as well as blocking
// goroutines started with Go and timers created with AfterFunc, counts as
// outstanding work, and Join waits for all of it.
package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/kaspanet/p2pwire/util/locks"
	"github.com/kaspanet/p2pwire/util/panics"
	"golang.org/x/sync/errgroup"
)

// Pool is a fixed-size pool of worker goroutines draining a shared FIFO
// queue.
type Pool struct {
	name       string
	numWorkers int
	clock      clock.Clock
	spawnAfter func(name string, d time.Duration, f func()) *clock.Timer

	queueLock  sync.Mutex
	queueCond  *sync.Cond
	queue      []func()
	isStopping bool
	isJoined   bool

	outstanding *locks.WaitGroup
	workers     errgroup.Group
	isStarted   uint32
}

// New creates a pool with numWorkers workers using the wall clock.
func New(name string, numWorkers int) *Pool {
	return NewWithClock(name, numWorkers, clock.New())
}

// NewWithClock creates a pool whose timers are driven by clk.
func NewWithClock(name string, numWorkers int, clk clock.Clock) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	pool := &Pool{
		name:        name,
		numWorkers:  numWorkers,
		clock:       clk,
		spawnAfter:  panics.AfterFuncWrapperFunc(log, clk),
		outstanding: locks.NewWaitGroup(),
	}
	pool.queueCond = sync.NewCond(&pool.queueLock)
	return pool
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// NumWorkerThreads returns the number of worker goroutines.
func (p *Pool) NumWorkerThreads() int {
	return p.numWorkers
}

// Clock returns the clock driving the pool's timers.
func (p *Pool) Clock() clock.Clock {
	return p.clock
}

// Start launches the workers. It may only be called once.
func (p *Pool) Start() {
	if !atomic.CompareAndSwapUint32(&p.isStarted, 0, 1) {
		panic(fmt.Sprintf("thread pool %s was started twice", p.name))
	}
	log.Debugf("Starting thread pool %s with %d workers", p.name, p.numWorkers)
	for i := 0; i < p.numWorkers; i++ {
		workerName := fmt.Sprintf("%s worker %d", p.name, i)
		p.workers.Go(func() error {
			defer panics.HandlePanic(log, workerName, nil)
			p.runWorker()
			return nil
		})
	}
}

func (p *Pool) runWorker() {
	for {
		p.queueLock.Lock()
		for len(p.queue) == 0 && !p.isStopping {
			p.queueCond.Wait()
		}
		if len(p.queue) == 0 {
			p.queueLock.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.queueLock.Unlock()

		task()
		p.outstanding.Done()
	}
}

// Post queues task for execution on one of the workers. It never blocks.
// Tasks posted after Join returned are dropped.
func (p *Pool) Post(task func()) {
	p.queueLock.Lock()
	defer p.queueLock.Unlock()
	if p.isJoined {
		log.Warnf("Dropping task posted to joined thread pool %s", p.name)
		return
	}
	p.outstanding.Add()
	p.queue = append(p.queue, task)
	p.queueCond.Signal()
}

// Go runs a blocking function on its own goroutine while counting it as
// outstanding work of the pool.
func (p *Pool) Go(name string, f func()) {
	p.outstanding.Add()
	spawn(name, func() {
		defer p.outstanding.Done()
		f()
	})
}

// NumOutstanding returns the amount of outstanding work.
func (p *Pool) NumOutstanding() int64 {
	return p.outstanding.Count()
}

// Join waits for all outstanding work to finish and stops the workers.
// It must not be called from a task running on the pool.
func (p *Pool) Join() {
	p.outstanding.Wait()

	p.queueLock.Lock()
	p.isStopping = true
	p.isJoined = true
	p.queueCond.Broadcast()
	p.queueLock.Unlock()

	_ = p.workers.Wait()
	log.Debugf("Thread pool %s joined", p.name)
}
