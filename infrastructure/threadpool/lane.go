package threadpool

import "sync"

// maxLaneBatch bounds how many lane tasks run back to back before the lane
// yields its worker to other queued work.
const maxLaneBatch = 16

// Lane serializes tasks on a Pool: tasks posted to the same lane run one at
// a time, in the order they were posted, on any of the pool's workers.
type Lane struct {
	pool *Pool

	lock      sync.Mutex
	tasks     []func()
	isRunning bool
}

// NewLane creates a lane on the pool.
func (p *Pool) NewLane() *Lane {
	return &Lane{pool: p}
}

// Pool returns the pool running the lane's tasks.
func (l *Lane) Pool() *Pool {
	return l.pool
}

// Post queues task on the lane.
func (l *Lane) Post(task func()) {
	l.lock.Lock()
	l.tasks = append(l.tasks, task)
	if l.isRunning {
		l.lock.Unlock()
		return
	}
	l.isRunning = true
	l.lock.Unlock()

	l.pool.Post(l.drain)
}

func (l *Lane) drain() {
	for i := 0; ; i++ {
		l.lock.Lock()
		if len(l.tasks) == 0 {
			l.isRunning = false
			l.lock.Unlock()
			return
		}
		if i == maxLaneBatch {
			l.lock.Unlock()
			l.pool.Post(l.drain)
			return
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.lock.Unlock()

		task()
	}
}
