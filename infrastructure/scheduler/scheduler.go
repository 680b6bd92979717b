package scheduler

import (
	"sync"
	"time"

	"github.com/kaspanet/p2pwire/infrastructure/threadpool"
	"github.com/pkg/errors"
)

// ErrShutdown is returned when adding a task to a scheduler that was shut
// down.
var ErrShutdown = errors.New("scheduler is shut down")

// Scheduler executes tasks on a thread pool. Delays are measured on the
// pool's clock.
type Scheduler struct {
	pool *threadpool.Pool

	lock              sync.Mutex
	isShutdown        bool
	timers            map[*scheduledTask]*threadpool.Timer
	numScheduledTasks int
	numExecuting      int
}

type scheduledTask struct {
	Task
}

// New creates a scheduler running tasks on pool.
func New(pool *threadpool.Pool) *Scheduler {
	return &Scheduler{
		pool:   pool,
		timers: make(map[*scheduledTask]*threadpool.Timer),
	}
}

// AddTask schedules task for its first execution after task.StartDelay.
func (s *Scheduler) AddTask(task Task) error {
	if task.Callback == nil || task.NextDelay == nil {
		return errors.Errorf("task %s must have a callback and a delay generator", task.Name)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isShutdown {
		return errors.Wrapf(ErrShutdown, "cannot add task %s", task.Name)
	}
	s.numScheduledTasks++
	s.scheduleLocked(&scheduledTask{Task: task}, task.StartDelay)
	log.Debugf("Added task %s, first execution in %s", task.Name, task.StartDelay)
	return nil
}

func (s *Scheduler) scheduleLocked(task *scheduledTask, delay time.Duration) {
	s.timers[task] = s.pool.AfterFunc(delay, func() { s.execute(task) })
}

func (s *Scheduler) execute(task *scheduledTask) {
	s.lock.Lock()
	delete(s.timers, task)
	if s.isShutdown {
		s.numScheduledTasks--
		s.lock.Unlock()
		return
	}
	s.numExecuting++
	s.lock.Unlock()

	log.Tracef("Executing task %s", task.Name)
	results := task.Callback()
	s.pool.Go("scheduler task "+task.Name, func() {
		result := <-results
		s.onExecuted(task, result)
	})
}

func (s *Scheduler) onExecuted(task *scheduledTask, result TaskResult) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.numExecuting--
	if result == TaskResultBreak || s.isShutdown {
		log.Debugf("Removing task %s (%s)", task.Name, result)
		s.numScheduledTasks--
		return
	}

	delay := task.NextDelay()
	log.Tracef("Task %s completed, next execution in %s", task.Name, delay)
	s.scheduleLocked(task, delay)
}

// NumScheduledTasks returns the number of tasks that are either waiting for
// their next execution or executing.
func (s *Scheduler) NumScheduledTasks() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.numScheduledTasks
}

// NumExecutingTaskCallbacks returns the number of executions in progress.
func (s *Scheduler) NumExecutingTaskCallbacks() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.numExecuting
}

// Shutdown cancels all pending executions. Executions in progress are left
// to finish; the pool's Join waits for them.
func (s *Scheduler) Shutdown() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	for task, timer := range s.timers {
		if timer.Stop() {
			s.numScheduledTasks--
		}
		delete(s.timers, task)
	}
	log.Infof("Scheduler shut down, %d task executions still in progress", s.numExecuting)
}
