// Package dispatch provides serial execution queues. A Queue runs submitted
// functions one at a time in submission order, giving callers a serialization
// context without a shared global lock.
package dispatch

import "sync"

// Queue is a serial execution queue. The zero value is not usable; create
// queues with NewQueue.
type Queue struct {
	name string

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool
	done   chan struct{}
}

// NewQueue creates a queue and starts its worker.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Name returns the queue's label.
func (q *Queue) Name() string {
	return q.name
}

// Async submits fn for execution after all previously submitted functions.
// Submissions after Close are dropped.
func (q *Queue) Async(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.jobs = append(q.jobs, fn)
	q.cond.Signal()
}

// Sync submits fn and waits for it to finish. On a closed queue, Sync returns
// immediately without running fn.
func (q *Queue) Sync(fn func()) {
	ran := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.jobs = append(q.jobs, func() {
		defer close(ran)
		fn()
	})
	q.cond.Signal()
	q.mu.Unlock()
	<-ran
}

// Close stops accepting work, drains already submitted functions, and waits
// for the worker to exit. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			close(q.done)
			return
		}
		fn := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		fn()
	}
}
