// Package exec provides single-goroutine execution domains. Graph mutation,
// blocking I/O, and per-device mixing each run on their own domain; state
// owned by a domain is only touched by tasks posted to it, which removes
// the need for locking on those paths.
package exec

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrShutDown is returned when posting to a domain that has been shut down.
var ErrShutDown = errors.New("exec: domain is shut down")

// Task is a unit of work executed on a domain. It must not block on another
// domain completing work, or two single-goroutine domains can deadlock.
type Task func()

type timedTask struct {
	at    time.Time
	seq   uint64
	task  Task
	fired *atomic.Bool
}

type timerHeap []*timedTask

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timedTask)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Domain serializes tasks onto one goroutine. Posting is non-blocking for
// the common case (buffered); deadline tasks are kept in a local timer heap
// so canceling the domain also cancels every pending timer, and a timer can
// never fire after Shutdown returns.
type Domain struct {
	name string

	mu       sync.Mutex
	tasks    chan Task
	stopped  bool
	done     chan struct{}
	wake     chan struct{}
	timerSeq uint64
	timers   timerHeap
}

// NewDomain creates and starts a domain.
func NewDomain(name string) *Domain {
	d := &Domain{
		name:  name,
		tasks: make(chan Task, 256),
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
	go d.run()
	return d
}

// Name returns the domain's diagnostic name.
func (d *Domain) Name() string { return d.name }

// Post schedules a task for execution. Returns ErrShutDown after Shutdown.
// The send happens under the domain lock so a concurrent Shutdown can never
// close the channel out from under a sender.
func (d *Domain) Post(task Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrShutDown
	}
	d.tasks <- task
	return nil
}

// Timer cancels a deadline task posted with PostAt.
type Timer struct {
	fired *atomic.Bool
}

// Cancel prevents the timer's task from running if it has not started yet.
func (t *Timer) Cancel() {
	if t != nil && t.fired != nil {
		t.fired.Store(true)
	}
}

// PostAt schedules a task to run on the domain no earlier than the deadline.
// The returned Timer may be used to cancel it; cancellation is safe from any
// goroutine.
func (d *Domain) PostAt(at time.Time, task Task) (*Timer, error) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrShutDown
	}
	d.timerSeq++
	tt := &timedTask{at: at, seq: d.timerSeq, task: task, fired: new(atomic.Bool)}
	heap.Push(&d.timers, tt)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return &Timer{fired: tt.fired}, nil
}

// PostAfter is shorthand for PostAt(now+delay, task).
func (d *Domain) PostAfter(delay time.Duration, task Task) (*Timer, error) {
	return d.PostAt(time.Now().Add(delay), task)
}

// PostAndWait runs a task and blocks the caller until it completes. It must
// never be called from another domain's goroutine; it exists for startup,
// teardown, and tests driven from plain goroutines.
func (d *Domain) PostAndWait(task Task) error {
	doneCh := make(chan struct{})
	err := d.Post(func() {
		task()
		close(doneCh)
	})
	if err != nil {
		return err
	}
	select {
	case <-doneCh:
		return nil
	case <-d.done:
		return ErrShutDown
	}
}

// Shutdown stops the domain. Queued tasks are drained, pending timers are
// discarded, and the call returns once the goroutine has exited. Idempotent.
func (d *Domain) Shutdown() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	close(d.tasks)
	d.mu.Unlock()
	<-d.done
}

func (d *Domain) run() {
	defer close(d.done)
	idle := time.NewTimer(time.Hour)
	defer idle.Stop()

	for {
		next, ok := d.nextDeadline()
		if ok {
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(time.Until(next))
		}

		select {
		case task, open := <-d.tasks:
			if !open {
				d.drainTimers()
				return
			}
			task()
		case <-d.wake:
			// Re-evaluate the nearest deadline.
		case <-idle.C:
			d.fireDue()
		}
	}
}

func (d *Domain) nextDeadline() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.timers) > 0 && d.timers[0].fired.Load() {
		heap.Pop(&d.timers)
	}
	if len(d.timers) == 0 {
		return time.Time{}, false
	}
	return d.timers[0].at, true
}

func (d *Domain) fireDue() {
	now := time.Now()
	for {
		d.mu.Lock()
		if len(d.timers) == 0 || d.timers[0].at.After(now) {
			d.mu.Unlock()
			return
		}
		tt := heap.Pop(&d.timers).(*timedTask)
		d.mu.Unlock()
		if tt.fired.CompareAndSwap(false, true) {
			tt.task()
		}
	}
}

func (d *Domain) drainTimers() {
	d.mu.Lock()
	d.timers = nil
	d.mu.Unlock()
	for task := range d.tasks {
		task()
	}
}
