package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventID identifies a scheduled event so it can be cancelled.
type EventID uint64

// event is a single entry in the timer queue.
type event struct {
	id  EventID
	at  time.Duration
	seq uint64
	fn  func()
}

// eventQueue orders events by due time, then by insertion order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

// Loop is a single-threaded cooperative event loop.
//
// Every scheduled event and every posted function runs on the goroutine that
// drives the loop (Run, RunFor or RunUntilIdle). State touched only from loop
// callbacks therefore needs no further synchronization. The internal mutex only
// guards the queue against Post and Schedule calls made from other goroutines.
//
// A virtual loop keeps its own clock that advances only while RunFor is
// executing, which makes every interleaving reproducible. A real-time loop
// derives Now from the TimeProvider and sleeps until the next event is due.
type Loop struct {
	mu        sync.Mutex
	queue     eventQueue
	cancelled map[EventID]struct{}
	posted    []func()
	wake      chan struct{}
	nextID    EventID
	seq       uint64

	virtual bool
	now     time.Duration // virtual clock only
	start   time.Time     // real-time clock only
	tp      TimeProvider
}

// NewVirtualLoop creates a loop driven by a virtual clock starting at zero.
func NewVirtualLoop() *Loop {
	return &Loop{
		cancelled: make(map[EventID]struct{}),
		wake:      make(chan struct{}, 1),
		virtual:   true,
	}
}

// NewLoop creates a loop driven by the wall clock of the given TimeProvider.
// A nil provider uses the system clock.
func NewLoop(tp TimeProvider) *Loop {
	tp = getTimeProvider(tp)
	return &Loop{
		cancelled: make(map[EventID]struct{}),
		wake:      make(chan struct{}, 1),
		start:     tp.Now(),
		tp:        tp,
	}
}

// IsVirtual reports whether the loop runs on a virtual clock.
func (l *Loop) IsVirtual() bool {
	return l.virtual
}

// Now returns the time elapsed since the loop was created.
func (l *Loop) Now() time.Duration {
	if l.virtual {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.now
	}
	return l.tp.Now().Sub(l.start)
}

// Timestamp returns the value stamped into outgoing packets: nanoseconds of
// virtual time on a virtual loop, wall-clock Unix nanoseconds otherwise.
func (l *Loop) Timestamp() uint64 {
	if l.virtual {
		return uint64(l.Now())
	}
	return uint64(l.tp.Now().UnixNano())
}

// Elapsed converts a timestamp produced by Timestamp on a loop of the same
// kind into the time passed since then.
func (l *Loop) Elapsed(ts uint64) time.Duration {
	return time.Duration(l.Timestamp() - ts)
}

// Schedule arranges for fn to run on the loop after delay. A non-positive
// delay runs fn after everything already due at the current time.
func (l *Loop) Schedule(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		delay = 0
	}
	now := l.Now()

	l.mu.Lock()
	l.nextID++
	l.seq++
	id := l.nextID
	heap.Push(&l.queue, &event{id: id, at: now + delay, seq: l.seq, fn: fn})
	l.mu.Unlock()

	l.notify()
	return id
}

// Cancel prevents a scheduled event from running. Cancelling an event that
// already ran or was never scheduled is a no-op.
func (l *Loop) Cancel(id EventID) {
	if id == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.queue {
		if e.id == id {
			l.cancelled[id] = struct{}{}
			return
		}
	}
}

// Post queues fn to run on the loop as soon as possible. It is safe to call
// from any goroutine and is how socket readers hand datagrams to the loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.notify()
}

// Call posts fn and waits until it has run on the loop or the context is done.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of scheduled, not yet cancelled events.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) - len(l.cancelled)
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// drainPosted runs every function posted so far.
func (l *Loop) drainPosted() {
	for {
		l.mu.Lock()
		if len(l.posted) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.posted
		l.posted = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// popDue removes and returns the next live event due at or before limit.
func (l *Loop) popDue(limit time.Duration) *event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) > 0 {
		head := l.queue[0]
		if _, dead := l.cancelled[head.id]; dead {
			heap.Pop(&l.queue)
			delete(l.cancelled, head.id)
			continue
		}
		if head.at > limit {
			return nil
		}
		heap.Pop(&l.queue)
		return head
	}
	return nil
}

// nextDue returns the due time of the next live event.
func (l *Loop) nextDue() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) > 0 {
		head := l.queue[0]
		if _, dead := l.cancelled[head.id]; dead {
			heap.Pop(&l.queue)
			delete(l.cancelled, head.id)
			continue
		}
		return head.at, true
	}
	return 0, false
}

// RunFor advances a virtual loop by d, running every event due in that window
// in time order. Posted functions run before each event and once more at the
// end of the window.
func (l *Loop) RunFor(d time.Duration) {
	if !l.virtual {
		panic("scheduler: RunFor requires a virtual loop")
	}
	l.mu.Lock()
	deadline := l.now + d
	l.mu.Unlock()

	for {
		l.drainPosted()
		e := l.popDue(deadline)
		if e == nil {
			break
		}
		l.mu.Lock()
		if e.at > l.now {
			l.now = e.at
		}
		l.mu.Unlock()
		e.fn()
	}

	l.mu.Lock()
	l.now = deadline
	l.mu.Unlock()
	l.drainPosted()
}

// RunUntilIdle runs a virtual loop until no events remain or maxEvents have
// run. It returns the number of events executed.
func (l *Loop) RunUntilIdle(maxEvents int) int {
	if !l.virtual {
		panic("scheduler: RunUntilIdle requires a virtual loop")
	}
	ran := 0
	for ran < maxEvents {
		l.drainPosted()
		at, ok := l.nextDue()
		if !ok {
			break
		}
		e := l.popDue(at)
		if e == nil {
			continue
		}
		l.mu.Lock()
		if e.at > l.now {
			l.now = e.at
		}
		l.mu.Unlock()
		e.fn()
		ran++
	}
	l.drainPosted()
	return ran
}

// Run drives a real-time loop until ctx is done. Events run when their due
// time arrives; posted functions run as soon as they are queued.
func (l *Loop) Run(ctx context.Context) error {
	if l.virtual {
		panic("scheduler: Run requires a real-time loop")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Loop.Run",
	}).Debug("Event loop started")

	timer := l.tp.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.drainPosted()

		if e := l.popDue(l.Now()); e != nil {
			e.fn()
			continue
		}

		var timerC <-chan time.Time
		if at, ok := l.nextDue(); ok {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(at - l.Now())
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "Loop.Run",
				"reason":   ctx.Err().Error(),
			}).Debug("Event loop stopped")
			return ctx.Err()
		case <-l.wake:
		case <-timerC:
		}
	}
}
