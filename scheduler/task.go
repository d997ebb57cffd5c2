package scheduler

import "time"

// Task is a self-rescheduling periodic activity. Each firing runs fn on the
// loop and, if fn returns true, arms the next firing interval later. Firings of
// the same task never overlap because the next one is armed only after the
// current one returns.
type Task struct {
	loop     *Loop
	interval time.Duration
	fn       func() bool
	pending  EventID
	running  bool
	firings  uint64
}

// Periodic creates a task that fires every interval once started.
func (l *Loop) Periodic(interval time.Duration, fn func() bool) *Task {
	return &Task{
		loop:     l,
		interval: interval,
		fn:       fn,
	}
}

// Start arms the first firing after delay. Starting a running task restarts
// its cadence from now.
func (t *Task) Start(delay time.Duration) {
	t.Stop()
	t.running = true
	t.arm(delay)
}

// Stop cancels the pending firing. A firing that is already executing
// completes but does not reschedule.
func (t *Task) Stop() {
	t.running = false
	if t.pending != 0 {
		t.loop.Cancel(t.pending)
		t.pending = 0
	}
}

// Running reports whether the task will fire again.
func (t *Task) Running() bool {
	return t.running
}

// Firings returns how many times the task has fired.
func (t *Task) Firings() uint64 {
	return t.firings
}

// Interval returns the task period.
func (t *Task) Interval() time.Duration {
	return t.interval
}

func (t *Task) arm(delay time.Duration) {
	t.pending = t.loop.Schedule(delay, t.fire)
}

func (t *Task) fire() {
	t.pending = 0
	if !t.running {
		return
	}
	t.firings++
	if !t.fn() {
		t.running = false
		return
	}
	if t.running {
		t.arm(t.interval)
	}
}
