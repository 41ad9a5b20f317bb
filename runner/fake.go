package runner

import (
	"time"

	"libweave/clock"
)

// FakeRunner is a deterministic TaskRunner for tests: it never spawns a
// goroutine. Callers advance time explicitly with Advance/RunUntilIdle, per
// the teacher's design note of driving tests by "advancing a mock clock and
// pumping until quiescence."
type FakeRunner struct {
	c       *clock.Fake
	queue   []task
	nextSeq uint64
}

// NewFake returns a FakeRunner bound to c.
func NewFake(c *clock.Fake) *FakeRunner {
	return &FakeRunner{c: c}
}

func (f *FakeRunner) PostTask(fn func()) {
	f.PostDelayedTask(fn, 0)
}

func (f *FakeRunner) PostDelayedTask(fn func(), delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	f.queue = append(f.queue, task{due: f.c.Now().Add(delay), seq: f.nextSeq, fn: fn})
	f.nextSeq++
}

// Pending reports how many tasks (immediate or delayed) are still queued.
func (f *FakeRunner) Pending() int { return len(f.queue) }

// RunUntilIdle executes every task whose due time has already passed,
// including tasks newly posted by a running task, until none remain ready.
func (f *FakeRunner) RunUntilIdle() {
	for {
		idx := f.dueIndexLocked()
		if idx < 0 {
			return
		}
		fn := f.queue[idx].fn
		f.queue = append(f.queue[:idx], f.queue[idx+1:]...)
		fn()
	}
}

// Advance moves the fake clock forward by d, running every task that
// becomes due along the way in (due, seq) order, then runs to idle again.
func (f *FakeRunner) Advance(d time.Duration) {
	target := f.c.Now().Add(d)
	for {
		f.RunUntilIdle()
		idx := f.earliestIndex()
		if idx < 0 || f.queue[idx].due.After(target) {
			break
		}
		f.c.Set(f.queue[idx].due)
		fn := f.queue[idx].fn
		f.queue = append(f.queue[:idx], f.queue[idx+1:]...)
		fn()
	}
	f.c.Set(target)
	f.RunUntilIdle()
}

func (f *FakeRunner) dueIndexLocked() int {
	now := f.c.Now()
	best := -1
	for i, t := range f.queue {
		if t.due.After(now) {
			continue
		}
		if best < 0 || less(f.queue[i], f.queue[best]) {
			best = i
		}
	}
	return best
}

func (f *FakeRunner) earliestIndex() int {
	if len(f.queue) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(f.queue); i++ {
		if less(f.queue[i], f.queue[best]) {
			best = i
		}
	}
	return best
}

func less(a, b task) bool {
	if a.due.Equal(b.due) {
		return a.seq < b.seq
	}
	return a.due.Before(b.due)
}
