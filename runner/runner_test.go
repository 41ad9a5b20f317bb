package runner

import (
	"sync"
	"testing"
	"time"

	"libweave/clock"
)

func TestRunner_FIFOOrder(t *testing.T) {
	r := New()
	r.Start()
	defer r.Stop()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		r.PostTask(func() {
			mu.Lock()
			order = append(order, i)
			if len(order) == 5 {
				close(done)
			}
			mu.Unlock()
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0..4", order)
		}
	}
}

func TestRunner_DelayedRunsAfterImmediate(t *testing.T) {
	r := New()
	r.Start()
	defer r.Stop()

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	r.PostDelayedTask(func() {
		mu.Lock()
		order = append(order, "delayed")
		mu.Unlock()
		close(done)
	}, 20*time.Millisecond)

	r.PostTask(func() {
		mu.Lock()
		order = append(order, "immediate")
		mu.Unlock()
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "immediate" || order[1] != "delayed" {
		t.Fatalf("order = %v", order)
	}
}

func TestFakeRunner_RunUntilIdleDrainsImmediate(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	f := NewFake(c)

	var order []int
	f.PostTask(func() {
		order = append(order, 1)
		f.PostTask(func() { order = append(order, 2) })
	})

	f.RunUntilIdle()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v", order)
	}
	if f.Pending() != 0 {
		t.Fatalf("expected no pending tasks, got %d", f.Pending())
	}
}

func TestFakeRunner_AdvanceFiresDueDelayedTasksInOrder(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	f := NewFake(c)

	var order []string
	f.PostDelayedTask(func() { order = append(order, "b") }, 2*time.Second)
	f.PostDelayedTask(func() { order = append(order, "a") }, 1*time.Second)
	f.PostDelayedTask(func() { order = append(order, "late") }, 10*time.Second)

	f.Advance(3 * time.Second)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
	if f.Pending() != 1 {
		t.Fatalf("expected the 10s task still pending, got %d", f.Pending())
	}
}

func TestFakeRunner_DelayedTaskFIFOTieBreak(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	f := NewFake(c)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		f.PostDelayedTask(func() { order = append(order, i) }, time.Second)
	}

	f.Advance(time.Second)

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("order = %v, want [0 1 2]", order)
	}
}

func TestFakeRunner_AdvanceRunsTaskPostedByDelayedTask(t *testing.T) {
	c := clock.NewFake(time.Unix(0, 0))
	f := NewFake(c)

	var ran bool
	f.PostDelayedTask(func() {
		f.PostTask(func() { ran = true })
	}, time.Second)

	f.Advance(time.Second)

	if !ran {
		t.Fatal("expected chained immediate task to run within the same Advance")
	}
}
