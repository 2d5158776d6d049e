package memory

import (
	"sync"
	"testing"
	"time"
)

func TestTaskQueue_RunsTasksInOrder(t *testing.T) {
	q := newTaskQueue(16)
	defer q.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{})

	for i := 0; i < 5; i++ {
		i := i
		last := i == 4
		if !q.Enqueue(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if last {
				close(done)
			}
		}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestTaskQueue_DropsWhenSaturated(t *testing.T) {
	q := newTaskQueue(1)
	defer q.Close()

	block := make(chan struct{})
	// Occupy the worker, then fill the single buffer slot.
	if !q.Enqueue(func() { <-block }) {
		t.Fatalf("first enqueue rejected")
	}
	// The worker may not have picked up the first task yet; keep trying
	// until exactly the buffer slot is taken.
	deadline := time.Now().Add(time.Second)
	for !q.Enqueue(func() {}) {
		if time.Now().After(deadline) {
			t.Fatalf("buffer slot never freed")
		}
		time.Sleep(time.Millisecond)
	}

	// Worker blocked, buffer full: the next task must be rejected, not block.
	start := time.Now()
	if q.Enqueue(func() {}) {
		t.Fatalf("saturated queue accepted a task")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("enqueue on a full queue blocked")
	}
	close(block)
}

func TestTaskQueue_CloseDrainsAcceptedTasks(t *testing.T) {
	q := newTaskQueue(16)

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 8; i++ {
		if !q.Enqueue(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	q.Close()

	mu.Lock()
	defer mu.Unlock()
	if ran != 8 {
		t.Fatalf("close dropped accepted tasks: ran %d of 8", ran)
	}
}

func TestTaskQueue_RejectsAfterClose(t *testing.T) {
	q := newTaskQueue(4)
	q.Close()

	if q.Enqueue(func() {}) {
		t.Fatalf("closed queue accepted a task")
	}
	// Close is idempotent.
	q.Close()
}
