package dispatch

import (
	"sync"
	"testing"
)

func TestQueueRunsInSubmissionOrder(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	var mu sync.Mutex
	var got []int

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		q.Async(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran out of order: got %d", i, v)
		}
	}
}

func TestQueueSyncWaits(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	ran := false
	q.Sync(func() { ran = true })
	if !ran {
		t.Fatal("Sync returned before fn ran")
	}
}

func TestQueueSerializesConcurrentSubmitters(t *testing.T) {
	q := NewQueue("test")
	defer q.Close()

	// A counter incremented without its own lock: the queue is the only
	// thing keeping this race-free.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go q.Async(func() {
			defer wg.Done()
			counter++
		})
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestQueueCloseDrainsPendingWork(t *testing.T) {
	q := NewQueue("test")

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		q.Async(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	q.Close()

	if ran != 10 {
		t.Fatalf("ran = %d, want 10", ran)
	}

	// Submissions after Close are dropped, and Sync must not hang.
	q.Async(func() { t.Error("async fn ran on closed queue") })
	q.Sync(func() { t.Error("sync fn ran on closed queue") })
}

func TestQueueCloseIsIdempotent(t *testing.T) {
	q := NewQueue("test")
	q.Close()
	q.Close()
}
