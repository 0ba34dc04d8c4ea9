package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Put(i)
	}
	if q.Len() != 3 {
		t.Errorf("expected len 3, got %d", q.Len())
	}

	ctx := context.Background()
	for want := 1; want <= 3; want++ {
		got, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
		q.Done()
	}
}

func TestQueue_GetBlocksUntilPut(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)

	go func() {
		v, err := q.Get(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Get returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	q.Put("batch")
	select {
	case v := <-got:
		if v != "batch" {
			t.Errorf("expected 'batch', got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Put")
	}
}

func TestQueue_GetCancelled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_Join(t *testing.T) {
	q := New[int]()
	ctx := context.Background()

	// Join on an empty queue returns immediately.
	if err := q.Join(ctx); err != nil {
		t.Fatalf("Join on empty queue: %v", err)
	}

	q.Put(1)
	q.Put(2)

	joined := make(chan struct{})
	go func() {
		_ = q.Join(ctx)
		close(joined)
	}()

	for i := 0; i < 2; i++ {
		if _, err := q.Get(ctx); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	q.Done()

	select {
	case <-joined:
		t.Fatal("Join returned with an unacknowledged item")
	case <-time.After(20 * time.Millisecond):
	}

	q.Done()
	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("Join did not return after all items were acknowledged")
	}
}

func TestQueue_JoinTimeout(t *testing.T) {
	q := New[int]()
	q.Put(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	q := New[int]()
	const n = 500
	for i := 0; i < n; i++ {
		q.Put(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[int]bool)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Get(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
				q.Done()
			}
		}()
	}

	if err := q.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	cancel()
	wg.Wait()

	if len(seen) != n {
		t.Errorf("expected %d distinct items, got %d", n, len(seen))
	}
}

func TestQueue_DonePanicsWhenUnbalanced(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New[int]().Done()
}
