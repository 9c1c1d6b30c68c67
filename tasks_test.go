package doclock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTasks_RetryUntilReaderLeaves(t *testing.T) {
	doc := NewDocument(0)
	r, err := OpenRead(doc, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	var attempts atomic.Int32
	tasks := NewTasks[*Document[int]](context.Background(),
		WithRetry(RetryPolicy{Attempts: 50, Timeout: 10 * time.Millisecond, Backoff: time.Millisecond}),
	)
	tasks.GoWrite(doc, func(_ context.Context, d *Document[int]) error {
		attempts.Add(1)
		*d.Value() = 42
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	r.Close()

	if err := tasks.Wait(); err != nil {
		t.Fatal(err)
	}
	if attempts.Load() != 1 {
		t.Fatalf("task body ran %d times", attempts.Load())
	}
	if *doc.Value() != 42 {
		t.Fatalf("value=%d", *doc.Value())
	}
	wantMode(t, &doc.LockState, Mode{})
}

func TestTasks_GivesUp(t *testing.T) {
	doc := NewDocument(0)
	w, _ := OpenWrite(doc, time.Second)
	defer w.Close()

	tasks := NewTasks[*Document[int]](context.Background(),
		WithRetry(RetryPolicy{Attempts: 3, Timeout: 5 * time.Millisecond}),
	)
	var ran atomic.Bool
	tasks.GoRead(doc, func(context.Context, *Document[int]) error {
		ran.Store(true)
		return nil
	})

	err := tasks.Wait()
	var te *LockTimeoutError
	if !errors.As(err, &te) || te.Op != "acquire shared" {
		t.Fatalf("err=%v, want shared lock timeout", err)
	}
	if ran.Load() {
		t.Fatal("task body ran without the lock")
	}
}

func TestTasks_ErrorCancelsOthers(t *testing.T) {
	doc := NewDocument(0)
	boom := errors.New("boom")

	tasks := NewTasks[*Document[int]](context.Background(),
		WithLimit(2),
		WithRetry(RetryPolicy{Attempts: 1000, Timeout: 5 * time.Millisecond, Backoff: time.Millisecond}),
	)
	// The first task fails while holding the lock; the second is stuck
	// behind a foreground writer and must stop retrying once the group is
	// canceled.
	w, _ := OpenWrite(doc, time.Second)
	defer w.Close()

	tasks.GoRead(doc, func(context.Context, *Document[int]) error { return nil })
	tasks.g.Go(func() error { return boom })

	if err := tasks.Wait(); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}

func TestTasks_BodySeesCancellation(t *testing.T) {
	doc := NewDocument(0)
	boom := errors.New("boom")
	tasks := NewTasks[*Document[int]](context.Background())

	started := make(chan struct{})
	canceled := make(chan bool, 1)
	tasks.GoRead(doc, func(ctx context.Context, _ *Document[int]) error {
		close(started)
		select {
		case <-ctx.Done():
			canceled <- true
		case <-time.After(slack(5 * time.Second)):
			canceled <- false
		}
		return nil
	})
	<-started
	tasks.GoWrite(doc, func(context.Context, *Document[int]) error { return nil })
	tasks.g.Go(func() error { return boom })

	if err := tasks.Wait(); !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if !<-canceled {
		t.Fatal("long-running body did not see the group cancel")
	}
	wantMode(t, &doc.LockState, Mode{})
}

func TestTasks_ConcurrentReaders(t *testing.T) {
	doc := NewDocument(5)
	tasks := NewTasks[*Document[int]](context.Background(), WithLimit(4))

	var sum atomic.Int64
	for range 16 {
		tasks.GoRead(doc, func(_ context.Context, d *Document[int]) error {
			sum.Add(int64(*d.Value()))
			return nil
		})
	}
	if err := tasks.Wait(); err != nil {
		t.Fatal(err)
	}
	if sum.Load() != 80 {
		t.Fatalf("sum=%d", sum.Load())
	}
	wantMode(t, &doc.LockState, Mode{})
}
