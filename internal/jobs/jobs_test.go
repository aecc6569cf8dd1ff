package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCollapsesBurstIntoLatestCall(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(60 * time.Millisecond)
	var calls int32
	var last int32
	done := make(chan struct{}, 10)

	for i := 1; i <= 10; i++ {
		i := i
		d.Trigger(func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, int32(i))
			done <- struct{}{}
		})
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("debounced call never ran")
	}
	time.Sleep(150 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly one execution, got %d", got)
	}
	if got := atomic.LoadInt32(&last); got != 10 {
		t.Fatalf("expected latest trigger to win, got %d", got)
	}
	if d.Pending() {
		t.Fatalf("expected nothing pending after execution")
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	t.Parallel()

	d := NewDebouncer(time.Hour)
	ran := false
	d.Trigger(func() { ran = true })
	if !d.Pending() {
		t.Fatalf("expected pending call")
	}
	if !d.Flush() || !ran {
		t.Fatalf("expected Flush to run the pending call")
	}
	if d.Flush() {
		t.Fatalf("second Flush should be a no-op")
	}

	d.Trigger(func() { t.Errorf("stopped call must not run") })
	d.Stop()
	if d.Pending() {
		t.Fatalf("expected Stop to drop the pending call")
	}
}

func TestCoalescerCollapsesConcurrentRequests(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var executions int32

	c := NewCoalescer("save", func(ctx context.Context) error {
		n := atomic.AddInt32(&executions, 1)
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return nil
	}, nil)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Run(context.Background()) }()
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(context.Background()); err != nil {
				t.Errorf("pending Run returned %v", err)
			}
		}()
	}
	wg.Wait()
	close(release)

	if err := <-firstDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := atomic.LoadInt32(&executions); got != 2 {
		t.Fatalf("expected 2 executions, got %d", got)
	}
	if c.Busy() {
		t.Fatalf("coalescer should be idle")
	}
	if last := c.Last(); last.Status != StatusSucceeded || last.ID != "save-2" {
		t.Fatalf("unexpected last snapshot %+v", last)
	}
}

func TestCoalescerReportsFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	var seen []Snapshot
	c := NewCoalescer("rebuild", func(context.Context) error { return boom }, nil)
	c.OnFinish = func(s Snapshot) { seen = append(seen, s) }

	if err := c.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
	if len(seen) != 1 || seen[0].Status != StatusFailed || seen[0].Err != "disk full" {
		t.Fatalf("unexpected snapshots %+v", seen)
	}
}

func TestCoalescerMarksCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCoalescer("chat", func(ctx context.Context) error { return ctx.Err() }, nil)
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if c.Last().Status != StatusCanceled {
		t.Fatalf("expected canceled status, got %s", c.Last().Status)
	}
}

func TestCoalescerFollowUpOutlivesCancelledRunner(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var executions int32
	c := NewCoalescer("save", func(ctx context.Context) error {
		n := atomic.AddInt32(&executions, 1)
		started <- struct{}{}
		if n == 1 {
			<-release
		}
		return ctx.Err()
	}, nil)

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Run(runnerCtx) }()
	<-started

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("pending Run returned %v", err)
	}
	cancelRunner()
	close(release)

	if err := <-firstDone; err != nil {
		t.Fatalf("follow-up pass should run under the live context, got %v", err)
	}
	if got := atomic.LoadInt32(&executions); got != 2 {
		t.Fatalf("expected 2 executions, got %d", got)
	}
	if last := c.Last(); last.Status != StatusSucceeded {
		t.Fatalf("unexpected last snapshot %+v", last)
	}
}

func TestCoalescerSkipsFollowUpOfCancelledRequester(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var executions int32
	c := NewCoalescer("save", func(ctx context.Context) error {
		if atomic.AddInt32(&executions, 1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}, nil)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Run(context.Background()) }()
	<-started

	requester, cancel := context.WithCancel(context.Background())
	if err := c.Run(requester); err != nil {
		t.Fatalf("pending Run returned %v", err)
	}
	cancel()
	close(release)

	if err := <-firstDone; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Fatalf("expected the cancelled follow-up to be skipped, got %d executions", got)
	}
	if c.Busy() {
		t.Fatalf("coalescer should be idle")
	}
}
