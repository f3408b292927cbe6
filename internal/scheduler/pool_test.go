package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"loadline_backend/platform/logger"
)

type countingProcessor struct {
	mu        sync.Mutex
	current   int32
	maxSeen   int32
	processed atomic.Int32
	block     chan struct{}
}

func (p *countingProcessor) ProcessCompletion(_ context.Context, _ string) error {
	cur := atomic.AddInt32(&p.current, 1)
	p.mu.Lock()
	if cur > p.maxSeen {
		p.maxSeen = cur
	}
	p.mu.Unlock()

	if p.block != nil {
		<-p.block
	}
	atomic.AddInt32(&p.current, -1)
	p.processed.Add(1)
	return nil
}

func TestPoolProcessesAllDispatches(t *testing.T) {
	proc := &countingProcessor{}
	pool := NewPool(proc, 4, logger.New("development"))

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if err := pool.Dispatch(ctx, "conv"); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	pool.Wait()

	if got := proc.processed.Load(); got != 20 {
		t.Fatalf("processed = %d, want 20", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	proc := &countingProcessor{block: make(chan struct{})}
	pool := NewPool(proc, 3, logger.New("development"))

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 9; i++ {
			pool.Dispatch(ctx, "conv")
		}
		close(done)
	}()

	close(proc.block)
	<-done
	pool.Wait()

	proc.mu.Lock()
	maxSeen := proc.maxSeen
	proc.mu.Unlock()
	if maxSeen > 3 {
		t.Fatalf("concurrency exceeded bound: %d", maxSeen)
	}
	if got := proc.processed.Load(); got != 9 {
		t.Fatalf("processed = %d, want 9", got)
	}
}

func TestPoolDispatchFailsOnCancelledContext(t *testing.T) {
	proc := &countingProcessor{block: make(chan struct{})}
	pool := NewPool(proc, 1, logger.New("development"))

	ctx := context.Background()
	if err := pool.Dispatch(ctx, "first"); err != nil {
		t.Fatal(err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := pool.Dispatch(cancelled, "second"); err == nil {
		t.Fatal("expected acquire failure on cancelled context while saturated")
	}

	close(proc.block)
	pool.Wait()
}
