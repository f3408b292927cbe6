package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"loadline_backend/platform/logger"
)

const defaultPoolTimeout = 2 * time.Minute

// Pool is the in-process fallback dispatcher used when Redis is not
// configured: fire-and-forget with bounded concurrency, so bursty webhook
// traffic cannot spawn unbounded goroutines. Processing failures surface
// only in the event row, never to the caller. Implements intake.Dispatcher.
type Pool struct {
	processor CallProcessor
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	timeout   time.Duration
	log       *logger.Logger
}

// NewPool creates a pool running at most maxConcurrent pipelines at once.
func NewPool(processor CallProcessor, maxConcurrent int, log *logger.Logger) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &Pool{
		processor: processor,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:   defaultPoolTimeout,
		log:       log,
	}
}

// Dispatch starts processing in the background. It blocks only while the
// pool is saturated, holding backpressure instead of queueing unboundedly.
func (p *Pool) Dispatch(ctx context.Context, conversationID string) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()

		if err := p.processor.ProcessCompletion(runCtx, conversationID); err != nil {
			p.log.Error("background call processing failed",
				"conversation_id", conversationID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until all in-flight work finishes. Used on shutdown and in
// tests.
func (p *Pool) Wait() {
	p.wg.Wait()
}
