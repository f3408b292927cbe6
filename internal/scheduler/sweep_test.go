package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"loadline_backend/internal/reconcile"
	"loadline_backend/internal/voiceagent"
	"loadline_backend/platform/logger"
)

type sweepPlatform struct {
	listings atomic.Int64
}

func (p *sweepPlatform) ListConversations(context.Context, time.Time) ([]voiceagent.Conversation, error) {
	p.listings.Add(1)
	return nil, nil
}

func (p *sweepPlatform) GetConversation(context.Context, string) (voiceagent.Detail, error) {
	return voiceagent.Detail{}, nil
}

// The sweep loop is the only reconciliation driver when the scheduler binary
// runs without a task queue, so Run must sweep immediately on start and exit
// cleanly on cancellation.
func TestReconcileSweepRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	platform := &sweepPlatform{}
	service := reconcile.NewService(platform, nil, nil, nil, nil, nil, logger.New("development"))
	sweep := NewReconcileSweep(service, logger.New("development"), time.Hour, 24)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for platform.listings.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no sweep ran before the first tick")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	if got := platform.listings.Load(); got != 1 {
		t.Fatalf("expected exactly 1 sweep, got %d", got)
	}
}
