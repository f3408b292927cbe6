package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

type testEvent struct {
	BaseEvent
	name string
}

func (e testEvent) EventName() string { return e.name }

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewInMemoryBus(nil)

	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, event Event) error {
		calls.Add(1)
		return nil
	})

	bus.Subscribe("calls.test", handler)
	bus.Subscribe("calls.test", handler)
	bus.Subscribe("calls.other", handler)

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "calls.test"})
	bus.Wait()

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", got)
	}
}

func TestPublishSyncReturnsFirstHandlerError(t *testing.T) {
	bus := NewInMemoryBus(nil)

	wantErr := errors.New("handler failed")
	bus.Subscribe("calls.test", HandlerFunc(func(ctx context.Context, event Event) error {
		return wantErr
	}))
	bus.Subscribe("calls.test", HandlerFunc(func(ctx context.Context, event Event) error {
		return nil
	}))

	err := bus.PublishSync(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "calls.test"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestPublishWithNoSubscribersIsANoOp(t *testing.T) {
	bus := NewInMemoryBus(nil)
	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "calls.unheard"})
	bus.Wait()
}

func TestHandlerPanicDoesNotEscapePublish(t *testing.T) {
	bus := NewInMemoryBus(nil)
	bus.Subscribe("calls.test", HandlerFunc(func(ctx context.Context, event Event) error {
		panic("boom")
	}))

	bus.Publish(context.Background(), testEvent{BaseEvent: NewBaseEvent(), name: "calls.test"})
	bus.Wait()
}
