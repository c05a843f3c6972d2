package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/billwise/invoice-autopilot/internal/domain/event"
)

func TestDispatchRunsHandlersInOrder(t *testing.T) {
	d := New(zap.NewNop())

	var calls []string
	d.Subscribe(event.TypeVerdictIssued, "first", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.Subscribe(event.TypeVerdictIssued, "second", func(ctx context.Context, evt *event.Event) error {
		calls = append(calls, "second")
		return nil
	})

	evt := event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("expected [first second], got %v", calls)
	}
}

func TestDispatchStopsAtFirstError(t *testing.T) {
	d := New(zap.NewNop())

	boom := errors.New("boom")
	secondCalled := false
	d.Subscribe(event.TypeVerdictIssued, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.Subscribe(event.TypeVerdictIssued, "after", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped handler error, got %v", err)
	}
	if secondCalled {
		t.Error("handler after the failing one must not run")
	}
}

func TestDispatchIgnoresOtherEventTypes(t *testing.T) {
	d := New(zap.NewNop())

	called := false
	d.Subscribe(event.TypeVerdictIssued, "verdicts", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	evt := event.New(event.TypeWorkflowStateChanged, "inv-1", "wf-1", nil)
	if err := d.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if called {
		t.Error("handler for a different event type must not run")
	}
}

func TestDispatchAsyncCompletesBeforeClose(t *testing.T) {
	d := New(zap.NewNop())

	var mu sync.Mutex
	count := 0
	d.Subscribe(event.TypeVerdictIssued, "counter", func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	for i := 0; i < 10; i++ {
		d.DispatchAsync(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil))
	}

	// Close waits for in-flight handlers
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("expected 10 handled events, got %d", count)
	}
}

func TestClosedDispatcherRejectsEvents(t *testing.T) {
	d := New(zap.NewNop())

	called := false
	d.Subscribe(event.TypeVerdictIssued, "handler", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("second Close should fail")
	}

	if err := d.Dispatch(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil)); err == nil {
		t.Error("Dispatch on a closed dispatcher should fail")
	}
	d.DispatchAsync(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil))
	if called {
		t.Error("no handler should run after Close")
	}
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	d := New(zap.NewNop())

	d.Subscribe(event.TypeVerdictIssued, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil))
	if err == nil {
		t.Fatal("expected an error from the panicking handler")
	}
}

func TestDispatchAsyncSwallowsErrors(t *testing.T) {
	d := New(zap.NewNop())

	d.Subscribe(event.TypeVerdictIssued, "failing", func(ctx context.Context, evt *event.Event) error {
		return errors.New("notify failed")
	})

	// Must not panic or block
	d.DispatchAsync(context.Background(), event.New(event.TypeVerdictIssued, "inv-1", "wf-1", nil))
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
