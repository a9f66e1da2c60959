package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestDispatcher_ProcessesSubmittedEvents(t *testing.T) {
	var mu sync.Mutex
	var processed []Event

	d := NewDispatcher(3, 30, func(ctx context.Context, event Event) error {
		mu.Lock()
		processed = append(processed, event)
		mu.Unlock()
		return nil
	}, nil)
	d.Start()

	for i := 0; i < 10; i++ {
		event := Event{UserID: uuid.NewString(), Kind: KindChatMessage}
		if err := d.Submit(event); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	d.Drain()

	if len(processed) != 10 {
		t.Errorf("Expected 10 processed events, got %d", len(processed))
	}
}

func TestDispatcher_PreservesPerUserOrder(t *testing.T) {
	userID := uuid.NewString()

	var mu sync.Mutex
	var order []string

	d := NewDispatcher(4, 100, func(ctx context.Context, event Event) error {
		mu.Lock()
		order = append(order, event.Title)
		mu.Unlock()
		return nil
	}, nil)
	d.Start()

	for i := 0; i < 20; i++ {
		event := Event{UserID: userID, Kind: KindChatMessage, Title: fmt.Sprintf("%d", i)}
		if err := d.Submit(event); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	d.Drain()

	if len(order) != 20 {
		t.Fatalf("Expected 20 processed events, got %d", len(order))
	}
	// same recipient always lands on the same worker, so submission
	// order survives
	for i, title := range order {
		if title != fmt.Sprintf("%d", i) {
			t.Fatalf("Order broken at %d: got %s", i, title)
		}
	}
}

func TestDispatcher_RejectsWhenSaturated(t *testing.T) {
	userID := uuid.NewString()

	started := make(chan struct{})
	release := make(chan struct{})

	d := NewDispatcher(1, 1, func(ctx context.Context, event Event) error {
		started <- struct{}{}
		<-release
		return nil
	}, nil)
	d.Start()

	// first event occupies the worker
	if err := d.Submit(Event{UserID: userID, Kind: KindChatMessage}); err != nil {
		t.Fatalf("Submit 1 failed: %v", err)
	}
	<-started

	// second fills the queue
	if err := d.Submit(Event{UserID: userID, Kind: KindChatMessage}); err != nil {
		t.Fatalf("Submit 2 failed: %v", err)
	}

	// third must be rejected, not buffered
	if err := d.Submit(Event{UserID: userID, Kind: KindChatMessage}); err != ErrOverloaded {
		t.Fatalf("Expected ErrOverloaded, got %v", err)
	}

	close(release)
	<-started // second event enters processing
	d.Drain()
}

func TestDispatcher_SubmitAfterDrainFails(t *testing.T) {
	d := NewDispatcher(1, 10, func(ctx context.Context, event Event) error {
		return nil
	}, nil)
	d.Start()
	d.Drain()

	err := d.Submit(Event{UserID: uuid.NewString(), Kind: KindChatMessage})
	if err != ErrDispatcherClosed {
		t.Errorf("Expected ErrDispatcherClosed, got %v", err)
	}
}

func TestDispatcher_ProcessingErrorsDoNotStopWorkers(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := NewDispatcher(2, 20, func(ctx context.Context, event Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return fmt.Errorf("store down")
	}, nil)
	d.Start()

	for i := 0; i < 5; i++ {
		if err := d.Submit(Event{UserID: uuid.NewString(), Kind: KindPostDeleted}); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	d.Drain()

	if count != 5 {
		t.Errorf("Expected all 5 events attempted despite errors, got %d", count)
	}
}
