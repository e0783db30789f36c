package event

import (
	"sync"
	"testing"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := NewBus()

	var got Event
	dispose := bus.Subscribe(TopicStatusChanged, func(e Event) {
		got = e
	})
	defer dispose()

	bus.Publish(NewStatusChangedEvent("sess-1", "todo", "doing"))

	sc, ok := got.(StatusChangedEvent)
	if !ok {
		t.Fatalf("expected StatusChangedEvent, got %T", got)
	}
	if sc.SessionID != "sess-1" || sc.From != "todo" || sc.To != "doing" {
		t.Errorf("unexpected event payload: %+v", sc)
	}
	if sc.EventType() != TopicStatusChanged {
		t.Errorf("EventType() = %q, want %q", sc.EventType(), TopicStatusChanged)
	}
	if sc.Timestamp().IsZero() {
		t.Error("event timestamp should be set")
	}
}

func TestBusMultipleHandlersSameTopic(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(TopicLockConflict, func(e Event) { calls++ })
	bus.Subscribe(TopicLockConflict, func(e Event) { calls++ })
	bus.Subscribe(TopicStepStarted, func(e Event) {
		t.Error("handler for a different topic should not fire")
	})

	bus.Publish(NewLockConflictEvent("sess-1", "/p/x.ts", "sess-2"))

	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()

	var types []string
	dispose := bus.SubscribeAll(func(e Event) {
		types = append(types, e.EventType())
	})
	defer dispose()

	bus.Publish(NewAgentCreatedEvent("sess-1", "/p"))
	bus.Publish(NewAgentDeletedEvent("sess-1"))

	if len(types) != 2 || types[0] != TopicAgentCreated || types[1] != TopicAgentDeleted {
		t.Errorf("wildcard handler saw %v", types)
	}
}

func TestBusDisposerRemovesSubscription(t *testing.T) {
	bus := NewBus()

	calls := 0
	dispose := bus.Subscribe(TopicMessageAdded, func(e Event) { calls++ })

	dispose()
	bus.Publish(NewMessageAddedEvent("sess-1", "msg-1", "user"))

	if calls != 0 {
		t.Errorf("disposed handler was still called %d times", calls)
	}
	if n := bus.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d after dispose, want 0", n)
	}
}

func TestBusDisposerIsIdempotent(t *testing.T) {
	bus := NewBus()

	calls := 0
	d1 := bus.Subscribe(TopicStepCompleted, func(e Event) { calls++ })
	d2 := bus.Subscribe(TopicStepCompleted, func(e Event) { calls++ })

	d1()
	d1() // second call must not remove the sibling subscription

	bus.Publish(NewStepCompletedEvent("sess-1", 0, 1))

	if calls != 1 {
		t.Errorf("expected exactly the surviving handler to fire once, got %d calls", calls)
	}
	d2()
}

func TestBusSpecificHandlersBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TopicNeedsClarification, func(e Event) { order = append(order, "specific") })

	bus.Publish(NewNeedsClarificationEvent("sess-1", "which port?"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("dispatch order = %v, want [specific wildcard]", order)
	}
}

func TestBusPanickingHandlerDoesNotBlockDelivery(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe(TopicExecutionAborted, func(e Event) { panic("boom") })
	bus.Subscribe(TopicExecutionAborted, func(e Event) { delivered = true })

	bus.Publish(NewExecutionAbortedEvent("sess-1", "operator stop"))

	if !delivered {
		t.Error("handler after the panicking one was not called")
	}
}

func TestBusClear(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TopicStepFailed, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})
	bus.Clear()

	if n := bus.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear, want 0", n)
	}
}

func TestBusConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	seen := 0
	bus.Subscribe(TopicStepStarted, func(e Event) {
		mu.Lock()
		seen++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(step int) {
			defer wg.Done()
			bus.Publish(NewStepStartedEvent("sess-1", step))
		}(i)
		go func() {
			defer wg.Done()
			dispose := bus.Subscribe(TopicStepCompleted, func(e Event) {})
			dispose()
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if seen != 10 {
		t.Errorf("expected 10 deliveries, got %d", seen)
	}
}
