// Copyright 2025 Certen Protocol
//
// Bus must deliver synchronously, in registration order, and keep
// delivering to later subscribers even if an earlier one panics.

package notify

import "testing"

func TestBus_DeliversSynchronouslyInOrder(t *testing.T) {
	bus := New()
	var order []int
	bus.Subscribe(KindKeyEventAdded, func(Event) { order = append(order, 1) })
	bus.Subscribe(KindKeyEventAdded, func(Event) { order = append(order, 2) })

	bus.Publish(Event{Kind: KindKeyEventAdded})

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected synchronous in-order delivery [1 2], got %v", order)
	}
}

func TestBus_PublishReturnsOnlyAfterAllSubscribersRun(t *testing.T) {
	bus := New()
	done := false
	bus.Subscribe(KindKeyEventAdded, func(Event) { done = true })
	bus.Publish(Event{Kind: KindKeyEventAdded})
	if !done {
		t.Fatalf("Publish returned before its subscriber ran")
	}
}

func TestBus_PanicInOneSubscriberDoesNotStopSiblings(t *testing.T) {
	bus := New()
	var ranSecond bool
	var logged string
	bus.ErrorLog = func(msg string) { logged = msg }
	bus.Subscribe(KindOutOfOrder, func(Event) { panic("boom") })
	bus.Subscribe(KindOutOfOrder, func(Event) { ranSecond = true })

	bus.Publish(Event{Kind: KindOutOfOrder})

	if !ranSecond {
		t.Fatalf("a panicking subscriber prevented a sibling from running")
	}
	if logged == "" {
		t.Fatalf("expected the panic to be recovered and logged")
	}
}

func TestBus_NoSubscribersIsANoop(t *testing.T) {
	bus := New()
	bus.Publish(Event{Kind: KindReceiptOutOfOrder})
}
