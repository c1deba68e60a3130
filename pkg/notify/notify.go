// Copyright 2025 Certen Protocol
//
// Bus is the typed multi-producer, multi-subscriber notification bus the
// validator uses to route events it cannot immediately finish validating
// to the escrow subsystem (spec.md §5), and to announce newly-accepted
// events to interested listeners (e.g. pkg/coordinator).
// Grounded on pkg/batch/attestation_broadcaster.go's fan-out pattern in the
// teacher repository, but synchronous rather than channel-based: spec.md
// §5 requires that "notifications themselves are processed synchronously
// to completion before the originating validator call returns", so an
// escrow has always observed KeyEventAdded before the next inbound event
// for the same identifier can be validated. A channel-and-goroutine fan-out
// cannot make that guarantee (and can silently drop events under
// backpressure), so Publish instead calls every subscriber directly, in
// registration order, on the publisher's own goroutine.
package notify

import (
	"fmt"
	"sync"
)

// Kind names a notification category. The escrow subsystem (pkg/escrow)
// subscribes to the kinds it owns; pkg/coordinator subscribes to
// KeyEventAdded and TelEventAdded.
type Kind string

const (
	KindOutOfOrder         Kind = "out_of_order"
	KindPartiallySigned    Kind = "partially_signed"
	KindPartiallyWitnessed Kind = "partially_witnessed"
	KindReceiptOutOfOrder  Kind = "receipt_out_of_order"
	KindMissingDelegator   Kind = "missing_delegator"
	KindMissingRegistry    Kind = "missing_registry"
	KindMissingIssuer      Kind = "missing_issuer"
	KindKeyEventAdded      Kind = "key_event_added"
	KindTelEventAdded      Kind = "tel_event_added"
	KindKsnOutOfOrder      Kind = "ksn_out_of_order"
	KindTelOutOfOrder      Kind = "tel_out_of_order"
)

// Event is one notification. Payload's concrete type is established by
// convention per Kind (see pkg/escrow for the payload types each kind
// carries); the bus itself is payload-agnostic.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler reacts to one published Event. A handler that itself calls
// Publish (e.g. an escrow resubmitting a candidate to the validator, which
// in turn publishes KeyEventAdded again) is the expected reentrant shape
// described in spec.md §9's design note: the cyclic escrow<->validator
// dependency is broken by routing through the bus rather than direct
// mutual calls.
type Handler func(Event)

// Bus fans out published events to every subscriber registered for that
// event's kind, synchronously and in registration order. A handler that
// panics is recovered and logged (via ErrorLog, if set); sibling handlers
// still run, matching spec.md §4.5 ("errors are logged and do not abort
// siblings").
type Bus struct {
	mu          sync.Mutex
	subscribers map[Kind][]Handler

	// ErrorLog receives one line per recovered handler panic. If nil, the
	// line is written with fmt.Println.
	ErrorLog func(string)
}

// New returns an empty Bus.
func New(_ ...int) *Bus {
	return &Bus{subscribers: make(map[Kind][]Handler)}
}

// Subscribe registers handler to run, in order, whenever Publish is called
// with a matching Kind. Subscriptions are permanent for the Bus's
// lifetime; there is no Unsubscribe, since every subscriber (the escrows,
// the coordinator) lives as long as the agent process itself.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], handler)
}

// Publish invokes every subscriber of ev.Kind in the order it subscribed,
// synchronously, before returning. This is what guarantees an escrow has
// observed a KeyEventAdded/TelEventAdded notification before the validator
// call that published it returns (spec.md §5).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	subs := append([]Handler(nil), b.subscribers[ev.Kind]...)
	b.mu.Unlock()

	for _, h := range subs {
		b.invoke(h, ev)
	}
}

func (b *Bus) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("notify: subscriber for %s panicked: %v", ev.Kind, r)
			if b.ErrorLog != nil {
				b.ErrorLog(msg)
			} else {
				fmt.Println(msg)
			}
		}
	}()
	h(ev)
}
