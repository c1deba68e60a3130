// Copyright 2025 Certen Protocol
//
// Manager owns one Store per escrow kind spec.md §5 names, and subscribes
// each to its pkg/notify.Kind so the validator's publish calls land
// directly in the right escrow without the validator needing to know the
// escrow subsystem's internals. Subscriptions only buffer; re-submitting a
// buffered candidate to the validator/TEL engine once its precondition
// resolves is pkg/coordinator's job (spec.md §9's note that the cyclic
// escrow<->validator dependency is broken by routing through the bus
// rather than a direct import cycle).

package escrow

import (
	"fmt"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/notify"
)

// OutOfOrderPayload escrows a KEL event that arrived before an earlier sn
// in its own identifier's chain.
type OutOfOrderPayload struct {
	Event *event.KeyEvent
	Sigs  []codec.IndexedSignature
}

// PartiallySignedPayload escrows an event that has not yet collected
// enough signatures to meet its signing threshold.
type PartiallySignedPayload struct {
	Event *event.KeyEvent
	Sigs  []codec.IndexedSignature
}

// PartiallyWitnessedPayload escrows an accepted event awaiting more
// witness receipts to meet its witness threshold.
type PartiallyWitnessedPayload struct {
	Event    *event.KeyEvent
	Receipts []event.Receipt
}

// ReceiptOutOfOrderPayload escrows a receipt that arrived before the event
// it receipts.
type ReceiptOutOfOrderPayload struct {
	Receipt *event.Receipt
}

// MissingDelegatorPayload escrows a delegated establishment event awaiting
// the delegator's anchoring seal.
type MissingDelegatorPayload struct {
	Event *event.KeyEvent
	Sigs  []codec.IndexedSignature
}

// ReplyPayload escrows an OOBI/KSN reply that could not yet be ordered
// against the signer's KEL (its last-establishment sn was unknown).
type ReplyPayload struct {
	Reply *event.Reply
}

// TelMissingIssuerPayload escrows a TEL event whose issuing identifier's
// KEL is not yet known locally. Key is the escrow key the publisher
// (pkg/tel) assigns, since this package stays decoupled from the TEL
// event type to avoid an import cycle.
type TelMissingIssuerPayload struct {
	Key      string
	RawEvent []byte
}

// TelMissingRegistryPayload escrows a credential TEL event (iss/bis/rev/brv)
// whose registry inception (vcp) has not yet been seen.
type TelMissingRegistryPayload struct {
	Key      string
	RawEvent []byte
}

// TelOutOfOrderPayload escrows a TEL event that arrived before an earlier
// sn in its own registry's or credential's chain.
type TelOutOfOrderPayload struct {
	Key      string
	RawEvent []byte
}

// MergeIndexedSignatures unions existing and incoming, keeping one signature
// per distinct Index.Current position (first one seen wins) -- the
// deduplicated accumulation spec.md §4.5 describes for the partially-signed
// escrow: a group member re-forwarding its own signature, or a different
// member's signature arriving later, must not lose ground already made.
func MergeIndexedSignatures(existing, incoming []codec.IndexedSignature) []codec.IndexedSignature {
	seen := make(map[int]bool, len(existing))
	out := make([]codec.IndexedSignature, 0, len(existing)+len(incoming))
	for _, s := range existing {
		if seen[s.Index.Current] {
			continue
		}
		seen[s.Index.Current] = true
		out = append(out, s)
	}
	for _, s := range incoming {
		if seen[s.Index.Current] {
			continue
		}
		seen[s.Index.Current] = true
		out = append(out, s)
	}
	return out
}

// Manager holds every escrow the validator and agent consult.
type Manager struct {
	OutOfOrder         *Store
	PartiallySigned    *Store
	PartiallyWitnessed *Store
	ReceiptOutOfOrder  *Store
	MissingDelegator   *Store
	Reply              *Store
	TelMissingIssuer   *Store
	TelMissingRegistry *Store
	TelOutOfOrder      *Store
}

// NewManager builds a Manager with every escrow bounded by cfg and
// subscribed to its corresponding notify.Kind on bus.
func NewManager(bus *notify.Bus, cfg Config) *Manager {
	m := &Manager{
		OutOfOrder:         NewStore(cfg),
		PartiallySigned:    NewStore(cfg),
		PartiallyWitnessed: NewStore(cfg),
		ReceiptOutOfOrder:  NewStore(cfg),
		MissingDelegator:   NewStore(cfg),
		Reply:              NewStore(cfg),
		TelMissingIssuer:   NewStore(cfg),
		TelMissingRegistry: NewStore(cfg),
		TelOutOfOrder:      NewStore(cfg),
	}
	m.wire(bus)
	return m
}

// wire subscribes every escrow's Put to its notify.Kind, synchronously:
// by the time the publishing validator call returns, every escrow that
// cares about that notification has already buffered its candidate
// (spec.md §5's ordering guarantee).
func (m *Manager) wire(bus *notify.Bus) {
	bus.Subscribe(notify.KindOutOfOrder, func(ev notify.Event) {
		p := ev.Payload.(OutOfOrderPayload)
		key, err := OutOfOrderKey(p.Event.Prefix, p.Event.Sn)
		if err != nil {
			return
		}
		_ = m.OutOfOrder.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindPartiallySigned, func(ev notify.Event) {
		p := ev.Payload.(PartiallySignedPayload)
		key, err := DigestKey(p.Event.Digest)
		if err != nil {
			return
		}
		_ = m.PartiallySigned.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindPartiallyWitnessed, func(ev notify.Event) {
		p := ev.Payload.(PartiallyWitnessedPayload)
		key, err := DigestKey(p.Event.Digest)
		if err != nil {
			return
		}
		_ = m.PartiallyWitnessed.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindReceiptOutOfOrder, func(ev notify.Event) {
		p := ev.Payload.(ReceiptOutOfOrderPayload)
		key, err := DigestKey(p.Receipt.Digest)
		if err != nil {
			return
		}
		_ = m.ReceiptOutOfOrder.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindMissingDelegator, func(ev notify.Event) {
		p := ev.Payload.(MissingDelegatorPayload)
		key, err := DelegationKey(*p.Event.Delegator, p.Event.Digest)
		if err != nil {
			return
		}
		_ = m.MissingDelegator.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindKsnOutOfOrder, func(ev notify.Event) {
		p := ev.Payload.(ReplyPayload)
		key, err := ReplyKey(p.Reply.Signer, p.Reply.Route, p.Reply.Subject())
		if err != nil {
			return
		}
		_ = m.Reply.Put(key, p, time.Now())
	})
	bus.Subscribe(notify.KindMissingIssuer, func(ev notify.Event) {
		p := ev.Payload.(TelMissingIssuerPayload)
		_ = m.TelMissingIssuer.Put(p.Key, p, time.Now())
	})
	bus.Subscribe(notify.KindMissingRegistry, func(ev notify.Event) {
		p := ev.Payload.(TelMissingRegistryPayload)
		_ = m.TelMissingRegistry.Put(p.Key, p, time.Now())
	})
	bus.Subscribe(notify.KindTelOutOfOrder, func(ev notify.Event) {
		p := ev.Payload.(TelOutOfOrderPayload)
		_ = m.TelOutOfOrder.Put(p.Key, p, time.Now())
	})
}

// OutOfOrderKey builds the out-of-order escrow key for a KEL event at
// (id, sn): exact-match lookup, since the coordinator always knows exactly
// which (id, sn) it is trying to unblock.
func OutOfOrderKey(id codec.Prefix, sn uint64) (string, error) {
	text, err := id.Text()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%x", text, sn), nil
}

// DigestKey builds the escrow key used by the partially-signed,
// partially-witnessed, and receipt-out-of-order escrows: the target
// event's own digest.
func DigestKey(d codec.Digest) (string, error) {
	return d.Text()
}

// DelegationKey builds the composite key the missing-delegator escrow uses:
// the delegator's prefix as a bucket (so pkg/coordinator can list every
// delegated event awaiting that delegator with AllWithPrefix) plus the
// delegated event's own digest as a per-entry discriminator.
func DelegationKey(delegator codec.Prefix, delegatedDigest codec.Digest) (string, error) {
	dtext, err := delegator.Text()
	if err != nil {
		return "", err
	}
	etext, err := delegatedDigest.Text()
	if err != nil {
		return "", err
	}
	return dtext + "/" + etext, nil
}

// DelegatorBucket returns the AllWithPrefix prefix naming every entry
// awaiting approval from delegator.
func DelegatorBucket(delegator codec.Prefix) (string, error) {
	text, err := delegator.Text()
	if err != nil {
		return "", err
	}
	return text + "/", nil
}

// ReplyKey builds the composite key the KSN-out-of-order escrow uses: the
// signer's prefix as a bucket (so pkg/coordinator can find every reply
// awaiting that signer's KEL with SignerBucket+AllWithPrefix once the
// signer's next event arrives locally), plus route and subject as
// discriminators, since one signer may attest to replies about several
// subjects under several routes concurrently.
func ReplyKey(signer codec.Prefix, route event.ReplyRoute, subject codec.Prefix) (string, error) {
	stext, err := signer.Text()
	if err != nil {
		return "", err
	}
	subjText, err := subject.Text()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", stext, route, subjText), nil
}

// SignerBucket returns the AllWithPrefix prefix naming every KSN-out-of-order
// entry awaiting evidence from signer's KEL.
func SignerBucket(signer codec.Prefix) (string, error) {
	text, err := signer.Text()
	if err != nil {
		return "", err
	}
	return text + "/", nil
}
