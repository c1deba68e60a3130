// Copyright 2025 Certen Protocol
//
// Coordinator closes the loop spec.md §9's design note describes: "the
// cyclic escrow<->validator dependency is broken by the notification bus...
// not mutual direct calls." pkg/escrow only buffers; pkg/validator and
// pkg/tel only publish. Coordinator is the top-level package that imports
// all three (plus pkg/notify) and subscribes to the acceptance
// notifications, re-submitting whatever a newly-accepted event unblocks.
// It has to live above escrow/validator/tel rather than inside any of them:
// validator already imports escrow for its payload types, so escrow
// importing validator back would cycle.
//
// Every resubmission goes through the same ValidateEvent/ValidateRegistryEvent/
// ValidateCredentialEvent entry point a first-time submission would use.
// Because pkg/notify.Bus now fans out synchronously (see pkg/notify's own
// grounding note), a chain of N blocked events resolves within one call
// stack: accepting event sn=5 triggers a resubmit of the escrowed sn=6,
// whose acceptance triggers a resubmit of sn=7, and so on, all before the
// outermost ValidateEvent call returns.
package coordinator

import (
	"encoding/json"

	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/reply"
	"github.com/certen/independant-validator/pkg/tel"
	"github.com/certen/independant-validator/pkg/validator"
)

// Coordinator wires one agent's escrow.Manager to its validator.Validator,
// tel.Engine, and reply.Acceptor.
type Coordinator struct {
	escrows   *escrow.Manager
	validator *validator.Validator
	tel       *tel.Engine
	reply     *reply.Acceptor
}

// New builds a Coordinator and subscribes it to bus. bus must be the same
// *notify.Bus passed to escrows, v, eng, and replies, or the subscriptions
// below will never fire. replies may be nil if the caller does not wire
// OOBI/KSN reply handling.
func New(bus *notify.Bus, escrows *escrow.Manager, v *validator.Validator, eng *tel.Engine, replies *reply.Acceptor) *Coordinator {
	c := &Coordinator{escrows: escrows, validator: v, tel: eng, reply: replies}
	bus.Subscribe(notify.KindKeyEventAdded, c.onKeyEventAdded)
	bus.Subscribe(notify.KindTelEventAdded, c.onTelEventAdded)
	return c
}

// onKeyEventAdded re-examines every escrow a newly-accepted KEL event could
// unblock: the out-of-order escrow for this identifier's next sn, the
// missing-delegator escrow for anything awaiting this identifier's
// approval, the TEL missing-issuer escrow (since the new event may carry
// the anchoring seal a registrar's vcp/vrt was waiting on), and any KSN/OOBI
// reply that was waiting on this identifier's KEL to reach a given sn.
func (c *Coordinator) onKeyEventAdded(ev notify.Event) {
	added, ok := ev.Payload.(*event.KeyEvent)
	if !ok {
		return
	}
	c.resolveOutOfOrder(added)
	c.resolveMissingDelegator(added)
	c.resolveReplies(added)
	c.resolveReceipts()
	c.retryTel(c.escrows.TelMissingIssuer)
}

// resolveReceipts resubmits every receipt escrowed while awaiting the event
// it receipts. It has no way to know in advance which (prefix, sn) the new
// event unblocks without indexing the receipt escrow by that key as well, so
// it just walks every entry and lets Validator.IngestReceipt re-derive
// whether its event is now known -- the same unconditional-retry shape
// retryTel already uses for the TEL escrows.
func (c *Coordinator) resolveReceipts() {
	for _, entry := range c.escrows.ReceiptOutOfOrder.All() {
		p, ok := entry.Payload.(escrow.ReceiptOutOfOrderPayload)
		if !ok {
			continue
		}
		c.escrows.ReceiptOutOfOrder.Delete(entry.Key)
		_, _ = c.validator.IngestReceipt(p.Receipt)
	}
}

// resolveReplies resubmits every KSN/OOBI reply escrowed while awaiting
// added's identifier to reach a given sn locally. It does not check sn
// itself: Acceptor.Accept re-derives whether the signer's KEL now reaches
// the reply's SignerSn, the same way pkg/validator re-derives delegation
// approval on every resubmission rather than trusting the caller's guess.
func (c *Coordinator) resolveReplies(added *event.KeyEvent) {
	if c.reply == nil {
		return
	}
	bucket, err := escrow.SignerBucket(added.Prefix)
	if err != nil {
		return
	}
	for _, entry := range c.escrows.Reply.AllWithPrefix(bucket) {
		p, ok := entry.Payload.(escrow.ReplyPayload)
		if !ok {
			continue
		}
		c.escrows.Reply.Delete(entry.Key)
		_, _ = c.reply.Accept(p.Reply)
	}
}

// onTelEventAdded re-examines the TEL escrows a newly-accepted vcp/vrt or
// iss/bis/rev/brv event could unblock: missing-registry (the vcp just
// arrived) and TEL out-of-order (the next sn in a registry's or
// credential's own chain just arrived).
func (c *Coordinator) onTelEventAdded(_ notify.Event) {
	c.retryTel(c.escrows.TelMissingRegistry)
	c.retryTel(c.escrows.TelOutOfOrder)
}

// resolveOutOfOrder checks whether added's own identifier has a
// next-in-sequence event waiting in the out-of-order escrow, and if so,
// resubmits it. A successful resubmission publishes KeyEventAdded again,
// which re-enters onKeyEventAdded and resolves the sn after that, and so on.
func (c *Coordinator) resolveOutOfOrder(added *event.KeyEvent) {
	key, err := escrow.OutOfOrderKey(added.Prefix, added.Sn+1)
	if err != nil {
		return
	}
	entry, ok := c.escrows.OutOfOrder.Get(key)
	if !ok {
		return
	}
	p, ok := entry.Payload.(escrow.OutOfOrderPayload)
	if !ok {
		return
	}
	c.escrows.OutOfOrder.Delete(key)
	_, _ = c.validator.ValidateEvent(p.Event, p.Sigs)
}

// resolveMissingDelegator resubmits every delegated establishment event
// escrowed while awaiting approval from added's identifier, since added may
// be the delegator's anchoring seal. The validator re-derives approval
// itself by walking the delegator's first-seen log (see
// pkg/validator.delegatorSealedMe), so Coordinator does not need to inspect
// added.Seals directly: it only needs to know which bucket to retry.
func (c *Coordinator) resolveMissingDelegator(added *event.KeyEvent) {
	bucket, err := escrow.DelegatorBucket(added.Prefix)
	if err != nil {
		return
	}
	for _, entry := range c.escrows.MissingDelegator.AllWithPrefix(bucket) {
		p, ok := entry.Payload.(escrow.MissingDelegatorPayload)
		if !ok {
			continue
		}
		c.escrows.MissingDelegator.Delete(entry.Key)
		_, _ = c.validator.ValidateEvent(p.Event, p.Sigs)
	}
}

// telPayload is satisfied by every escrow.TelXxxPayload type: each one
// escrows a raw serialized tel.Event under a key the tel engine assigned.
type telPayload struct {
	Key      string
	RawEvent []byte
}

func asTelPayload(payload interface{}) (telPayload, bool) {
	switch p := payload.(type) {
	case escrow.TelMissingIssuerPayload:
		return telPayload{Key: p.Key, RawEvent: p.RawEvent}, true
	case escrow.TelMissingRegistryPayload:
		return telPayload{Key: p.Key, RawEvent: p.RawEvent}, true
	case escrow.TelOutOfOrderPayload:
		return telPayload{Key: p.Key, RawEvent: p.RawEvent}, true
	default:
		return telPayload{}, false
	}
}

// retryTel walks every entry currently in store, deletes it, and resubmits
// it to whichever tel.Engine method its kind dispatches to. Entries that
// are still blocked simply land back in store via the engine's own
// publish-on-escrow path (pkg/tel/engine.go), so this is safe to call
// unconditionally on every KeyEventAdded/TelEventAdded notification: it is
// the same "periodic reattempt sweep" pkg/escrow.Store.All was already
// built for, just triggered by an event instead of a timer.
func (c *Coordinator) retryTel(store *escrow.Store) {
	for _, entry := range store.All() {
		p, ok := asTelPayload(entry.Payload)
		if !ok {
			continue
		}
		var tev tel.Event
		if err := json.Unmarshal(p.RawEvent, &tev); err != nil {
			continue
		}
		store.Delete(entry.Key)
		if tel.IsRegistryEvent(tev.Kind) {
			_, _ = c.tel.ValidateRegistryEvent(&tev)
		} else {
			_, _ = c.tel.ValidateCredentialEvent(&tev)
		}
	}
}
