// Copyright 2025 Certen Protocol
//
// IngestReceipt is the entry point for a witness or transferable receipt
// arriving independently of the event it receipts (spec.md §4.5: a witness
// typically signs and returns a receipt after the controller already
// broadcast the event, but nothing stops a receipt from arriving before the
// receipted event does, e.g. a slow controller and a fast witness-to-witness
// gossip path). It mirrors the same "wait, don't drop" treatment every other
// precondition gets: if the receipted event is not yet known locally, the
// receipt is escrowed rather than rejected.

package validator

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
)

// IngestReceipt persists r if the event it receipts (identified by Prefix,
// Sn, Digest) is already known locally and r carries at least one signature
// that verifies against the witness list in force at that sn, or escrows it
// under notify.KindReceiptOutOfOrder if the receipted event is not yet
// known. A receipt naming the wrong digest for an sn we do know about is
// rejected outright: the receipted event and the locally stored one at that
// sn disagree, which is either a misdirected receipt or evidence of
// duplicity the validator's own ValidateEvent path would already have
// caught for the event itself. A receipt whose signature does not verify
// (unsigned, forged, or naming a non-witness) is rejected the same way:
// it must never be allowed to count toward the witness threshold.
func (v *Validator) IngestReceipt(r *event.Receipt) (Outcome, error) {
	stored, err := v.storage.GetEventBySn(r.Prefix, r.Sn)
	if err == storage.ErrNotFound {
		v.bus.Publish(notify.Event{
			Kind:    notify.KindReceiptOutOfOrder,
			Payload: escrow.ReceiptOutOfOrderPayload{Receipt: r},
		})
		return OutcomeEscrowedOutOfOrder, nil
	}
	if err != nil {
		return "", fmt.Errorf("validator: lookup receipted event: %w", err)
	}
	if !stored.Digest.Equal(r.Digest) {
		return OutcomeRejectedMalformed, fmt.Errorf("validator: receipt digest does not match the event stored at sn=%d", r.Sn)
	}

	state, err := v.replayState(r.Prefix, r.Sn+1)
	if err != nil {
		return "", fmt.Errorf("validator: replay witness state for receipt: %w", err)
	}
	if state == nil || len(state.Witnesses) == 0 {
		return OutcomeRejectedMalformed, fmt.Errorf("validator: receipted identifier has no witnesses in force at sn=%d", r.Sn)
	}

	cp := *stored
	raw, _, err := event.Serialize(&cp, codec.DigestCode(stored.Digest.Code))
	if err != nil {
		return "", fmt.Errorf("validator: reserialize receipted event: %w", err)
	}
	if confirmed := verifyWitnessReceipt(*r, state.Witnesses, raw); len(confirmed) == 0 {
		return OutcomeRejectedMalformed, fmt.Errorf("validator: receipt carries no signature verifiable against the witness list in force at sn=%d", r.Sn)
	}

	if err := v.storage.PutReceipts(r.Digest, []event.Receipt{*r}); err != nil {
		return "", fmt.Errorf("validator: persist receipt: %w", err)
	}
	return OutcomeAccepted, nil
}
