// Copyright 2025 Certen Protocol
//
// Validator runs an incoming key event through the ordered acceptance
// pipeline spec.md §4 describes: structural well-formedness, digest
// binding, previous-digest/sn ordering against known state, signature
// verification against the threshold in force, and (for establishment
// events with a delegator) delegation approval. Grounded on
// pkg/verification/unified_verifier.go's UnifiedVerifier in the teacher
// repository: a config-driven struct walking fixed stages into one
// Result accumulating per-stage validity, errors, and timing.

package validator

import (
	"fmt"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/keystate"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
)

// Config controls which stages are required, mirroring the teacher's
// UnifiedVerifierConfig's RequireLevelN toggles. Every stage defaults to
// required; a validator running in watcher-only mode (no witness receipts
// expected, e.g.) can relax RequireWitnessReceipts.
type Config struct {
	RequireSignatureThreshold bool
	RequireWitnessReceipts    bool
	RequireDelegatorSeal      bool
	WitnessThresholdOverride  int // 0 means use the event's own bt
}

// DefaultConfig requires every stage.
func DefaultConfig() Config {
	return Config{
		RequireSignatureThreshold: true,
		RequireWitnessReceipts:    true,
		RequireDelegatorSeal:      true,
	}
}

// Outcome names what became of a submitted event.
type Outcome string

const (
	OutcomeAccepted              Outcome = "accepted"
	OutcomeEscrowedOutOfOrder    Outcome = "escrowed_out_of_order"
	OutcomeEscrowedPartialSigs   Outcome = "escrowed_partially_signed"
	OutcomeEscrowedPartialWitness Outcome = "escrowed_partially_witnessed"
	OutcomeEscrowedMissingDeleg  Outcome = "escrowed_missing_delegator"
	OutcomeRejectedDuplicitous   Outcome = "rejected_duplicitous"
	OutcomeRejectedMalformed     Outcome = "rejected_malformed"
)

// Result mirrors the teacher's VerificationResult: per-stage validity
// flags plus accumulated errors/warnings and timing, so a caller can
// report why an event didn't reach Accepted without parsing error strings.
type Result struct {
	Outcome Outcome

	StructuralValid bool
	DigestValid     bool
	OrderingValid   bool
	SignaturesValid bool
	WitnessesValid  bool
	DelegationValid bool

	Errors   []string
	Warnings []string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func (r *Result) addError(stage, message string) {
	r.Errors = append(r.Errors, fmt.Sprintf("[%s] %s", stage, message))
}

func (r *Result) addWarning(stage, message string) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("[%s] %s", stage, message))
}

// Validator runs the acceptance pipeline for one agent's local store.
type Validator struct {
	cfg         Config
	storage     *storage.Storage
	bus         *notify.Bus
	partialSigs *escrow.Store
	metrics     *metrics.Registry
}

// New builds a Validator over store, publishing escrow-bound outcomes to bus.
func New(cfg Config, store *storage.Storage, bus *notify.Bus) *Validator {
	return &Validator{cfg: cfg, storage: store, bus: bus}
}

// WithMetrics wires v to reg, so every ValidateEvent call reports its
// outcome and duration to the engine's Prometheus registry. Optional: a nil
// or unset reg leaves ValidateEvent's behavior unchanged (metrics.Registry's
// Observe methods are nil-receiver safe).
func (v *Validator) WithMetrics(reg *metrics.Registry) *Validator {
	v.metrics = reg
	return v
}

// WithPartialSignatureEscrow wires v to partialSigs (the escrow.Manager's
// PartiallySigned store) so a later arriving signature is merged with
// whatever this digest already has escrowed, rather than treated as a fresh,
// single-signature submission that can never reach threshold (spec.md §4.5:
// "accumulates additional indexed signatures arriving later, deduplicated by
// index"). Optional: a Validator with no store configured still validates
// correctly against exactly the signatures a single call supplies.
func (v *Validator) WithPartialSignatureEscrow(partialSigs *escrow.Store) *Validator {
	v.partialSigs = partialSigs
	return v
}

// mergedSigs folds any previously-escrowed signatures for digest into sigs,
// so a group member's Nth forwarded signature adds to, rather than replaces,
// what earlier members already contributed.
func (v *Validator) mergedSigs(digest codec.Digest, sigs []codec.IndexedSignature) []codec.IndexedSignature {
	if v.partialSigs == nil {
		return sigs
	}
	key, err := escrow.DigestKey(digest)
	if err != nil {
		return sigs
	}
	entry, ok := v.partialSigs.Get(key)
	if !ok {
		return sigs
	}
	prior, ok := entry.Payload.(escrow.PartiallySignedPayload)
	if !ok {
		return sigs
	}
	return escrow.MergeIndexedSignatures(prior.Sigs, sigs)
}

// clearPartialSigs drops digest's accumulated-signature escrow entry once
// the event it belongs to has been fully accepted.
func (v *Validator) clearPartialSigs(digest codec.Digest) {
	if v.partialSigs == nil {
		return
	}
	if key, err := escrow.DigestKey(digest); err == nil {
		v.partialSigs.Delete(key)
	}
}

// ValidateEvent runs ev (with its attached indexed signatures) through the
// full pipeline, mutating and persisting state on success, and publishing
// to the appropriate escrow on a recoverable failure.
func (v *Validator) ValidateEvent(ev *event.KeyEvent, sigs []codec.IndexedSignature) (*Result, error) {
	r := &Result{StartTime: time.Now()}
	defer func() {
		r.EndTime = time.Now()
		r.Duration = r.EndTime.Sub(r.StartTime)
		v.metrics.ObserveValidator(string(r.Outcome), r.Duration.Seconds())
	}()

	if err := v.verifyStructural(ev); err != nil {
		r.StructuralValid = false
		r.addError("structural", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.StructuralValid = true

	bound, err := event.VerifyDigestBinding(*ev)
	if err != nil {
		r.DigestValid = false
		r.addError("digest", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if !bound {
		r.DigestValid = false
		r.addError("digest", "event digest does not bind to its own serialization")
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.DigestValid = true

	compromised, err := v.storage.IsCompromised(ev.Prefix)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if compromised {
		r.addError("ordering", "identifier was previously marked compromised (duplicitous): no further events accepted")
		r.Outcome = OutcomeRejectedDuplicitous
		return r, nil
	}

	sigs = v.mergedSigs(ev.Digest, sigs)

	state, existing, err := v.lookupState(ev)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}

	if existing != nil {
		if !existing.Digest.Equal(ev.Digest) {
			if markErr := v.storage.MarkCompromised(ev.Prefix); markErr != nil {
				return nil, fmt.Errorf("validator: mark compromised: %w", markErr)
			}
			r.addError("ordering", "a different event already occupies this identifier/sn: duplicitous")
			r.Outcome = OutcomeRejectedDuplicitous
			return r, nil
		}
		r.OrderingValid = true
	} else if !ev.Kind.IsInception() {
		// Ordering against current state: sn must be exactly state.Sn+1 and
		// prev must equal state.LastDigest, else this event is out-of-order
		// (it may be establishing sn N+5 while we are still missing N+1..N+4).
		if state == nil || ev.Sn != state.Sn+1 || ev.Prev == nil || !ev.Prev.Equal(state.LastDigest) {
			v.bus.Publish(notify.Event{
				Kind:    notify.KindOutOfOrder,
				Payload: escrow.OutOfOrderPayload{Event: ev, Sigs: sigs},
			})
			r.Outcome = OutcomeEscrowedOutOfOrder
			return r, nil
		}
		r.OrderingValid = true
	} else {
		r.OrderingValid = true
	}

	newState, err := keystate.Apply(state, ev)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}

	thresholdState := state
	if ev.Kind.IsInception() {
		thresholdState = newState
	}
	if v.cfg.RequireSignatureThreshold {
		ok, err := verifySignatures(thresholdState, ev, sigs)
		if err != nil {
			r.addError("signatures", err.Error())
			r.Outcome = OutcomeRejectedMalformed
			return r, nil
		}
		if !ok {
			v.bus.Publish(notify.Event{
				Kind:    notify.KindPartiallySigned,
				Payload: escrow.PartiallySignedPayload{Event: ev, Sigs: sigs},
			})
			r.Outcome = OutcomeEscrowedPartialSigs
			return r, nil
		}

		// Pre-rotation soundness (spec.md §3, §8): a rotation must also
		// redeem the prior event's next-keys-data commitment, satisfying
		// that prior next-threshold independently of the new signing
		// threshold just checked above.
		if ev.Kind == event.Rot || ev.Kind == event.Drt {
			priorOK, err := verifyPriorNextCommitment(state, ev, sigs)
			if err != nil {
				r.addError("signatures", err.Error())
				r.Outcome = OutcomeRejectedMalformed
				return r, nil
			}
			if !priorOK {
				v.bus.Publish(notify.Event{
					Kind:    notify.KindPartiallySigned,
					Payload: escrow.PartiallySignedPayload{Event: ev, Sigs: sigs},
				})
				r.Outcome = OutcomeEscrowedPartialSigs
				return r, nil
			}
		}
	}
	r.SignaturesValid = true

	if ev.Kind == event.Dip || ev.Kind == event.Drt {
		if v.cfg.RequireDelegatorSeal {
			approved, err := v.delegationApproved(ev)
			if err != nil {
				r.addError("delegation", err.Error())
				r.Outcome = OutcomeRejectedMalformed
				return r, nil
			}
			if !approved {
				v.bus.Publish(notify.Event{
					Kind:    notify.KindMissingDelegator,
					Payload: escrow.MissingDelegatorPayload{Event: ev, Sigs: sigs},
				})
				r.Outcome = OutcomeEscrowedMissingDeleg
				return r, nil
			}
		}
		r.DelegationValid = true
	} else {
		r.DelegationValid = true
	}

	v.clearPartialSigs(ev.Digest)

	// Witness receipts are checked after acceptance: the event itself is
	// durable state regardless of whether enough receipts have arrived yet
	// (spec.md §4.5); a witness-threshold shortfall escrows the receipt
	// wait, not the event.
	if err := v.storage.PutEvent(ev); err != nil {
		return nil, fmt.Errorf("validator: persist event: %w", err)
	}
	if err := v.storage.PutSignatures(ev.Digest, sigs); err != nil {
		return nil, fmt.Errorf("validator: persist signatures: %w", err)
	}
	if _, err := v.storage.AppendFirstSeen(ev.Prefix, ev.Digest); err != nil {
		return nil, fmt.Errorf("validator: append first-seen: %w", err)
	}

	if v.cfg.RequireWitnessReceipts && len(newState.Witnesses) > 0 {
		receipts, err := v.storage.GetReceipts(ev.Digest)
		if err != nil && err != storage.ErrNotFound {
			return nil, fmt.Errorf("validator: load receipts: %w", err)
		}
		threshold := newState.WitnessThreshold
		if v.cfg.WitnessThresholdOverride > 0 {
			threshold = v.cfg.WitnessThresholdOverride
		}
		cp := *ev
		raw, _, err := event.Serialize(&cp, codec.DigestCode(ev.Digest.Code))
		if err != nil {
			return nil, fmt.Errorf("validator: reserialize event for receipt verification: %w", err)
		}
		verified := countDistinctValidWitnesses(receipts, newState.Witnesses, raw)
		if verified < threshold {
			v.bus.Publish(notify.Event{
				Kind:    notify.KindPartiallyWitnessed,
				Payload: escrow.PartiallyWitnessedPayload{Event: ev, Receipts: receipts},
			})
			r.WitnessesValid = false
			r.addWarning("witnesses", "event accepted but witness threshold not yet met")
		} else {
			r.WitnessesValid = true
		}
	} else {
		r.WitnessesValid = true
	}

	v.bus.Publish(notify.Event{Kind: notify.KindKeyEventAdded, Payload: ev})
	r.Outcome = OutcomeAccepted
	return r, nil
}

func (v *Validator) verifyStructural(ev *event.KeyEvent) error {
	if ev.Prefix.IsZero() {
		return fmt.Errorf("event carries no identifier prefix")
	}
	if ev.Digest.IsZero() {
		return fmt.Errorf("event carries no digest")
	}
	if !ev.Kind.IsInception() && ev.Prev == nil {
		return fmt.Errorf("non-inception event missing previous-digest field")
	}
	return nil
}

// lookupState returns the identifier's current projected state (nil for a
// never-seen identifier) and, if an event already occupies ev's own sn,
// that event (used for duplicity detection).
func (v *Validator) lookupState(ev *event.KeyEvent) (*keystate.State, *event.KeyEvent, error) {
	existing, err := v.storage.GetEventBySn(ev.Prefix, ev.Sn)
	if err != nil && err != storage.ErrNotFound {
		return nil, nil, err
	}
	if err == storage.ErrNotFound {
		existing = nil
	}

	if ev.Kind.IsInception() {
		return nil, existing, nil
	}

	state, err := v.replayState(ev.Prefix, ev.Sn)
	if err != nil {
		return nil, existing, err
	}
	return state, existing, nil
}

// replayState folds every stored event for id up to (but not including)
// targetSn into a keystate.State. A gap before targetSn leaves state short
// of targetSn-1, which the ordering check in ValidateEvent catches.
func (v *Validator) replayState(id codec.Prefix, targetSn uint64) (*keystate.State, error) {
	if targetSn == 0 {
		return nil, nil
	}
	events, err := v.storage.RangeKEL(id, 0, targetSn-1)
	if err != nil {
		return nil, err
	}
	var state *keystate.State
	for _, ev := range events {
		state, err = keystate.Apply(state, ev)
		if err != nil {
			return nil, err
		}
	}
	return state, nil
}

// delegationApproved reports whether the delegator has already anchored a
// seal naming ev (prefix, sn, digest) in one of its own events. Seals are
// carried on the events themselves (KeyEvent.Seals), not folded into
// projected state (spec.md §4.3), so this walks the delegator's own
// first-seen log directly rather than consulting keystate.State.
func (v *Validator) delegationApproved(ev *event.KeyEvent) (bool, error) {
	if ev.Delegator == nil {
		return false, fmt.Errorf("delegated event missing delegator prefix")
	}
	return v.delegatorSealedMe(*ev.Delegator, ev)
}

func (v *Validator) delegatorSealedMe(delegator codec.Prefix, ev *event.KeyEvent) (bool, error) {
	firstSeen, err := v.storage.ListFirstSeen(delegator)
	if err != nil {
		return false, err
	}
	for _, d := range firstSeen {
		dEv, err := v.storage.GetEventByDigest(d)
		if err != nil {
			return false, err
		}
		for _, s := range dEv.Seals {
			if s.Matches(ev.Prefix, ev.Sn, ev.Digest) {
				return true, nil
			}
		}
	}
	return false, nil
}
