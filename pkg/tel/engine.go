// Copyright 2025 Certen Protocol
//
// Engine runs registry and credential TEL events through the same
// staged-pipeline shape pkg/validator.Validator runs KEL events through:
// structural check, digest binding, ordering against projected state,
// anchoring-seal confirmation against the controlling KEL, then persist
// and publish. Grounded on pkg/validator/validator.go generalized from one
// log (a KEL) to two (a registry TEL and, per credential, a credential
// TEL), and on pkg/anchor_proof/verifier.go's Verify for the anchor-lookup
// shape (confirm a reference resolves before trusting it).

package tel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
)

// Outcome names what became of a submitted TEL event.
type Outcome string

const (
	OutcomeAccepted              Outcome = "accepted"
	OutcomeEscrowedOutOfOrder    Outcome = "escrowed_out_of_order"
	OutcomeEscrowedMissingIssuer Outcome = "escrowed_missing_issuer"
	OutcomeEscrowedMissingReg    Outcome = "escrowed_missing_registry"
	OutcomeRejectedMalformed     Outcome = "rejected_malformed"
)

// Result mirrors validator.Result's per-stage accounting, scaled down to
// the stages a TEL event actually passes through.
type Result struct {
	Outcome        Outcome
	StructuralValid bool
	DigestValid     bool
	OrderingValid   bool
	AnchorValid     bool
	Errors          []string
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}

func (r *Result) addError(stage, msg string) {
	r.Errors = append(r.Errors, fmt.Sprintf("[%s] %s", stage, msg))
}

// Engine runs the TEL acceptance pipeline for one node's local store.
type Engine struct {
	storage *storage.Storage
	bus     *notify.Bus
	metrics *metrics.Registry
}

// New builds an Engine over store, publishing escrow-bound outcomes to bus.
func New(store *storage.Storage, bus *notify.Bus) *Engine {
	return &Engine{storage: store, bus: bus}
}

// WithMetrics wires e to reg so every validated TEL event reports its
// outcome and duration to the engine's Prometheus registry.
func (e *Engine) WithMetrics(reg *metrics.Registry) *Engine {
	e.metrics = reg
	return e
}

// ValidateRegistryEvent runs a vcp/vrt event through the pipeline.
func (e *Engine) ValidateRegistryEvent(ev *Event) (*Result, error) {
	r := &Result{StartTime: time.Now()}
	defer func() {
		r.EndTime = time.Now()
		r.Duration = r.EndTime.Sub(r.StartTime)
		e.metrics.ObserveTel(string(r.Outcome), r.Duration.Seconds())
	}()

	if err := e.verifyStructural(ev); err != nil {
		r.addError("structural", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.StructuralValid = true

	if ok, err := e.verifyDigest(ev); err != nil || !ok {
		if err != nil {
			r.addError("digest", err.Error())
		} else {
			r.addError("digest", "tel event digest does not bind to its own serialization")
		}
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.DigestValid = true

	state, err := e.replayRegistry(ev.ID)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if ev.Kind == Vrt && (state == nil || ev.Sn != state.Sn+1 || ev.Prev == nil || !ev.Prev.Equal(state.LastDigest)) {
		e.bus.Publish(notify.Event{
			Kind:    notify.KindTelOutOfOrder,
			Payload: escrow.TelOutOfOrderPayload{Key: telKey(ev.ID, ev.Sn), RawEvent: mustMarshal(ev)},
		})
		r.Outcome = OutcomeEscrowedOutOfOrder
		return r, nil
	}
	r.OrderingValid = true

	issuer := ev.IssuerID
	if ev.Kind == Vrt {
		issuer = &state.IssuerID
	}
	if issuer == nil {
		r.addError("anchor", "registry inception missing controlling identifier")
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if anchored, err := e.anchored(*issuer, ev.ID, ev.Sn, ev.Digest); err != nil {
		r.addError("anchor", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	} else if !anchored {
		e.bus.Publish(notify.Event{
			Kind:    notify.KindMissingIssuer,
			Payload: escrow.TelMissingIssuerPayload{Key: telKey(ev.ID, ev.Sn), RawEvent: mustMarshal(ev)},
		})
		r.Outcome = OutcomeEscrowedMissingIssuer
		return r, nil
	}
	r.AnchorValid = true

	newState, err := ApplyRegistry(state, ev)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if err := e.persistRegistry(ev, newState); err != nil {
		return nil, err
	}
	e.bus.Publish(notify.Event{Kind: notify.KindTelEventAdded, Payload: ev})
	r.Outcome = OutcomeAccepted
	return r, nil
}

// ValidateCredentialEvent runs an iss/bis/rev/brv event through the
// pipeline.
func (e *Engine) ValidateCredentialEvent(ev *Event) (*Result, error) {
	r := &Result{StartTime: time.Now()}
	defer func() {
		r.EndTime = time.Now()
		r.Duration = r.EndTime.Sub(r.StartTime)
		e.metrics.ObserveTel(string(r.Outcome), r.Duration.Seconds())
	}()

	if err := e.verifyStructural(ev); err != nil {
		r.addError("structural", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.StructuralValid = true

	if ok, err := e.verifyDigest(ev); err != nil || !ok {
		if err != nil {
			r.addError("digest", err.Error())
		} else {
			r.addError("digest", "tel event digest does not bind to its own serialization")
		}
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	r.DigestValid = true

	if ev.RegistryID == nil {
		r.addError("registry", "credential event missing registry reference")
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	regState, err := e.replayRegistry(*ev.RegistryID)
	if err != nil {
		r.addError("registry", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if regState == nil {
		e.bus.Publish(notify.Event{
			Kind:    notify.KindMissingRegistry,
			Payload: escrow.TelMissingRegistryPayload{Key: telKey(ev.ID, ev.Sn), RawEvent: mustMarshal(ev)},
		})
		r.Outcome = OutcomeEscrowedMissingReg
		return r, nil
	}

	credState, err := e.replayCredential(ev.ID)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if (ev.Kind == Rev || ev.Kind == Brv) && (credState == nil || ev.Sn != credState.Sn+1 || ev.Prev == nil || !ev.Prev.Equal(credState.LastDigest)) {
		e.bus.Publish(notify.Event{
			Kind:    notify.KindTelOutOfOrder,
			Payload: escrow.TelOutOfOrderPayload{Key: telKey(ev.ID, ev.Sn), RawEvent: mustMarshal(ev)},
		})
		r.Outcome = OutcomeEscrowedOutOfOrder
		return r, nil
	}
	r.OrderingValid = true

	// A no-backers registry anchors credential events solely via the
	// controller's KEL; a backed registry still requires the same
	// anchoring seal (backer receipts are collected separately, mirroring
	// how witness receipts are checked after KEL acceptance rather than
	// gating it).
	if anchored, err := e.anchored(regState.IssuerID, ev.ID, ev.Sn, ev.Digest); err != nil {
		r.addError("anchor", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	} else if !anchored {
		e.bus.Publish(notify.Event{
			Kind:    notify.KindMissingIssuer,
			Payload: escrow.TelMissingIssuerPayload{Key: telKey(ev.ID, ev.Sn), RawEvent: mustMarshal(ev)},
		})
		r.Outcome = OutcomeEscrowedMissingIssuer
		return r, nil
	}
	r.AnchorValid = true

	newState, err := ApplyCredential(credState, ev, regState)
	if err != nil {
		r.addError("ordering", err.Error())
		r.Outcome = OutcomeRejectedMalformed
		return r, nil
	}
	if err := e.persistCredential(ev, newState); err != nil {
		return nil, err
	}
	e.bus.Publish(notify.Event{Kind: notify.KindTelEventAdded, Payload: ev})
	r.Outcome = OutcomeAccepted
	return r, nil
}

func (e *Engine) verifyStructural(ev *Event) error {
	if ev.ID.IsZero() {
		return fmt.Errorf("tel event carries no identifier")
	}
	if ev.Digest.IsZero() {
		return fmt.Errorf("tel event carries no digest")
	}
	if ev.Sn > 0 && ev.Prev == nil {
		return fmt.Errorf("non-inception tel event missing previous-digest field")
	}
	return nil
}

func (e *Engine) verifyDigest(ev *Event) (bool, error) {
	return VerifyDigestBinding(*ev)
}

// anchored reports whether issuer's KEL carries, at some sn, an event-seal
// naming (telID, telSn, telDigest) -- the same lookup
// validator.delegatorSealedMe performs for delegation approval, here
// walking the controller's full KEL rather than its first-seen log, since
// a TEL anchor may be sealed by any establishment or interaction event.
func (e *Engine) anchored(issuer codec.Prefix, telID codec.Prefix, telSn uint64, telDigest codec.Digest) (bool, error) {
	var sn uint64
	for {
		ev, err := e.storage.GetEventBySn(issuer, sn)
		if err != nil {
			if err == storage.ErrNotFound {
				return false, nil
			}
			return false, err
		}
		for _, s := range ev.Seals {
			if s.Matches(telID, telSn, telDigest) {
				return true, nil
			}
		}
		sn++
	}
}

// replayRegistry returns id's latest projected registry state, or nil if
// id has never been inceptioned. A TEL, like a KEL, is a single
// non-forking chain, so "the state to transition from" is always just the
// latest persisted tip.
func (e *Engine) replayRegistry(id codec.Prefix) (*RegistryState, error) {
	raw, err := e.storage.GetTelState(id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var s RegistryState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// replayCredential returns id's latest projected credential state, or nil
// if id has never been issued.
func (e *Engine) replayCredential(id codec.Prefix) (*CredentialState, error) {
	raw, err := e.storage.GetTelState(id)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var s CredentialState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e *Engine) persistRegistry(ev *Event, state *RegistryState) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("tel: marshal registry event: %w", err)
	}
	if err := e.storage.PutTelEvent(ev.ID, ev.Sn, ev.Digest, raw); err != nil {
		return err
	}
	stateRaw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("tel: marshal registry state: %w", err)
	}
	return e.storage.PutTelState(ev.ID, stateRaw)
}

func (e *Engine) persistCredential(ev *Event, state *CredentialState) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("tel: marshal credential event: %w", err)
	}
	if err := e.storage.PutTelEvent(ev.ID, ev.Sn, ev.Digest, raw); err != nil {
		return err
	}
	stateRaw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("tel: marshal credential state: %w", err)
	}
	return e.storage.PutTelState(ev.ID, stateRaw)
}

func telKey(id codec.Prefix, sn uint64) string {
	text, _ := id.Text()
	return fmt.Sprintf("%s/%d", text, sn)
}

func mustMarshal(ev *Event) []byte {
	raw, _ := json.Marshal(ev)
	return raw
}
