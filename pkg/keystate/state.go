// Copyright 2025 Certen Protocol
//
// State is the per-identifier current key state that an accepted event
// sequence folds into: keys, next-hashes, thresholds, witness set,
// delegator, sn, last digest. The projector (apply) performs only the
// structural transition; the validator (pkg/validator) is responsible for
// having already confirmed signatures, thresholds, and witness receipts
// before a transition is applied (spec.md §4.3).

package keystate

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// State is the identifier state spec.md §3 describes.
type State struct {
	Prefix codec.Prefix

	CurrentKeys      []codec.Prefix
	SigningThreshold codec.Threshold
	NextThreshold    codec.Threshold
	NextKeyHashes    []codec.Digest

	Witnesses        []codec.Prefix
	WitnessThreshold int
	Traits           []string

	Sn         uint64
	LastDigest codec.Digest

	// LastEstablishment is the event-seal of the most recent establishment
	// event (icp/rot/dip/drt), used by BADA ordering (spec.md §4.6 rule b).
	LastEstablishment event.Seal

	Delegator *codec.Prefix

	// Compromised marks an identifier that has had a Duplicitous event
	// detected; no further events are accepted (spec.md §7).
	Compromised bool
}

// ErrInvalidTransition is raised for arithmetic/ordering violations the
// projector itself is responsible for catching; signature/threshold/witness
// preconditions are the validator's job and never produce this error.
type ErrInvalidTransition struct {
	Reason string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("keystate: invalid transition: %s", e.Reason)
}

// Apply folds ev into state, returning the new state. state may be the
// zero value only when ev is an inception/delegated-inception event.
func Apply(state *State, ev *event.KeyEvent) (*State, error) {
	if ev.Kind.IsInception() {
		return applyInception(ev)
	}
	if state == nil {
		return nil, &ErrInvalidTransition{Reason: "non-inception event with no prior state"}
	}
	if state.Compromised {
		return nil, &ErrInvalidTransition{Reason: "identifier is compromised (duplicitous), no further events accepted"}
	}
	if ev.Sn != state.Sn+1 {
		return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("sn %d is not state.sn+1 (%d)", ev.Sn, state.Sn+1)}
	}
	if ev.Prev == nil || !ev.Prev.Equal(state.LastDigest) {
		return nil, &ErrInvalidTransition{Reason: "previous digest does not match state.last_digest"}
	}

	switch ev.Kind {
	case event.Rot, event.Drt:
		return applyRotation(state, ev)
	case event.Ixn:
		return applyInteraction(state, ev)
	default:
		return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("unexpected kind %q for non-inception transition", ev.Kind)}
	}
}

func applyInception(ev *event.KeyEvent) (*State, error) {
	if ev.Sn != 0 {
		return nil, &ErrInvalidTransition{Reason: "inception sn must be 0"}
	}
	if ev.SigningThreshold == nil || ev.NextThreshold == nil {
		return nil, &ErrInvalidTransition{Reason: "inception missing threshold data"}
	}
	wt := 0
	if ev.WitnessThreshold != nil {
		wt = *ev.WitnessThreshold
	}
	s := &State{
		Prefix:           ev.Prefix,
		CurrentKeys:      append([]codec.Prefix(nil), ev.CurrentKeys...),
		SigningThreshold: *ev.SigningThreshold,
		NextThreshold:    *ev.NextThreshold,
		NextKeyHashes:    append([]codec.Digest(nil), ev.NextKeyHashes...),
		Witnesses:        append([]codec.Prefix(nil), ev.Witnesses...),
		WitnessThreshold: wt,
		Traits:           append([]string(nil), ev.Traits...),
		Sn:               0,
		LastDigest:       ev.Digest,
		LastEstablishment: event.NewEventSeal(ev.Prefix, 0, ev.Digest),
	}
	if ev.Kind == event.Dip {
		if ev.Delegator == nil {
			return nil, &ErrInvalidTransition{Reason: "delegated inception missing delegator prefix"}
		}
		d := *ev.Delegator
		s.Delegator = &d
	}
	return s, nil
}

func applyRotation(state *State, ev *event.KeyEvent) (*State, error) {
	if !state.Prefix.IsTransferable() {
		return nil, &ErrInvalidTransition{Reason: "non-transferable identifiers may never rotate"}
	}
	if ev.SigningThreshold == nil || ev.NextThreshold == nil {
		return nil, &ErrInvalidTransition{Reason: "rotation missing threshold data"}
	}

	witnesses := applyWitnessDelta(state.Witnesses, ev.WitnessesAdd, ev.WitnessesRemove)
	wt := state.WitnessThreshold
	if ev.WitnessThreshold != nil {
		wt = *ev.WitnessThreshold
	}

	next := &State{
		Prefix:           state.Prefix,
		CurrentKeys:      append([]codec.Prefix(nil), ev.CurrentKeys...),
		SigningThreshold: *ev.SigningThreshold,
		NextThreshold:    *ev.NextThreshold,
		NextKeyHashes:    append([]codec.Digest(nil), ev.NextKeyHashes...),
		Witnesses:        witnesses,
		WitnessThreshold: wt,
		Traits:           state.Traits,
		Sn:               ev.Sn,
		LastDigest:       ev.Digest,
		LastEstablishment: event.NewEventSeal(state.Prefix, ev.Sn, ev.Digest),
		Delegator:        state.Delegator,
	}
	return next, nil
}

func applyInteraction(state *State, ev *event.KeyEvent) (*State, error) {
	next := *state
	next.Sn = ev.Sn
	next.LastDigest = ev.Digest
	// `a` seals are retained by storage, not by state (spec.md §4.3).
	return &next, nil
}

func applyWitnessDelta(current []codec.Prefix, add, remove []codec.Prefix) []codec.Prefix {
	out := make([]codec.Prefix, 0, len(current)+len(add))
	for _, w := range current {
		removed := false
		for _, r := range remove {
			if w.Equal(r) {
				removed = true
				break
			}
		}
		if !removed {
			out = append(out, w)
		}
	}
	for _, w := range add {
		out = append(out, w)
	}
	return out
}

// MarkCompromised flags state as duplicitous-compromised in place.
func (s *State) MarkCompromised() { s.Compromised = true }
