// Copyright 2025 Certen Protocol
//
// RegistryState and CredentialState are the TEL analogues of
// pkg/keystate.State: the per-TEL projection an accepted vcp/vrt or
// iss/bis/rev/brv sequence folds into. Two separate state shapes, not one
// polymorphic union, for the same reason pkg/keystate keeps one struct per
// concern rather than a vtable (§9's design note).

package tel

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// CredentialStatus names where a credential's TEL currently stands.
type CredentialStatus string

const (
	StatusIssued  CredentialStatus = "issued"
	StatusRevoked CredentialStatus = "revoked"
)

// RegistryState is a registry's current projected state.
type RegistryState struct {
	ID               codec.Prefix
	IssuerID         codec.Prefix
	Backers          []codec.Prefix
	BackerThreshold  int
	Traits           []string
	Sn               uint64
	LastDigest       codec.Digest
}

// NoBackers reports whether this registry was established with the NB
// trait: its credential events never require backer receipts.
func (s *RegistryState) NoBackers() bool { return HasTrait(s.Traits, NoBackersTrait) }

// CredentialState is one credential's current projected state.
type CredentialState struct {
	ID         codec.Prefix
	RegistryID codec.Prefix
	Status     CredentialStatus
	Sn         uint64
	LastDigest codec.Digest

	// RegistryStateDigest pins the registry's own LastDigest as of the
	// event that set this credential's current status: the backer set and
	// threshold a revocation (or issuance) was checked against, frozen at
	// that moment rather than re-derived from the registry's current tip
	// (spec.md §4.8).
	RegistryStateDigest codec.Digest
}

// ErrInvalidTransition mirrors keystate.ErrInvalidTransition for TEL
// projection failures the engine itself must catch (as opposed to
// anchoring/backer preconditions, which are the engine's escrow concern).
type ErrInvalidTransition struct{ Reason string }

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("tel: invalid transition: %s", e.Reason)
}

// ApplyRegistry folds a vcp/vrt event into state, returning the new state.
// state must be nil for vcp and non-nil for vrt.
func ApplyRegistry(state *RegistryState, ev *Event) (*RegistryState, error) {
	switch ev.Kind {
	case Vcp:
		if ev.Sn != 0 {
			return nil, &ErrInvalidTransition{Reason: "registry inception sn must be 0"}
		}
		if ev.IssuerID == nil {
			return nil, &ErrInvalidTransition{Reason: "registry inception missing controlling identifier"}
		}
		bt := 0
		if ev.BackerThreshold != nil {
			bt = *ev.BackerThreshold
		}
		return &RegistryState{
			ID:              ev.ID,
			IssuerID:        *ev.IssuerID,
			Backers:         append([]codec.Prefix(nil), ev.Backers...),
			BackerThreshold: bt,
			Traits:          append([]string(nil), ev.Traits...),
			Sn:              0,
			LastDigest:      ev.Digest,
		}, nil
	case Vrt:
		if state == nil {
			return nil, &ErrInvalidTransition{Reason: "registry rotation with no prior state"}
		}
		if state.NoBackers() {
			return nil, &ErrInvalidTransition{Reason: "registry was incepted with NB (no-backers); vrt is permanently rejected"}
		}
		if ev.Sn != state.Sn+1 {
			return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("sn %d is not state.sn+1 (%d)", ev.Sn, state.Sn+1)}
		}
		if ev.Prev == nil || !ev.Prev.Equal(state.LastDigest) {
			return nil, &ErrInvalidTransition{Reason: "previous digest does not match state.last_digest"}
		}
		backers := applyBackerDelta(state.Backers, ev.BackersAdd, ev.BackersRemove)
		bt := state.BackerThreshold
		if ev.BackerThreshold != nil {
			bt = *ev.BackerThreshold
		}
		return &RegistryState{
			ID: state.ID, IssuerID: state.IssuerID, Backers: backers,
			BackerThreshold: bt, Traits: state.Traits,
			Sn: ev.Sn, LastDigest: ev.Digest,
		}, nil
	default:
		return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("unexpected kind %q for registry transition", ev.Kind)}
	}
}

func applyBackerDelta(current, add, remove []codec.Prefix) []codec.Prefix {
	out := make([]codec.Prefix, 0, len(current)+len(add))
	for _, b := range current {
		removed := false
		for _, r := range remove {
			if b.Equal(r) {
				removed = true
				break
			}
		}
		if !removed {
			out = append(out, b)
		}
	}
	out = append(out, add...)
	return out
}

// ApplyCredential folds an iss/bis/rev/brv event into state. state must be
// nil for iss/bis and non-nil for rev/brv. regState is the registry's
// projected state as of this event's anchor (already confirmed current by
// the engine's anchoring check); its LastDigest is pinned onto the
// resulting CredentialState so a later registry rotation cannot retroactively
// change which backer set a past issuance or revocation was checked against.
func ApplyCredential(state *CredentialState, ev *Event, regState *RegistryState) (*CredentialState, error) {
	if ev.RegistryID == nil {
		return nil, &ErrInvalidTransition{Reason: "credential event missing registry reference"}
	}
	if regState == nil {
		return nil, &ErrInvalidTransition{Reason: "credential event anchored to an unknown registry"}
	}
	switch ev.Kind {
	case Iss, Bis:
		if ev.Sn != 0 {
			return nil, &ErrInvalidTransition{Reason: "credential issuance sn must be 0"}
		}
		return &CredentialState{
			ID: ev.ID, RegistryID: *ev.RegistryID, Status: StatusIssued,
			Sn: 0, LastDigest: ev.Digest, RegistryStateDigest: regState.LastDigest,
		}, nil
	case Rev, Brv:
		if state == nil {
			return nil, &ErrInvalidTransition{Reason: "revocation with no prior issuance"}
		}
		if state.Status == StatusRevoked {
			return nil, &ErrInvalidTransition{Reason: "credential already revoked"}
		}
		if ev.Sn != state.Sn+1 {
			return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("sn %d is not state.sn+1 (%d)", ev.Sn, state.Sn+1)}
		}
		if ev.Prev == nil || !ev.Prev.Equal(state.LastDigest) {
			return nil, &ErrInvalidTransition{Reason: "previous digest does not match state.last_digest"}
		}
		return &CredentialState{
			ID: state.ID, RegistryID: state.RegistryID, Status: StatusRevoked,
			// RegistryStateDigest stays pinned to the value captured at
			// issuance (spec.md §4.8): the backer set a revocation's
			// receipts are checked against is the one issuance fixed, not
			// whatever the registry has rotated to since.
			Sn: ev.Sn, LastDigest: ev.Digest, RegistryStateDigest: state.RegistryStateDigest,
		}, nil
	default:
		return nil, &ErrInvalidTransition{Reason: fmt.Sprintf("unexpected kind %q for credential transition", ev.Kind)}
	}
}
