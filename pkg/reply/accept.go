// Copyright 2025 Certen Protocol
//
// Package reply implements spec.md §4.6's best-available-data-acceptance
// (BADA) rule for OOBI and KSN reply (rpy) messages: a later reply only
// displaces an earlier one for the same (route, subject) if it carries
// stronger evidence of being current, not merely a later arrival time.
// Grounded on pkg/verification/unified_verifier.go's staged-Result shape in
// the teacher repository, the same pattern pkg/validator and pkg/tel use
// for their own acceptance pipelines.
package reply

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/keystate"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
)

// Outcome names what became of a submitted reply.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeStale           Outcome = "stale"
	OutcomeEscrowed        Outcome = "escrowed_ksn_out_of_order"
	OutcomeRejectedSubject Outcome = "rejected_subject_mismatch"
	OutcomeRejectedSig     Outcome = "rejected_signature_invalid"
)

// Result reports why a reply was or was not accepted.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Acceptor runs incoming rpy messages through the BADA rule and persists
// whichever reply wins.
type Acceptor struct {
	storage *storage.Storage
	bus     *notify.Bus
	metrics *metrics.Registry
}

// New builds an Acceptor over store, publishing to bus when a reply cannot
// yet be ordered against its signer's KEL.
func New(store *storage.Storage, bus *notify.Bus) *Acceptor {
	return &Acceptor{storage: store, bus: bus}
}

// WithMetrics wires a to reg so every Accept call reports its outcome to
// the engine's Prometheus registry.
func (a *Acceptor) WithMetrics(reg *metrics.Registry) *Acceptor {
	a.metrics = reg
	return a
}

// Accept runs candidate through the BADA rule against whatever reply is
// currently stored for its (route, subject).
//
// Rule, per spec.md §4.6:
//  1. An OOBI reply (loc/scheme or end/role) must be signed by its own
//     subject: a third party cannot introduce an endpoint on another
//     identifier's behalf. A KSN reply may be attested by a different
//     identifier (e.g. a witness reporting what it has observed).
//  2. candidate.SignerSn must be verifiable against the signer's locally
//     known KEL; if the signer's KEL has not yet reached that sn locally,
//     the reply is escrowed (KindKsnOutOfOrder) rather than accepted or
//     rejected outright -- the same "wait, don't drop" treatment every
//     other escrow in this engine gives a precondition that simply hasn't
//     arrived yet.
//  3. candidate's signature must verify: a non-transferable signer signs
//     directly with a single couplet (candidate.Sig); a transferable
//     signer's candidate.IndexedSigs must satisfy its own current signing
//     threshold as of SignerSn. An unverifiable signature is rejected
//     outright -- it never displaces whatever is already stored.
//  4. Accept iff no reply is yet stored for (route, subject), or
//     candidate.SignerSn is strictly greater than the stored reply's, or
//     (equal SignerSn and candidate.Timestamp is strictly later).
func (a *Acceptor) Accept(candidate *event.Reply) (*Result, error) {
	result, err := a.accept(candidate)
	if result != nil {
		a.metrics.ObserveReply(string(result.Outcome))
	}
	return result, err
}

func (a *Acceptor) accept(candidate *event.Reply) (*Result, error) {
	if candidate.Route != event.RouteKSN && !candidate.Signer.Equal(candidate.Subject()) {
		return &Result{Outcome: OutcomeRejectedSubject, Reason: "OOBI reply signer does not match its subject"}, nil
	}

	known, err := a.signerReachedSn(candidate.Signer, candidate.SignerSn)
	if err != nil {
		return nil, err
	}
	if !known {
		a.bus.Publish(notify.Event{
			Kind:    notify.KindKsnOutOfOrder,
			Payload: escrow.ReplyPayload{Reply: candidate},
		})
		return &Result{Outcome: OutcomeEscrowed, Reason: "signer's KEL has not locally reached SignerSn yet"}, nil
	}

	verified, err := a.verifySignature(candidate)
	if err != nil {
		return nil, err
	}
	if !verified {
		return &Result{Outcome: OutcomeRejectedSig, Reason: "reply signature does not verify against the signer's keys"}, nil
	}

	stored, err := a.stored(candidate)
	if err != nil {
		return nil, err
	}
	if stored != nil && !supersedes(candidate, stored) {
		return &Result{Outcome: OutcomeStale, Reason: "a reply carrying equal or stronger evidence is already stored"}, nil
	}

	if err := a.storage.PutReply(candidate); err != nil {
		return nil, fmt.Errorf("reply: persist: %w", err)
	}
	return &Result{Outcome: OutcomeAccepted}, nil
}

// supersedes reports whether candidate's evidence outranks stored's, per
// BADA rule (4) above.
func supersedes(candidate, stored *event.Reply) bool {
	if candidate.SignerSn != stored.SignerSn {
		return candidate.SignerSn > stored.SignerSn
	}
	return candidate.Timestamp.After(stored.Timestamp)
}

func (a *Acceptor) stored(candidate *event.Reply) (*event.Reply, error) {
	var r *event.Reply
	var err error
	if candidate.Route == event.RouteKSN {
		r, err = a.storage.GetKSN(candidate.Subject())
	} else {
		r, err = a.storage.GetOOBI(candidate.Route, candidate.Subject())
	}
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// verifySignature checks candidate's attached signature(s) against its
// signer. A non-transferable signer (typically a witness reporting a KSN)
// signs directly with a single couplet; a transferable signer's indexed
// signatures must satisfy its own current signing threshold as of SignerSn,
// replayed from its locally held KEL.
func (a *Acceptor) verifySignature(candidate *event.Reply) (bool, error) {
	raw, err := candidate.SignedBytes()
	if err != nil {
		return false, err
	}

	if !candidate.Signer.IsTransferable() {
		if candidate.Sig.Code == "" {
			return false, nil
		}
		ok, err := candidate.Sig.Verify(candidate.Signer, raw)
		if err != nil {
			return false, nil
		}
		return ok, nil
	}

	state, err := a.replaySignerState(candidate.Signer, candidate.SignerSn)
	if err != nil {
		return false, err
	}
	if state == nil || len(candidate.IndexedSigs) == 0 {
		return false, nil
	}

	if state.SigningThreshold.IsWeighted() {
		present := map[int]map[int]bool{}
		for _, sig := range candidate.IndexedSigs {
			if sig.Index.Current < 0 || sig.Index.Current >= len(state.CurrentKeys) {
				continue
			}
			ok, err := sig.Sig.Verify(state.CurrentKeys[sig.Index.Current], raw)
			if err != nil || !ok {
				continue
			}
			clause, local, mapped := state.SigningThreshold.ClauseForKey(sig.Index.Current)
			if !mapped {
				continue
			}
			if present[clause] == nil {
				present[clause] = map[int]bool{}
			}
			present[clause][local] = true
		}
		return state.SigningThreshold.EnoughWeighted(present)
	}

	verified := map[int]bool{}
	for _, sig := range candidate.IndexedSigs {
		if sig.Index.Current < 0 || sig.Index.Current >= len(state.CurrentKeys) {
			continue
		}
		ok, err := sig.Sig.Verify(state.CurrentKeys[sig.Index.Current], raw)
		if err != nil || !ok {
			continue
		}
		verified[sig.Index.Current] = true
	}
	return state.SigningThreshold.EnoughSignatures(len(state.CurrentKeys), len(verified))
}

// replaySignerState folds signer's locally held KEL, from inception through
// throughSn inclusive, into a keystate.State. Returns nil if signer has no
// locally known inception event.
func (a *Acceptor) replaySignerState(signer codec.Prefix, throughSn uint64) (*keystate.State, error) {
	events, err := a.storage.RangeKEL(signer, 0, throughSn)
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

// signerReachedSn reports whether the local KEL for signer already holds an
// event at exactly sn (sn 0 -- inception -- is always considered reached,
// since an unestablished identifier cannot have signed anything).
func (a *Acceptor) signerReachedSn(signer codec.Prefix, sn uint64) (bool, error) {
	if sn == 0 {
		return true, nil
	}
	_, err := a.storage.GetEventBySn(signer, sn)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
