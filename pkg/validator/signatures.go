// Copyright 2025 Certen Protocol
//
// Signature threshold verification: checks each attached indexed signature
// against the current-key set named by thresholdState (or, for an
// inception or rotation event, the key set the event itself establishes), then asks the
// threshold itself whether the verified positions satisfy it (spec.md §4.3).

package validator

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/keystate"
)

// verifySignatures reports whether sigs, verified against the key set
// thresholdState (or ev itself, for inception and rotation) names, satisfy the
// governing signing threshold.
func verifySignatures(thresholdState *keystate.State, ev *event.KeyEvent, sigs []codec.IndexedSignature) (bool, error) {
	keys, threshold, err := signingKeys(thresholdState, ev)
	if err != nil {
		return false, err
	}

	cp := *ev
	raw, _, err := event.Serialize(&cp, codec.DigestCode(ev.Digest.Code))
	if err != nil {
		return false, err
	}

	if threshold.IsWeighted() {
		present := map[int]map[int]bool{}
		for _, sig := range sigs {
			if sig.Index.Current < 0 || sig.Index.Current >= len(keys) {
				continue
			}
			ok, err := sig.Sig.Verify(keys[sig.Index.Current], raw)
			if err != nil || !ok {
				continue
			}
			clause, local, mapped := threshold.ClauseForKey(sig.Index.Current)
			if !mapped {
				continue
			}
			if present[clause] == nil {
				present[clause] = map[int]bool{}
			}
			present[clause][local] = true
		}
		return threshold.EnoughWeighted(present)
	}

	verifiedPositions := map[int]bool{}
	for _, sig := range sigs {
		if sig.Index.Current < 0 || sig.Index.Current >= len(keys) {
			continue
		}
		ok, err := sig.Sig.Verify(keys[sig.Index.Current], raw)
		if err != nil {
			return false, fmt.Errorf("validator: signature verify: %w", err)
		}
		if ok {
			verifiedPositions[sig.Index.Current] = true
		}
	}
	return threshold.EnoughSignatures(len(keys), len(verifiedPositions))
}

// verifyPriorNextCommitment enforces the pre-rotation soundness invariant
// (spec.md §3, §4.4 step 5, §8): for a rotation event, every indexed
// signature naming a PreviousNext slot must have its revealed current key
// hash to prior.NextKeyHashes[sig.Index.PreviousNext], and the set of
// PreviousNext positions that verify this way must, on their own, satisfy
// prior.NextThreshold -- the threshold in force for the commitment being
// redeemed, not the new signing threshold the rotation establishes.
func verifyPriorNextCommitment(prior *keystate.State, ev *event.KeyEvent, sigs []codec.IndexedSignature) (bool, error) {
	if prior == nil {
		return false, fmt.Errorf("validator: no prior state to verify pre-rotation commitment against")
	}

	if prior.NextThreshold.IsWeighted() {
		present := map[int]map[int]bool{}
		for _, sig := range sigs {
			if !matchesPriorNextSlot(prior, ev, sig) {
				continue
			}
			clause, local, mapped := prior.NextThreshold.ClauseForKey(sig.Index.PreviousNext)
			if !mapped {
				continue
			}
			if present[clause] == nil {
				present[clause] = map[int]bool{}
			}
			present[clause][local] = true
		}
		return prior.NextThreshold.EnoughWeighted(present)
	}

	matched := map[int]bool{}
	for _, sig := range sigs {
		if !matchesPriorNextSlot(prior, ev, sig) {
			continue
		}
		matched[sig.Index.PreviousNext] = true
	}
	return prior.NextThreshold.EnoughSignatures(len(prior.NextKeyHashes), len(matched))
}

// matchesPriorNextSlot reports whether sig names a PreviousNext slot and the
// new current key at sig.Index.Current actually hashes to
// prior.NextKeyHashes[sig.Index.PreviousNext]; a mismatch or out-of-range
// index is simply not a match, not an error (a stray or malicious index just
// fails to contribute toward the threshold).
func matchesPriorNextSlot(prior *keystate.State, ev *event.KeyEvent, sig codec.IndexedSignature) bool {
	if !sig.Index.HasPreviousNext {
		return false
	}
	if sig.Index.PreviousNext < 0 || sig.Index.PreviousNext >= len(prior.NextKeyHashes) {
		return false
	}
	if sig.Index.Current < 0 || sig.Index.Current >= len(ev.CurrentKeys) {
		return false
	}
	// Next-key-hashes commit to the text form of the public key prefix, not
	// its raw bytes (event.resolveNextKeyHashes hashes k.Text()), so the
	// redemption check must hash the same representation.
	text, err := ev.CurrentKeys[sig.Index.Current].Text()
	if err != nil {
		return false
	}
	ok, err := prior.NextKeyHashes[sig.Index.PreviousNext].VerifyBinding([]byte(text))
	if err != nil {
		return false
	}
	return ok
}

func signingKeys(thresholdState *keystate.State, ev *event.KeyEvent) ([]codec.Prefix, codec.Threshold, error) {
	if ev.Kind.IsInception() {
		if ev.SigningThreshold == nil {
			return nil, codec.Threshold{}, fmt.Errorf("validator: inception event missing signing threshold")
		}
		return ev.CurrentKeys, *ev.SigningThreshold, nil
	}
	if thresholdState == nil {
		return nil, codec.Threshold{}, fmt.Errorf("validator: no prior state to verify signatures against")
	}
	if ev.Kind == event.Rot || ev.Kind == event.Drt {
		if ev.SigningThreshold == nil {
			return nil, codec.Threshold{}, fmt.Errorf("validator: rotation event missing signing threshold")
		}
		return ev.CurrentKeys, *ev.SigningThreshold, nil
	}
	return thresholdState.CurrentKeys, thresholdState.SigningThreshold, nil
}
