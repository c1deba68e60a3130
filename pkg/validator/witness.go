// Copyright 2025 Certen Protocol
//
// Witness-receipt signature verification: an accepted receipt only counts
// toward an event's witness threshold if its attachment verifies against the
// witness list in force at that event's sn (spec.md §4.4 step 6, §4.5).
// Unsigned, forged, or duplicate receipts contribute nothing.

package validator

import (
	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// verifyWitnessReceipt checks r's attachments (indexed signatures and/or
// couplets) against witnesses and message, returning the text form of every
// distinct witness in witnesses whose signature verifies.
func verifyWitnessReceipt(r event.Receipt, witnesses []codec.Prefix, message []byte) map[string]bool {
	confirmed := map[string]bool{}
	for _, is := range r.IndexedWitnessSigs {
		if is.Index.Current < 0 || is.Index.Current >= len(witnesses) {
			continue
		}
		w := witnesses[is.Index.Current]
		ok, err := is.Sig.Verify(w, message)
		if err != nil || !ok {
			continue
		}
		text, err := w.Text()
		if err != nil {
			continue
		}
		confirmed[text] = true
	}
	for _, c := range r.Couplets {
		member := false
		for _, w := range witnesses {
			if w.Equal(c.Witness) {
				member = true
				break
			}
		}
		if !member {
			continue
		}
		ok, err := c.Sig.Verify(c.Witness, message)
		if err != nil || !ok {
			continue
		}
		text, err := c.Witness.Text()
		if err != nil {
			continue
		}
		confirmed[text] = true
	}
	return confirmed
}

// countDistinctValidWitnesses folds verifyWitnessReceipt over every stored
// receipt for one event, deduping by witness across receipts, and reports
// how many distinct witnesses in witnesses have a verified signature over
// message -- the count the witness threshold is actually checked against.
func countDistinctValidWitnesses(receipts []event.Receipt, witnesses []codec.Prefix, message []byte) int {
	seen := map[string]bool{}
	for _, r := range receipts {
		for w := range verifyWitnessReceipt(r, witnesses, message) {
			seen[w] = true
		}
	}
	return len(seen)
}
