// Copyright 2025 Certen Protocol
//
// Unit tests for Threshold: simple counts, weighted fractional clauses,
// and JSON round-trip.

package codec

import "testing"

// ============================================================================
// Simple Thresholds
// ============================================================================

func TestSimpleThreshold_EnoughSignatures(t *testing.T) {
	th := NewSimpleThreshold(2)
	ok, err := th.EnoughSignatures(3, 2)
	if err != nil {
		t.Fatalf("EnoughSignatures: %v", err)
	}
	if !ok {
		t.Error("2 of 3 should satisfy a threshold of 2")
	}
	ok, err = th.EnoughSignatures(3, 1)
	if err != nil {
		t.Fatalf("EnoughSignatures: %v", err)
	}
	if ok {
		t.Error("1 of 3 should not satisfy a threshold of 2")
	}
}

func TestSimpleThreshold_ExceedsKeyCount(t *testing.T) {
	th := NewSimpleThreshold(5)
	if _, err := th.EnoughSignatures(3, 3); err == nil {
		t.Error("expected error when threshold exceeds key count")
	}
}

// ============================================================================
// Weighted Thresholds
// ============================================================================

func TestWeightedThreshold_SingleClauseSatisfied(t *testing.T) {
	th, err := NewWeightedThreshold([][]Fraction{{{Num: 1, Den: 2}, {Num: 1, Den: 2}}})
	if err != nil {
		t.Fatalf("NewWeightedThreshold: %v", err)
	}
	present := map[int]map[int]bool{0: {0: true, 1: true}}
	ok, err := th.EnoughWeighted(present)
	if err != nil {
		t.Fatalf("EnoughWeighted: %v", err)
	}
	if !ok {
		t.Error("1/2 + 1/2 should satisfy the clause")
	}
}

func TestWeightedThreshold_SingleClauseInsufficient(t *testing.T) {
	th, err := NewWeightedThreshold([][]Fraction{{{Num: 1, Den: 2}, {Num: 1, Den: 2}}})
	if err != nil {
		t.Fatalf("NewWeightedThreshold: %v", err)
	}
	present := map[int]map[int]bool{0: {0: true}}
	ok, err := th.EnoughWeighted(present)
	if err != nil {
		t.Fatalf("EnoughWeighted: %v", err)
	}
	if ok {
		t.Error("1/2 alone should not satisfy the clause")
	}
}

func TestWeightedThreshold_MultiClauseConjunctive(t *testing.T) {
	th, err := NewWeightedThreshold([][]Fraction{
		{{Num: 1, Den: 1}},
		{{Num: 1, Den: 2}, {Num: 1, Den: 2}},
	})
	if err != nil {
		t.Fatalf("NewWeightedThreshold: %v", err)
	}
	// Only the first clause is satisfied; the second is not, so the
	// conjunctive AND must fail overall.
	present := map[int]map[int]bool{0: {0: true}, 1: {0: true}}
	ok, err := th.EnoughWeighted(present)
	if err != nil {
		t.Fatalf("EnoughWeighted: %v", err)
	}
	if ok {
		t.Error("expected conjunctive failure when one clause is unsatisfied")
	}
}

func TestWeightedThreshold_RejectsEmptyClauses(t *testing.T) {
	if _, err := NewWeightedThreshold(nil); err == nil {
		t.Error("expected error for zero clauses")
	}
	if _, err := NewWeightedThreshold([][]Fraction{{}}); err == nil {
		t.Error("expected error for an empty clause")
	}
}

// ============================================================================
// JSON round-trip
// ============================================================================

func TestThreshold_JSONRoundTrip_Simple(t *testing.T) {
	th := NewSimpleThreshold(3)
	raw, err := th.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var parsed Threshold
	if err := parsed.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if parsed.Simple != 3 || parsed.IsWeighted() {
		t.Errorf("round-trip mismatch: got %+v", parsed)
	}
}

func TestThreshold_JSONRoundTrip_Weighted(t *testing.T) {
	th, err := NewWeightedThreshold([][]Fraction{{{Num: 1, Den: 2}, {Num: 1, Den: 2}}})
	if err != nil {
		t.Fatalf("NewWeightedThreshold: %v", err)
	}
	raw, err := th.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var parsed Threshold
	if err := parsed.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if !parsed.IsWeighted() || len(parsed.Weighted) != 1 || len(parsed.Weighted[0]) != 2 {
		t.Errorf("round-trip mismatch: got %+v", parsed)
	}
	if parsed.Weighted[0][0].Num != 1 || parsed.Weighted[0][0].Den != 2 {
		t.Errorf("fraction mismatch: got %+v", parsed.Weighted[0][0])
	}
}
