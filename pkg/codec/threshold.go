// Copyright 2025 Certen Protocol
//
// Signing threshold: a simple integer count, or one or more weighted
// clauses of fractional shares that must each sum to >= 1 and combine
// conjunctively (§9 design note). Fractions are represented as exact
// integer ratios to avoid floating-point drift, mirroring the original
// Rust implementation's preference for an exact rational representation
// over floats (see keriox_core/src/event/sections/threshold.rs in
// original_source).

package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fraction is an exact num/den pair, den > 0.
type Fraction struct {
	Num int64
	Den int64
}

func (f Fraction) valid() bool { return f.Den > 0 && f.Num >= 0 }

// Threshold is either Simple (a plain signer count) or Weighted (one or
// more conjunctive clauses of fractional shares).
type Threshold struct {
	Simple   int
	Weighted [][]Fraction // outer: clauses (AND); inner: shares (sum must be >= 1)
}

// NewSimpleThreshold builds a plain-count threshold. Invariant: n must not
// exceed the number of keys it will be checked against; that check happens
// at verification time, where the key count is known.
func NewSimpleThreshold(n int) Threshold {
	return Threshold{Simple: n}
}

// NewWeightedThreshold builds a multi-clause weighted threshold.
func NewWeightedThreshold(clauses [][]Fraction) (Threshold, error) {
	if len(clauses) == 0 {
		return Threshold{}, fmt.Errorf("codec: weighted threshold needs at least one clause")
	}
	for ci, clause := range clauses {
		if len(clause) == 0 {
			return Threshold{}, fmt.Errorf("codec: threshold clause %d is empty", ci)
		}
		for _, f := range clause {
			if !f.valid() {
				return Threshold{}, fmt.Errorf("codec: threshold clause %d has invalid fraction %d/%d", ci, f.Num, f.Den)
			}
		}
	}
	return Threshold{Weighted: clauses}, nil
}

// IsWeighted reports whether this threshold uses fractional clauses.
func (t Threshold) IsWeighted() bool {
	return len(t.Weighted) > 0
}

// EnoughSignatures reports whether presentCount verified signatures satisfy
// a simple threshold over keyCount keys. It returns an error for a weighted
// threshold: callers map signer positions into the clause layout with
// ClauseForKey and check the result with EnoughWeighted.
func (t Threshold) EnoughSignatures(keyCount int, presentCount int) (bool, error) {
	if t.IsWeighted() {
		return false, fmt.Errorf("codec: EnoughSignatures called with key count on a weighted threshold; use EnoughWeighted")
	}
	if t.Simple <= 0 {
		return false, fmt.Errorf("codec: simple threshold must be positive")
	}
	if t.Simple > keyCount {
		return false, fmt.Errorf("codec: simple threshold %d exceeds key count %d", t.Simple, keyCount)
	}
	return presentCount >= t.Simple, nil
}

// EnoughWeighted reports whether, for every clause, the fractional shares
// at the present key-position indexes sum to >= 1. present maps clause
// index -> set of key positions (within that clause's key ordering) whose
// signature is present.
func (t Threshold) EnoughWeighted(present map[int]map[int]bool) (bool, error) {
	if !t.IsWeighted() {
		return false, fmt.Errorf("codec: EnoughWeighted called on a simple threshold")
	}
	for ci, clause := range t.Weighted {
		var num, den int64 = 0, 1
		have := present[ci]
		for ki, frac := range clause {
			if !have[ki] {
				continue
			}
			// num/den += frac.Num/frac.Den via common denominator den*frac.Den
			num = num*frac.Den + frac.Num*den
			den = den * frac.Den
		}
		if den == 0 || num < den {
			return false, nil
		}
	}
	return true, nil
}

// ClauseForKey maps a flat key position (its index in the overall
// CurrentKeys/NextKeyHashes ordering) to the weighted clause that governs it
// and its local position within that clause. Clauses partition the key
// ordering consecutively, in declaration order: a threshold with clauses of
// sizes [2,3] covers keys 0-1 in clause 0 and keys 2-4 in clause 1. ok is
// false when globalIdx falls outside every clause.
func (t Threshold) ClauseForKey(globalIdx int) (clause int, local int, ok bool) {
	offset := 0
	for ci, c := range t.Weighted {
		if globalIdx < offset+len(c) {
			return ci, globalIdx - offset, true
		}
		offset += len(c)
	}
	return 0, 0, false
}

// MarshalJSON renders a simple threshold as an integer string and a
// weighted threshold as nested arrays of "num/den" strings, matching the
// wire shape the original implementation round-trips.
func (t Threshold) MarshalJSON() ([]byte, error) {
	if !t.IsWeighted() {
		return json.Marshal(fmt.Sprintf("%d", t.Simple))
	}
	clauses := make([][]string, len(t.Weighted))
	for ci, clause := range t.Weighted {
		clauses[ci] = make([]string, len(clause))
		for ki, f := range clause {
			if f.Den == 1 {
				clauses[ci][ki] = fmt.Sprintf("%d", f.Num)
			} else {
				clauses[ci][ki] = fmt.Sprintf("%d/%d", f.Num, f.Den)
			}
		}
	}
	if len(clauses) == 1 {
		return json.Marshal(clauses[0])
	}
	return json.Marshal(clauses)
}

// UnmarshalJSON accepts a plain count string, a single clause ["1/2","1/2"],
// or multiple clauses [["1/2","1/2"],["1"]].
func (t *Threshold) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		n, err := strconv.Atoi(asString)
		if err != nil {
			return fmt.Errorf("codec: invalid simple threshold %q: %w", asString, err)
		}
		*t = Threshold{Simple: n}
		return nil
	}

	var singleClause []string
	if err := json.Unmarshal(data, &singleClause); err == nil {
		fracs, err := parseFractions(singleClause)
		if err != nil {
			return err
		}
		*t = Threshold{Weighted: [][]Fraction{fracs}}
		return nil
	}

	var multiClause [][]string
	if err := json.Unmarshal(data, &multiClause); err != nil {
		return fmt.Errorf("%w: threshold: %v", ErrMalformedPrimitive, err)
	}
	clauses := make([][]Fraction, len(multiClause))
	for i, c := range multiClause {
		fracs, err := parseFractions(c)
		if err != nil {
			return err
		}
		clauses[i] = fracs
	}
	*t = Threshold{Weighted: clauses}
	return nil
}

func parseFractions(raw []string) ([]Fraction, error) {
	out := make([]Fraction, len(raw))
	for i, s := range raw {
		if num, den, ok := strings.Cut(s, "/"); ok {
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: fraction numerator %q", ErrMalformedPrimitive, num)
			}
			d, err := strconv.ParseInt(den, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: fraction denominator %q", ErrMalformedPrimitive, den)
			}
			out[i] = Fraction{Num: n, Den: d}
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: fraction %q", ErrMalformedPrimitive, s)
		}
		out[i] = Fraction{Num: n, Den: 1}
	}
	return out, nil
}
