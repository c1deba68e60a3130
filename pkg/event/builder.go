// Copyright 2025 Certen Protocol
//
// Event builders enforce structural invariants before an event is ever
// signed: exactly one key set, next-keys-data derived either directly from
// digests or by hashing a next-key list, and threshold invariants (weighted
// clause sums >= 1, simple threshold <= key count).

package event

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// InceptionParams describes an icp or dip event before signing.
type InceptionParams struct {
	CurrentKeys      []codec.Prefix
	SigningThreshold codec.Threshold
	NextThreshold    codec.Threshold
	// Exactly one of NextKeyHashes or NextKeys must be set: either the next
	// commitment is given directly as digests, or as a key list to be
	// hashed under HashCode.
	NextKeyHashes []codec.Digest
	NextKeys      []codec.Prefix
	HashCode      codec.DigestCode
	Witnesses     []codec.Prefix
	WitnessThreshold int
	Traits        []string
	Seals         []Seal
	Delegator     *codec.Prefix // set only for dip
}

func (p InceptionParams) resolveNextKeyHashes() ([]codec.Digest, error) {
	if len(p.NextKeyHashes) > 0 && len(p.NextKeys) > 0 {
		return nil, fmt.Errorf("event: next-keys-data must be given as either digests or keys, not both")
	}
	if len(p.NextKeyHashes) > 0 {
		return p.NextKeyHashes, nil
	}
	if len(p.NextKeys) == 0 {
		return nil, fmt.Errorf("event: inception requires next-keys-data")
	}
	out := make([]codec.Digest, len(p.NextKeys))
	for i, k := range p.NextKeys {
		text, err := k.Text()
		if err != nil {
			return nil, err
		}
		d, err := codec.NewDigest(p.HashCode, []byte(text))
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func validateThreshold(t codec.Threshold, keyCount int) error {
	if t.IsWeighted() {
		for ci, clause := range t.Weighted {
			var num, den int64 = 0, 1
			for _, f := range clause {
				num = num*f.Den + f.Num*den
				den = den * f.Den
			}
			if num < den {
				return fmt.Errorf("event: weighted threshold clause %d sums to less than 1", ci)
			}
		}
		return nil
	}
	if t.Simple <= 0 || t.Simple > keyCount {
		return fmt.Errorf("event: simple threshold %d invalid for %d keys", t.Simple, keyCount)
	}
	return nil
}

// BuildInception constructs an unsigned, undigested icp (or dip, if
// Delegator is set) event ready for Serialize.
func BuildInception(p InceptionParams) (*KeyEvent, error) {
	if len(p.CurrentKeys) == 0 {
		return nil, fmt.Errorf("event: inception requires at least one current key")
	}
	if err := validateThreshold(p.SigningThreshold, len(p.CurrentKeys)); err != nil {
		return nil, err
	}
	nextHashes, err := p.resolveNextKeyHashes()
	if err != nil {
		return nil, err
	}
	if err := validateThreshold(p.NextThreshold, len(nextHashes)); err != nil {
		return nil, err
	}
	if p.WitnessThreshold < 0 || p.WitnessThreshold > len(p.Witnesses) {
		return nil, fmt.Errorf("event: witness threshold %d invalid for %d witnesses", p.WitnessThreshold, len(p.Witnesses))
	}

	kind := Icp
	if p.Delegator != nil {
		kind = Dip
	}
	wt := p.WitnessThreshold
	st := p.SigningThreshold
	nt := p.NextThreshold
	return &KeyEvent{
		Kind:             kind,
		Sn:               0,
		SigningThreshold: &st,
		CurrentKeys:      p.CurrentKeys,
		NextThreshold:    &nt,
		NextKeyHashes:    nextHashes,
		Witnesses:        p.Witnesses,
		WitnessThreshold: &wt,
		Traits:           p.Traits,
		Seals:            p.Seals,
		Delegator:        p.Delegator,
	}, nil
}

// RotationParams describes a rot or drt event before signing.
type RotationParams struct {
	Prefix           codec.Prefix
	Sn               uint64
	Prev             codec.Digest
	CurrentKeys      []codec.Prefix
	SigningThreshold codec.Threshold
	NextThreshold    codec.Threshold
	NextKeyHashes    []codec.Digest
	NextKeys         []codec.Prefix
	HashCode         codec.DigestCode
	WitnessesAdd     []codec.Prefix
	WitnessesRemove  []codec.Prefix
	WitnessThreshold int
	Seals            []Seal
	Delegated        bool
}

func (p RotationParams) resolveNextKeyHashes() ([]codec.Digest, error) {
	ip := InceptionParams{NextKeyHashes: p.NextKeyHashes, NextKeys: p.NextKeys, HashCode: p.HashCode}
	return ip.resolveNextKeyHashes()
}

// BuildRotation constructs an unsigned, undigested rot (or drt) event.
func BuildRotation(p RotationParams) (*KeyEvent, error) {
	if p.Sn == 0 {
		return nil, fmt.Errorf("event: rotation sn must be > 0")
	}
	if len(p.CurrentKeys) == 0 {
		return nil, fmt.Errorf("event: rotation requires at least one current key")
	}
	if err := validateThreshold(p.SigningThreshold, len(p.CurrentKeys)); err != nil {
		return nil, err
	}
	nextHashes, err := p.resolveNextKeyHashes()
	if err != nil {
		return nil, err
	}
	if err := validateThreshold(p.NextThreshold, len(nextHashes)); err != nil {
		return nil, err
	}

	kind := Rot
	if p.Delegated {
		kind = Drt
	}
	wt := p.WitnessThreshold
	st := p.SigningThreshold
	nt := p.NextThreshold
	prev := p.Prev
	return &KeyEvent{
		Kind:             kind,
		Prefix:           p.Prefix,
		Sn:               p.Sn,
		Prev:             &prev,
		SigningThreshold: &st,
		CurrentKeys:      p.CurrentKeys,
		NextThreshold:    &nt,
		NextKeyHashes:    nextHashes,
		WitnessesAdd:     p.WitnessesAdd,
		WitnessesRemove:  p.WitnessesRemove,
		WitnessThreshold: &wt,
		Seals:            p.Seals,
	}, nil
}

// InteractionParams describes an ixn event before signing.
type InteractionParams struct {
	Prefix codec.Prefix
	Sn     uint64
	Prev   codec.Digest
	Seals  []Seal
}

// BuildInteraction constructs an unsigned, undigested ixn event. Interaction
// events never change key state (spec.md §3): only prev digest and seals.
func BuildInteraction(p InteractionParams) (*KeyEvent, error) {
	if p.Sn == 0 {
		return nil, fmt.Errorf("event: interaction sn must be > 0")
	}
	prev := p.Prev
	return &KeyEvent{
		Kind:   Ixn,
		Prefix: p.Prefix,
		Sn:     p.Sn,
		Prev:   &prev,
		Seals:  p.Seals,
	}, nil
}
