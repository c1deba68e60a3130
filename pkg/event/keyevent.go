// Copyright 2025 Certen Protocol
//
// KeyEvent models the five KEL event kinds (icp, rot, ixn, dip, drt) as one
// struct with kind-specific fields left empty where not applicable,
// following the teacher's preference (pkg/database/types.go) for flat
// structs with db/json tags over a polymorphic interface hierarchy; §9's
// design note additionally warns against vtables over a single "Event"
// interface here, since kind-specific fields differ in essential ways.

package event

import (
	"encoding/json"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// NextKeysData commits to the next key set without revealing it: a
// threshold plus digests of the next public keys.
type NextKeysData struct {
	Threshold codec.Threshold `json:"nt"`
	NextKeyHashes []codec.Digest `json:"n"`
}

// KeyEvent is the common envelope plus every kind-specific field.
type KeyEvent struct {
	Version string     `json:"v"`
	Kind    Kind       `json:"t"`
	Digest  codec.Digest `json:"d"`
	Prefix  codec.Prefix `json:"i"`
	Sn      uint64     `json:"s"`
	Prev    *codec.Digest `json:"p,omitempty"`

	// icp / dip
	SigningThreshold *codec.Threshold `json:"kt,omitempty"`
	CurrentKeys      []codec.Prefix   `json:"k,omitempty"`
	NextThreshold    *codec.Threshold `json:"nt,omitempty"`
	NextKeyHashes    []codec.Digest   `json:"n,omitempty"`
	Witnesses        []codec.Prefix   `json:"b,omitempty"`
	WitnessThreshold *int             `json:"bt,omitempty"`
	Traits           []string         `json:"c,omitempty"`
	Delegator        *codec.Prefix    `json:"di,omitempty"` // dip only

	// rot / drt
	WitnessesAdd    []codec.Prefix `json:"ba,omitempty"`
	WitnessesRemove []codec.Prefix `json:"br,omitempty"`

	// icp/dip/rot/drt/ixn
	Seals []Seal `json:"a,omitempty"`
}

// SnHex renders Sn as the lowercase hex string KERI wire format uses.
func (e *KeyEvent) SnHex() string { return fmt.Sprintf("%x", e.Sn) }

// keyEventWire mirrors KeyEvent but renders Sn as hex text, since Go's
// encoding/json has no built-in "marshal uint64 as hex" tag.
type keyEventWire struct {
	Version string `json:"v"`
	Kind    Kind   `json:"t"`
	Digest  codec.Digest `json:"d"`
	Prefix  codec.Prefix `json:"i"`
	Sn      string `json:"s"`
	Prev    *codec.Digest `json:"p,omitempty"`

	SigningThreshold *codec.Threshold `json:"kt,omitempty"`
	CurrentKeys      []codec.Prefix   `json:"k,omitempty"`
	NextThreshold    *codec.Threshold `json:"nt,omitempty"`
	NextKeyHashes    []codec.Digest   `json:"n,omitempty"`
	Witnesses        []codec.Prefix   `json:"b,omitempty"`
	WitnessThreshold *int             `json:"bt,omitempty"`
	Traits           []string         `json:"c,omitempty"`
	Delegator        *codec.Prefix    `json:"di,omitempty"`

	WitnessesAdd    []codec.Prefix `json:"ba,omitempty"`
	WitnessesRemove []codec.Prefix `json:"br,omitempty"`

	Seals []Seal `json:"a,omitempty"`
}

// MarshalJSON renders the event with a hex sn, preserving declared field
// order so repeated marshals of the same value are byte-identical — the
// canonical round-trip property spec.md §8 requires.
func (e KeyEvent) MarshalJSON() ([]byte, error) {
	w := keyEventWire{
		Version: e.Version, Kind: e.Kind, Digest: e.Digest, Prefix: e.Prefix,
		Sn: e.SnHex(), Prev: e.Prev,
		SigningThreshold: e.SigningThreshold, CurrentKeys: e.CurrentKeys,
		NextThreshold: e.NextThreshold, NextKeyHashes: e.NextKeyHashes,
		Witnesses: e.Witnesses, WitnessThreshold: e.WitnessThreshold,
		Traits: e.Traits, Delegator: e.Delegator,
		WitnessesAdd: e.WitnessesAdd, WitnessesRemove: e.WitnessesRemove,
		Seals: e.Seals,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the hex sn back into a uint64.
func (e *KeyEvent) UnmarshalJSON(data []byte) error {
	var w keyEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var sn uint64
	if w.Sn != "" {
		if _, err := fmt.Sscanf(w.Sn, "%x", &sn); err != nil {
			return fmt.Errorf("event: sn: %w", err)
		}
	}
	*e = KeyEvent{
		Version: w.Version, Kind: w.Kind, Digest: w.Digest, Prefix: w.Prefix,
		Sn: sn, Prev: w.Prev,
		SigningThreshold: w.SigningThreshold, CurrentKeys: w.CurrentKeys,
		NextThreshold: w.NextThreshold, NextKeyHashes: w.NextKeyHashes,
		Witnesses: w.Witnesses, WitnessThreshold: w.WitnessThreshold,
		Traits: w.Traits, Delegator: w.Delegator,
		WitnessesAdd: w.WitnessesAdd, WitnessesRemove: w.WitnessesRemove,
		Seals: w.Seals,
	}
	return nil
}
