// Copyright 2025 Certen Protocol
//
// ElectLeader must pick the participant holding the smallest current key
// index, not the lexicographically smallest identifier (spec.md §4.7).

package agent

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
)

func genPrefix(t *testing.T) codec.Prefix {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	return p
}

func TestElectLeader_PicksSmallestCurrentIndex(t *testing.T) {
	a := genPrefix(t)
	b := genPrefix(t)
	c := genPrefix(t)

	participants := []Signer{
		{Prefix: a, Sig: codec.IndexedSignature{Index: codec.Index{Current: 2}}},
		{Prefix: b, Sig: codec.IndexedSignature{Index: codec.Index{Current: 0}}},
		{Prefix: c, Sig: codec.IndexedSignature{Index: codec.Index{Current: 1}}},
	}

	leader, err := ElectLeader(participants)
	if err != nil {
		t.Fatalf("ElectLeader: %v", err)
	}
	if !leader.Equal(b) {
		t.Fatalf("expected the participant at index 0 to win regardless of identifier ordering")
	}
}

func TestElectLeader_EmptyParticipants(t *testing.T) {
	if _, err := ElectLeader(nil); err == nil {
		t.Fatalf("expected an error electing a leader from no participants")
	}
}
