// Copyright 2025 Certen Protocol
//
// Unit tests for event builders: threshold validation and kind-specific
// invariants enforced before an event is ever signed.

package event

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
)

func genKey(t *testing.T) codec.Prefix {
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

// ============================================================================
// BuildInception
// ============================================================================

func TestBuildInception_RequiresAtLeastOneKey(t *testing.T) {
	_, err := BuildInception(InceptionParams{
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err == nil {
		t.Error("expected error when no current keys are given")
	}
}

func TestBuildInception_RejectsBothHashesAndKeys(t *testing.T) {
	k := genKey(t)
	_, err := BuildInception(InceptionParams{
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{k},
		NextKeyHashes:    []codec.Digest{{Code: codec.DigestBlake3_256, Bytes: make([]byte, 32)}},
		HashCode:         codec.DigestBlake3_256,
	})
	if err == nil {
		t.Error("expected error when both NextKeys and NextKeyHashes are set")
	}
}

func TestBuildInception_DerivesHashesFromNextKeys(t *testing.T) {
	k := genKey(t)
	next := genKey(t)
	ev, err := BuildInception(InceptionParams{
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{next},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if len(ev.NextKeyHashes) != 1 {
		t.Fatalf("expected one derived next-key hash, got %d", len(ev.NextKeyHashes))
	}
	nextText, _ := next.Text()
	want, err := codec.NewDigest(codec.DigestBlake3_256, []byte(nextText))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	if !ev.NextKeyHashes[0].Equal(want) {
		t.Error("derived next-key hash does not match expected digest of the key text")
	}
}

func TestBuildInception_RejectsInvalidThreshold(t *testing.T) {
	k := genKey(t)
	_, err := BuildInception(InceptionParams{
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(5), // exceeds key count of 1
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err == nil {
		t.Error("expected error for signing threshold exceeding key count")
	}
}

func TestBuildInception_DelegatorSelectsDip(t *testing.T) {
	k := genKey(t)
	delegator := genKey(t)
	ev, err := BuildInception(InceptionParams{
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
		Delegator:        &delegator,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if ev.Kind != Dip {
		t.Errorf("expected kind dip when Delegator is set, got %s", ev.Kind)
	}
}

// ============================================================================
// BuildRotation
// ============================================================================

func TestBuildRotation_RejectsSnZero(t *testing.T) {
	k := genKey(t)
	_, err := BuildRotation(RotationParams{
		Sn:               0,
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err == nil {
		t.Error("expected error for rotation at sn 0")
	}
}

func TestBuildRotation_Valid(t *testing.T) {
	k := genKey(t)
	prev, err := codec.NewDigest(codec.DigestBlake3_256, []byte("prior event"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	ev, err := BuildRotation(RotationParams{
		Sn:               1,
		Prev:             prev,
		CurrentKeys:      []codec.Prefix{k},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildRotation: %v", err)
	}
	if ev.Kind != Rot {
		t.Errorf("expected kind rot, got %s", ev.Kind)
	}
	if ev.Sn != 1 || ev.Prev == nil || !ev.Prev.Equal(prev) {
		t.Error("rotation did not carry through sn/prev correctly")
	}
}

// ============================================================================
// BuildInteraction
// ============================================================================

func TestBuildInteraction_RejectsSnZero(t *testing.T) {
	_, err := BuildInteraction(InteractionParams{Sn: 0})
	if err == nil {
		t.Error("expected error for interaction at sn 0")
	}
}

func TestBuildInteraction_CarriesSeals(t *testing.T) {
	prev, err := codec.NewDigest(codec.DigestBlake3_256, []byte("prior event"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	seal := NewSourceSeal(1, prev)
	ev, err := BuildInteraction(InteractionParams{Sn: 2, Prev: prev, Seals: []Seal{seal}})
	if err != nil {
		t.Fatalf("BuildInteraction: %v", err)
	}
	if ev.Kind != Ixn {
		t.Errorf("expected kind ixn, got %s", ev.Kind)
	}
	if len(ev.Seals) != 1 {
		t.Fatalf("expected one seal, got %d", len(ev.Seals))
	}
}
