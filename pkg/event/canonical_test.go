// Copyright 2025 Certen Protocol
//
// Unit tests for canonical serialization: the placeholder-then-patch
// round-trip property and digest binding.

package event

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
)

func newInceptionEvent(t *testing.T) *KeyEvent {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	key, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	nextDigest, err := codec.NewDigest(codec.DigestBlake3_256, []byte("next key commitment"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	ev, err := BuildInception(InceptionParams{
		CurrentKeys:      []codec.Prefix{key},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeyHashes:    []codec.Digest{nextDigest},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	return ev
}

// ============================================================================
// Canonical Round Trip
// ============================================================================

func TestSerialize_CanonicalRoundTrip(t *testing.T) {
	ev := newInceptionEvent(t)
	raw1, digest1, err := Serialize(ev, codec.DigestBlake3_256)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if ev.Digest.IsZero() {
		t.Error("Serialize should populate ev.Digest")
	}
	if ev.Prefix.IsZero() {
		t.Error("Serialize should self-address ev.Prefix for an inception event")
	}

	// Reserializing the already-serialized event must produce byte-identical
	// output: the canonical round-trip property.
	cp := *ev
	raw2, digest2, err := Serialize(&cp, codec.DigestBlake3_256)
	if err != nil {
		t.Fatalf("Serialize (second pass): %v", err)
	}
	if string(raw1) != string(raw2) {
		t.Errorf("reserialization not byte-identical:\n%s\nvs\n%s", raw1, raw2)
	}
	if !digest1.Equal(digest2) {
		t.Error("reserialization produced a different digest")
	}
}

func TestSerialize_VersionStringEncodesLength(t *testing.T) {
	ev := newInceptionEvent(t)
	raw, _, err := Serialize(ev, codec.DigestBlake3_256)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(ev.Version) != versionLen {
		t.Errorf("expected version string of length %d, got %d (%q)", versionLen, len(ev.Version), ev.Version)
	}
	if len(raw) == 0 {
		t.Error("expected non-empty serialization")
	}
}

// ============================================================================
// Digest Binding
// ============================================================================

func TestVerifyDigestBinding_ValidEvent(t *testing.T) {
	ev := newInceptionEvent(t)
	if _, _, err := Serialize(ev, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	ok, err := VerifyDigestBinding(*ev)
	if err != nil {
		t.Fatalf("VerifyDigestBinding: %v", err)
	}
	if !ok {
		t.Error("expected digest binding to verify for an untampered event")
	}
}

func TestVerifyDigestBinding_TamperedEvent(t *testing.T) {
	ev := newInceptionEvent(t)
	if _, _, err := Serialize(ev, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	ev.Sn = 99 // tamper after digest was computed
	ok, err := VerifyDigestBinding(*ev)
	if err != nil {
		t.Fatalf("VerifyDigestBinding: %v", err)
	}
	if ok {
		t.Error("expected digest binding to fail for a tampered event")
	}
}
