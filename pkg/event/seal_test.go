// Copyright 2025 Certen Protocol
//
// Unit tests for Seal: the three shapes (event-seal, digest-only,
// source-seal), matching, and JSON round-trip.

package event

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
)

func TestSeal_EventSealMatches(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	prefix, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	d, err := codec.NewDigest(codec.DigestBlake3_256, []byte("anchored event"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	seal := NewEventSeal(prefix, 3, d)
	if !seal.IsEventSeal() {
		t.Error("expected IsEventSeal true")
	}
	if !seal.Matches(prefix, 3, d) {
		t.Error("expected seal to match its own (prefix, sn, digest)")
	}
	if seal.Matches(prefix, 4, d) {
		t.Error("seal should not match a different sn")
	}
}

func TestSeal_SourceSealShape(t *testing.T) {
	d, err := codec.NewDigest(codec.DigestBlake3_256, []byte("kel event"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	seal := NewSourceSeal(7, d)
	if !seal.IsSourceSeal() {
		t.Error("expected IsSourceSeal true")
	}
	if seal.IsEventSeal() {
		t.Error("source seal should not report as an event seal (no prefix)")
	}
}

func TestSeal_JSONRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	prefix, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	d, err := codec.NewDigest(codec.DigestBlake3_256, []byte("anchored event"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	seal := NewEventSeal(prefix, 3, d)
	raw, err := json.Marshal(seal)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var parsed Seal
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !parsed.Matches(prefix, 3, d) {
		t.Error("round-tripped seal lost its (prefix, sn, digest) identity")
	}
}
