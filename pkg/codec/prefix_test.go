// Copyright 2025 Certen Protocol
//
// Unit tests for Prefix: basic and self-addressing construction, text
// round-trip, equality.

package codec

import (
	"crypto/ed25519"
	"testing"
)

func TestBasicEd25519Prefix_TextRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	text, err := p.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	parsed, err := ParsePrefix(text)
	if err != nil {
		t.Fatalf("ParsePrefix: %v", err)
	}
	if !parsed.Equal(p) {
		t.Error("round-trip mismatch for basic ed25519 prefix")
	}
	if !parsed.IsTransferable() {
		t.Error("basic ed25519 prefix should be transferable")
	}
	if !parsed.IsBasic() {
		t.Error("expected basic prefix")
	}
}

func TestNonTransferablePrefix(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := NewNonTransferablePrefix(pub)
	if err != nil {
		t.Fatalf("NewNonTransferablePrefix: %v", err)
	}
	if p.IsTransferable() {
		t.Error("non-transferable prefix reported as transferable")
	}
}

func TestSelfAddressingPrefix_TextRoundTrip(t *testing.T) {
	d, err := NewDigest(DigestBlake3_256, []byte("inception bytes"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	p := NewSelfAddressingPrefix(d)
	text, err := p.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	parsed, err := ParsePrefix(text)
	if err != nil {
		t.Fatalf("ParsePrefix: %v", err)
	}
	if !parsed.Equal(p) {
		t.Error("round-trip mismatch for self-addressing prefix")
	}
}

func TestPrefix_IsZero(t *testing.T) {
	var p Prefix
	if !p.IsZero() {
		t.Error("zero-value prefix should report IsZero")
	}
	pub, _, _ := ed25519.GenerateKey(nil)
	nonZero, _ := NewBasicEd25519Prefix(pub)
	if nonZero.IsZero() {
		t.Error("populated prefix should not report IsZero")
	}
}

func TestBasicEd25519Prefix_RejectsWrongSize(t *testing.T) {
	if _, err := NewBasicEd25519Prefix([]byte("too short")); err == nil {
		t.Error("expected error for undersized public key")
	}
}
