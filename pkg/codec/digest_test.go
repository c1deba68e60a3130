// Copyright 2025 Certen Protocol
//
// Unit tests for Digest: hashing, text round-trip, binding verification.

package codec

import "testing"

// ============================================================================
// Digest Hashing
// ============================================================================

func TestNewDigest_Blake3(t *testing.T) {
	d, err := NewDigest(DigestBlake3_256, []byte("hello"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	if len(d.Bytes) != 32 {
		t.Errorf("expected 32-byte digest, got %d", len(d.Bytes))
	}
	if d.Code != DigestBlake3_256 {
		t.Errorf("expected code %s, got %s", DigestBlake3_256, d.Code)
	}
}

func TestNewDigest_Deterministic(t *testing.T) {
	d1, err := NewDigest(DigestSHA2_256, []byte("same input"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	d2, err := NewDigest(DigestSHA2_256, []byte("same input"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	if !d1.Equal(d2) {
		t.Error("identical input should produce equal digests")
	}
}

func TestNewDigest_UnknownCode(t *testing.T) {
	if _, err := NewDigest(DigestCode("zz"), []byte("x")); err == nil {
		t.Error("expected error for unknown digest code")
	}
}

func TestNewDigest_Blake2s256(t *testing.T) {
	d, err := NewDigest(DigestBlake2s_256, []byte("x"))
	if err != nil {
		t.Fatalf("expected blake2s-256 to be supported: %v", err)
	}
	if len(d.Bytes) != 32 {
		t.Errorf("expected 32-byte blake2s-256 digest, got %d", len(d.Bytes))
	}
}

// ============================================================================
// VerifyBinding / Equal
// ============================================================================

func TestDigest_VerifyBinding(t *testing.T) {
	d, err := NewDigest(DigestBlake3_256, []byte("payload"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	ok, err := d.VerifyBinding([]byte("payload"))
	if err != nil {
		t.Fatalf("VerifyBinding: %v", err)
	}
	if !ok {
		t.Error("expected binding to verify against original payload")
	}
	ok, err = d.VerifyBinding([]byte("tampered"))
	if err != nil {
		t.Fatalf("VerifyBinding: %v", err)
	}
	if ok {
		t.Error("expected binding to fail against tampered payload")
	}
}

func TestDigest_IsZero(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Error("zero-value digest should report IsZero")
	}
	nonZero, _ := NewDigest(DigestBlake3_256, []byte("x"))
	if nonZero.IsZero() {
		t.Error("populated digest should not report IsZero")
	}
}

// ============================================================================
// Text round-trip
// ============================================================================

func TestDigest_TextRoundTrip(t *testing.T) {
	for _, code := range []DigestCode{DigestBlake3_256, DigestSHA2_256, DigestSHA3_256, DigestBlake2b_256} {
		d, err := NewDigest(code, []byte("round trip me"))
		if err != nil {
			t.Fatalf("NewDigest(%s): %v", code, err)
		}
		text, err := d.Text()
		if err != nil {
			t.Fatalf("Text(%s): %v", code, err)
		}
		parsed, err := ParseDigest(text)
		if err != nil {
			t.Fatalf("ParseDigest(%s): %v", code, err)
		}
		if !parsed.Equal(d) {
			t.Errorf("round-trip mismatch for code %s", code)
		}
	}
}

func TestPlaceholderText_MatchesRealLength(t *testing.T) {
	d, err := NewDigest(DigestBlake3_256, []byte("x"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	text, err := d.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	placeholder, err := PlaceholderText(DigestBlake3_256)
	if err != nil {
		t.Fatalf("PlaceholderText: %v", err)
	}
	if len(placeholder) != len(text) {
		t.Errorf("placeholder length %d does not match real digest text length %d", len(placeholder), len(text))
	}
}
