// Copyright 2025 Certen Protocol
//
// Unit tests for KeyEvent's JSON marshaling: hex sn encoding and round-trip.

package event

import (
	"encoding/json"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
)

func TestKeyEvent_SnHex(t *testing.T) {
	ev := &KeyEvent{Sn: 255}
	if ev.SnHex() != "ff" {
		t.Errorf("expected sn 255 to render as hex \"ff\", got %q", ev.SnHex())
	}
}

func TestKeyEvent_JSONRoundTrip(t *testing.T) {
	d, err := codec.NewDigest(codec.DigestBlake3_256, []byte("digest bytes"))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	ev := KeyEvent{
		Version: "KERI10JSON0000a0_",
		Kind:    Ixn,
		Digest:  d,
		Sn:      16,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var parsed KeyEvent
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if parsed.Sn != 16 {
		t.Errorf("expected sn 16 after round-trip, got %d", parsed.Sn)
	}
	if parsed.Kind != Ixn {
		t.Errorf("expected kind ixn after round-trip, got %s", parsed.Kind)
	}
	if !parsed.Digest.Equal(d) {
		t.Error("digest mismatch after round-trip")
	}
}

func TestKeyEvent_MarshalIsStable(t *testing.T) {
	ev := KeyEvent{Version: "KERI10JSON0000a0_", Kind: Icp, Sn: 0}
	raw1, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	raw2, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw1) != string(raw2) {
		t.Error("repeated marshal of the same value should be byte-identical")
	}
}
