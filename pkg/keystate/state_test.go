// Copyright 2025 Certen Protocol
//
// Unit tests for Apply: inception, rotation, and interaction transitions,
// plus the ordering and compromised-identifier rejections the projector is
// responsible for catching.

package keystate

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
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

func inceptionEvent(t *testing.T) *event.KeyEvent {
	t.Helper()
	key := genKey(t)
	ev, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{key},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if _, _, err := event.Serialize(ev, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return ev
}

func TestApply_Inception(t *testing.T) {
	ev := inceptionEvent(t)
	state, err := Apply(nil, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if state.Sn != 0 {
		t.Errorf("expected sn 0 after inception, got %d", state.Sn)
	}
	if !state.LastDigest.Equal(ev.Digest) {
		t.Error("expected state.LastDigest to equal the inception event's digest")
	}
	if len(state.CurrentKeys) != 1 {
		t.Errorf("expected one current key, got %d", len(state.CurrentKeys))
	}
}

func TestApply_InceptionRequiresSnZero(t *testing.T) {
	ev := inceptionEvent(t)
	ev.Sn = 1
	if _, err := Apply(nil, ev); err == nil {
		t.Error("expected error for inception at non-zero sn")
	}
}

func TestApply_RotationAdvancesState(t *testing.T) {
	icp := inceptionEvent(t)
	state, err := Apply(nil, icp)
	if err != nil {
		t.Fatalf("Apply(inception): %v", err)
	}

	rot, err := event.BuildRotation(event.RotationParams{
		Prefix:           state.Prefix,
		Sn:               1,
		Prev:             state.LastDigest,
		CurrentKeys:      []codec.Prefix{genKey(t)},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildRotation: %v", err)
	}
	if _, _, err := event.Serialize(rot, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	next, err := Apply(state, rot)
	if err != nil {
		t.Fatalf("Apply(rotation): %v", err)
	}
	if next.Sn != 1 {
		t.Errorf("expected sn 1 after rotation, got %d", next.Sn)
	}
	if !next.LastDigest.Equal(rot.Digest) {
		t.Error("expected state.LastDigest to equal the rotation event's digest")
	}
}

func TestApply_RejectsOutOfOrderSn(t *testing.T) {
	icp := inceptionEvent(t)
	state, err := Apply(nil, icp)
	if err != nil {
		t.Fatalf("Apply(inception): %v", err)
	}

	rot, err := event.BuildRotation(event.RotationParams{
		Prefix:           state.Prefix,
		Sn:               5, // should be 1
		Prev:             state.LastDigest,
		CurrentKeys:      []codec.Prefix{genKey(t)},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genKey(t)},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildRotation: %v", err)
	}
	if _, err := Apply(state, rot); err == nil {
		t.Error("expected error for rotation at an unexpected sn")
	}
}

func TestApply_RejectsOnCompromisedIdentifier(t *testing.T) {
	icp := inceptionEvent(t)
	state, err := Apply(nil, icp)
	if err != nil {
		t.Fatalf("Apply(inception): %v", err)
	}
	state.MarkCompromised()

	ixn, err := event.BuildInteraction(event.InteractionParams{Sn: 1, Prev: state.LastDigest})
	if err != nil {
		t.Fatalf("BuildInteraction: %v", err)
	}
	if _, err := Apply(state, ixn); err == nil {
		t.Error("expected error applying an event to a compromised identifier")
	}
}

func TestApply_InteractionPreservesKeys(t *testing.T) {
	icp := inceptionEvent(t)
	state, err := Apply(nil, icp)
	if err != nil {
		t.Fatalf("Apply(inception): %v", err)
	}

	ixn, err := event.BuildInteraction(event.InteractionParams{Sn: 1, Prev: state.LastDigest})
	if err != nil {
		t.Fatalf("BuildInteraction: %v", err)
	}
	if _, _, err := event.Serialize(ixn, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	next, err := Apply(state, ixn)
	if err != nil {
		t.Fatalf("Apply(interaction): %v", err)
	}
	if len(next.CurrentKeys) != len(state.CurrentKeys) {
		t.Error("interaction must not change key state")
	}
	if !next.LastDigest.Equal(ixn.Digest) {
		t.Error("expected state.LastDigest to advance to the interaction event's digest")
	}
}
