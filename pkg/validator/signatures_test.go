// Copyright 2025 Certen Protocol
//
// A partially-signed multisig inception must accumulate signatures across
// separate ValidateEvent calls rather than treat each call's signature set
// as the whole story (spec.md §4.5: the partially-signed escrow "accumulates
// additional indexed signatures arriving later, deduplicated by index").

package validator

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/storage"
	"github.com/certen/independant-validator/pkg/storage/memstore"
)

type sigSigner struct {
	pub codec.Prefix
	sk  ed25519.PrivateKey
}

func genSigSigner(t *testing.T) sigSigner {
	t.Helper()
	pub, sk, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	return sigSigner{pub: p, sk: sk}
}

func signAt(t *testing.T, ev *event.KeyEvent, s sigSigner, idx int) codec.IndexedSignature {
	t.Helper()
	cp := *ev
	raw, _, err := event.Serialize(&cp, codec.DigestCode(ev.Digest.Code))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	sig, err := codec.NewSignature(codec.SigEd25519Sha512, ed25519.Sign(s.sk, raw))
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	return codec.IndexedSignature{Index: codec.Index{Current: idx}, Sig: sig}
}

func TestValidateEvent_AccumulatesPartialSignatures(t *testing.T) {
	s0 := genSigSigner(t)
	s1 := genSigSigner(t)
	s2 := genSigSigner(t)
	next := genKey(t)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{s0.pub, s1.pub, s2.pub},
		SigningThreshold: codec.NewSimpleThreshold(2),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{next},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if _, _, err := event.Serialize(icp, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	store := storage.New(memstore.New())
	bus := notify.New()
	escrows := escrow.NewManager(bus, escrow.DefaultConfig())
	v := New(DefaultConfig(), store, bus).WithPartialSignatureEscrow(escrows.PartiallySigned)

	sig0 := signAt(t, icp, s0, 0)
	r, err := v.ValidateEvent(icp, []codec.IndexedSignature{sig0})
	if err != nil {
		t.Fatalf("ValidateEvent (1st sig): %v", err)
	}
	if r.Outcome != OutcomeEscrowedPartialSigs {
		t.Fatalf("expected escrow after one of two required signatures, got %s (errs=%v)", r.Outcome, r.Errors)
	}

	key, err := escrow.DigestKey(icp.Digest)
	if err != nil {
		t.Fatalf("DigestKey: %v", err)
	}
	entry, ok := escrows.PartiallySigned.Get(key)
	if !ok {
		t.Fatalf("expected the first signature to be escrowed")
	}
	payload := entry.Payload.(escrow.PartiallySignedPayload)
	if len(payload.Sigs) != 1 {
		t.Fatalf("expected exactly one escrowed signature, got %d", len(payload.Sigs))
	}

	// A second, independent signature submission (e.g. forwarded by a
	// different group member through its own mailbox exchange) must merge
	// with the first rather than replace it.
	sig1 := signAt(t, icp, s1, 1)
	r, err = v.ValidateEvent(icp, []codec.IndexedSignature{sig1})
	if err != nil {
		t.Fatalf("ValidateEvent (2nd sig): %v", err)
	}
	if r.Outcome != OutcomeAccepted {
		t.Fatalf("expected acceptance once threshold is met across two submissions, got %s (errs=%v)", r.Outcome, r.Errors)
	}

	if _, ok := escrows.PartiallySigned.Get(key); ok {
		t.Fatalf("partially-signed escrow entry must be cleared once the event is accepted")
	}
	stored, err := store.GetSignatures(icp.Digest)
	if err != nil {
		t.Fatalf("GetSignatures: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected both accumulated signatures persisted, got %d", len(stored))
	}
}

// Resubmitting the exact same lone signature twice must not accumulate a
// duplicate entry at the same index: the threshold still must not be met by
// one signer counted twice.
func TestValidateEvent_DoesNotDoubleCountSameIndex(t *testing.T) {
	s0 := genSigSigner(t)
	s1 := genSigSigner(t)
	next := genKey(t)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{s0.pub, s1.pub},
		SigningThreshold: codec.NewSimpleThreshold(2),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{next},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if _, _, err := event.Serialize(icp, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	store := storage.New(memstore.New())
	bus := notify.New()
	escrows := escrow.NewManager(bus, escrow.DefaultConfig())
	v := New(DefaultConfig(), store, bus).WithPartialSignatureEscrow(escrows.PartiallySigned)

	sig0 := signAt(t, icp, s0, 0)
	for i := 0; i < 2; i++ {
		r, err := v.ValidateEvent(icp, []codec.IndexedSignature{sig0})
		if err != nil {
			t.Fatalf("ValidateEvent (repeat %d): %v", i, err)
		}
		if r.Outcome != OutcomeEscrowedPartialSigs {
			t.Fatalf("expected repeated lone signature to stay below threshold, got %s", r.Outcome)
		}
	}
}
