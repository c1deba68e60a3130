// Copyright 2025 Certen Protocol
//
// Exercises the escrow-liveness property spec.md §8 names: an event
// submitted out of order must eventually land in the KEL once the event it
// was waiting on arrives, with no external re-submission required.

package coordinator

import (
	"crypto/ed25519"
	"testing"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/escrow"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/notify"
	"github.com/certen/independant-validator/pkg/reply"
	"github.com/certen/independant-validator/pkg/storage"
	"github.com/certen/independant-validator/pkg/storage/memstore"
	"github.com/certen/independant-validator/pkg/tel"
	"github.com/certen/independant-validator/pkg/validator"
)

type signer struct {
	pub codec.Prefix
	sk  ed25519.PrivateKey
}

func genSigner(t *testing.T) signer {
	t.Helper()
	pub, sk, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	p, err := codec.NewBasicEd25519Prefix(pub)
	if err != nil {
		t.Fatalf("NewBasicEd25519Prefix: %v", err)
	}
	return signer{pub: p, sk: sk}
}

func signEvent(t *testing.T, ev *event.KeyEvent, s signer) []codec.IndexedSignature {
	t.Helper()
	return signEventIndex(t, ev, s, codec.Index{Current: 0})
}

// signRotation signs a rotation/delegated-rotation event and marks the sole
// signer as redeeming slot 0 of the prior next-keys-data commitment -- the
// single-signer "both-same" pairing (§9) this fixture's single-key
// identifiers always use.
func signRotation(t *testing.T, ev *event.KeyEvent, s signer) []codec.IndexedSignature {
	t.Helper()
	return signEventIndex(t, ev, s, codec.Index{Current: 0, PreviousNext: 0, HasPreviousNext: true})
}

func signEventIndex(t *testing.T, ev *event.KeyEvent, s signer, idx codec.Index) []codec.IndexedSignature {
	t.Helper()
	cp := *ev
	raw, _, err := event.Serialize(&cp, codec.DigestCode(ev.Digest.Code))
	if err != nil {
		t.Fatalf("Serialize (sign pass): %v", err)
	}
	sig, err := codec.NewSignature(codec.SigEd25519Sha512, ed25519.Sign(s.sk, raw))
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	return []codec.IndexedSignature{{Index: idx, Sig: sig}}
}

func newFixture(t *testing.T) (*validator.Validator, *tel.Engine, *escrow.Manager, *storage.Storage) {
	t.Helper()
	store := storage.New(memstore.New())
	bus := notify.New()
	escrows := escrow.NewManager(bus, escrow.DefaultConfig())
	v := validator.New(validator.DefaultConfig(), store, bus).WithPartialSignatureEscrow(escrows.PartiallySigned)
	eng := tel.New(store, bus)
	replies := reply.New(store, bus)
	New(bus, escrows, v, eng, replies)
	return v, eng, escrows, store
}

func TestCoordinator_ResolvesOutOfOrderChain(t *testing.T) {
	v, _, escrows, store := newFixture(t)
	s0 := genSigner(t)
	s1 := genSigner(t)
	s2 := genSigner(t)

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{s0.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{s1.pub},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if _, _, err := event.Serialize(icp, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize icp: %v", err)
	}
	icpSigs := signEvent(t, icp, s0)
	if r, err := v.ValidateEvent(icp, icpSigs); err != nil || r.Outcome != validator.OutcomeAccepted {
		t.Fatalf("icp not accepted: %+v err=%v", r, err)
	}

	rot1, err := event.BuildRotation(event.RotationParams{
		Prefix:           icp.Prefix,
		Sn:               1,
		Prev:             icp.Digest,
		CurrentKeys:      []codec.Prefix{s1.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{s2.pub},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildRotation rot1: %v", err)
	}
	if _, _, err := event.Serialize(rot1, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize rot1: %v", err)
	}
	rot1Sigs := signRotation(t, rot1, s1)

	rot2, err := event.BuildRotation(event.RotationParams{
		Prefix:           icp.Prefix,
		Sn:               2,
		Prev:             rot1.Digest,
		CurrentKeys:      []codec.Prefix{s2.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{s0.pub},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildRotation rot2: %v", err)
	}
	if _, _, err := event.Serialize(rot2, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize rot2: %v", err)
	}
	rot2Sigs := signRotation(t, rot2, s2)

	// Submit sn=2 before sn=1 exists: must escrow, not reject.
	r, err := v.ValidateEvent(rot2, rot2Sigs)
	if err != nil {
		t.Fatalf("ValidateEvent rot2: %v", err)
	}
	if r.Outcome != validator.OutcomeEscrowedOutOfOrder {
		t.Fatalf("expected rot2 to escrow out of order, got %s (errs=%v)", r.Outcome, r.Errors)
	}
	key, err := escrow.OutOfOrderKey(icp.Prefix, 2)
	if err != nil {
		t.Fatalf("OutOfOrderKey: %v", err)
	}
	if _, ok := escrows.OutOfOrder.Get(key); !ok {
		t.Fatalf("rot2 was not buffered in the out-of-order escrow")
	}

	// Submitting sn=1 must accept it AND, via Coordinator, resubmit and
	// accept the already-escrowed sn=2 within this same call.
	r, err = v.ValidateEvent(rot1, rot1Sigs)
	if err != nil {
		t.Fatalf("ValidateEvent rot1: %v", err)
	}
	if r.Outcome != validator.OutcomeAccepted {
		t.Fatalf("expected rot1 accepted, got %s (errs=%v)", r.Outcome, r.Errors)
	}

	if _, ok := escrows.OutOfOrder.Get(key); ok {
		t.Fatalf("rot2 is still escrowed after its precondition was resolved")
	}
	stored, err := store.GetEventBySn(icp.Prefix, 2)
	if err != nil {
		t.Fatalf("GetEventBySn(2): %v", err)
	}
	if !stored.Digest.Equal(rot2.Digest) {
		t.Fatalf("stored sn=2 event does not match the escrowed rot2")
	}
}

func TestCoordinator_ResolvesMissingDelegator(t *testing.T) {
	v, _, escrows, store := newFixture(t)
	delegatorSigner := genSigner(t)
	childSigner := genSigner(t)

	delegatorIcp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{delegatorSigner.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genSigner(t).pub},
		HashCode:         codec.DigestBlake3_256,
	})
	if err != nil {
		t.Fatalf("BuildInception delegator: %v", err)
	}
	if _, _, err := event.Serialize(delegatorIcp, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize delegator icp: %v", err)
	}
	delegatorSigs := signEvent(t, delegatorIcp, delegatorSigner)
	if r, err := v.ValidateEvent(delegatorIcp, delegatorSigs); err != nil || r.Outcome != validator.OutcomeAccepted {
		t.Fatalf("delegator icp not accepted: %+v err=%v", r, err)
	}

	delegator := delegatorIcp.Prefix
	dip, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{childSigner.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genSigner(t).pub},
		HashCode:         codec.DigestBlake3_256,
		Delegator:        &delegator,
	})
	if err != nil {
		t.Fatalf("BuildInception dip: %v", err)
	}
	if _, _, err := event.Serialize(dip, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize dip: %v", err)
	}
	dipSigs := signEvent(t, dip, childSigner)

	r, err := v.ValidateEvent(dip, dipSigs)
	if err != nil {
		t.Fatalf("ValidateEvent dip: %v", err)
	}
	if r.Outcome != validator.OutcomeEscrowedMissingDeleg {
		t.Fatalf("expected dip to escrow for missing delegator, got %s (errs=%v)", r.Outcome, r.Errors)
	}

	seal := event.NewEventSeal(dip.Prefix, dip.Sn, dip.Digest)
	anchor, err := event.BuildInteraction(event.InteractionParams{
		Prefix: delegator,
		Sn:     1,
		Prev:   delegatorIcp.Digest,
		Seals:  []event.Seal{seal},
	})
	if err != nil {
		t.Fatalf("BuildInteraction anchor: %v", err)
	}
	if _, _, err := event.Serialize(anchor, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize anchor: %v", err)
	}
	anchorSigs := signEvent(t, anchor, delegatorSigner)

	r, err = v.ValidateEvent(anchor, anchorSigs)
	if err != nil {
		t.Fatalf("ValidateEvent anchor: %v", err)
	}
	if r.Outcome != validator.OutcomeAccepted {
		t.Fatalf("expected delegator anchor accepted, got %s (errs=%v)", r.Outcome, r.Errors)
	}

	bucket, err := escrow.DelegatorBucket(delegator)
	if err != nil {
		t.Fatalf("DelegatorBucket: %v", err)
	}
	if entries := escrows.MissingDelegator.AllWithPrefix(bucket); len(entries) != 0 {
		t.Fatalf("dip is still escrowed after its delegator anchored it")
	}
	stored, err := store.GetEventByDigest(dip.Digest)
	if err != nil {
		t.Fatalf("GetEventByDigest(dip): %v", err)
	}
	if stored.Sn != 0 {
		t.Fatalf("unexpected stored dip sn=%d", stored.Sn)
	}
}

func TestCoordinator_ResolvesReceiptOutOfOrder(t *testing.T) {
	v, _, escrows, store := newFixture(t)
	s0 := genSigner(t)
	w := genSigner(t)
	wPrefix, err := codec.NewNonTransferablePrefix(w.pub.Key)
	if err != nil {
		t.Fatalf("NewNonTransferablePrefix: %v", err)
	}

	icp, err := event.BuildInception(event.InceptionParams{
		CurrentKeys:      []codec.Prefix{s0.pub},
		SigningThreshold: codec.NewSimpleThreshold(1),
		NextThreshold:    codec.NewSimpleThreshold(1),
		NextKeys:         []codec.Prefix{genSigner(t).pub},
		HashCode:         codec.DigestBlake3_256,
		Witnesses:        []codec.Prefix{wPrefix},
		WitnessThreshold: 1,
	})
	if err != nil {
		t.Fatalf("BuildInception: %v", err)
	}
	if _, _, err := event.Serialize(icp, codec.DigestBlake3_256); err != nil {
		t.Fatalf("Serialize icp: %v", err)
	}

	// A receipt for icp arrives before icp itself does: must escrow.
	cp := *icp
	icpRaw, _, err := event.Serialize(&cp, codec.DigestCode(icp.Digest.Code))
	if err != nil {
		t.Fatalf("Serialize icp for signing: %v", err)
	}
	witnessSig, err := codec.NewSignature(codec.SigEd25519Sha512, ed25519.Sign(w.sk, icpRaw))
	if err != nil {
		t.Fatalf("NewSignature: %v", err)
	}
	r := &event.Receipt{
		Prefix:   icp.Prefix,
		Sn:       icp.Sn,
		Digest:   icp.Digest,
		Couplets: []event.NonTransReceiptCouplet{{Witness: wPrefix, Sig: witnessSig}},
	}
	outcome, err := v.IngestReceipt(r)
	if err != nil {
		t.Fatalf("IngestReceipt: %v", err)
	}
	if outcome != validator.OutcomeEscrowedOutOfOrder {
		t.Fatalf("expected receipt to escrow out of order, got %s", outcome)
	}
	key, err := escrow.DigestKey(icp.Digest)
	if err != nil {
		t.Fatalf("DigestKey: %v", err)
	}
	if _, ok := escrows.ReceiptOutOfOrder.Get(key); !ok {
		t.Fatalf("receipt was not buffered in the receipt-out-of-order escrow")
	}

	// Accepting icp must, via Coordinator, resubmit and persist the
	// already-escrowed receipt within this same call.
	icpSigs := signEvent(t, icp, s0)
	if res, err := v.ValidateEvent(icp, icpSigs); err != nil || res.Outcome != validator.OutcomeAccepted {
		t.Fatalf("icp not accepted: %+v err=%v", res, err)
	}

	if _, ok := escrows.ReceiptOutOfOrder.Get(key); ok {
		t.Fatalf("receipt is still escrowed after its event arrived")
	}
	receipts, err := store.GetReceipts(icp.Digest)
	if err != nil {
		t.Fatalf("GetReceipts: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("expected one persisted receipt, got %d", len(receipts))
	}
}
