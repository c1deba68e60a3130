// Copyright 2025 Certen Protocol

package escrow

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
)

func testPrefix(t *testing.T, _ string) codec.Prefix {
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

func testDigest(t *testing.T, data string) codec.Digest {
	t.Helper()
	d, err := codec.NewDigest(codec.DigestBlake3_256, []byte(data))
	if err != nil {
		t.Fatalf("NewDigest: %v", err)
	}
	return d
}

func TestStore_AllWithPrefix(t *testing.T) {
	s := NewStore(DefaultConfig())
	now := time.Now()
	if err := s.Put("delegatorA/digest1", "one", now); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("delegatorA/digest2", "two", now); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("delegatorB/digest3", "three", now); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got := s.AllWithPrefix("delegatorA/")
	if len(got) != 2 {
		t.Fatalf("expected 2 entries under delegatorA/, got %d", len(got))
	}
	for _, e := range got {
		if e.Payload == "three" {
			t.Fatalf("AllWithPrefix leaked an entry from a different bucket")
		}
	}
}

func TestStore_AllWithPrefix_NoMatches(t *testing.T) {
	s := NewStore(DefaultConfig())
	if err := s.Put("delegatorA/digest1", "one", time.Now()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := s.AllWithPrefix("delegatorZ/"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestDelegationKey_RoundTripsIntoDelegatorBucket(t *testing.T) {
	// DelegatorBucket must be a prefix of every DelegationKey built for
	// that same delegator, since Manager.wire keys the missing-delegator
	// escrow with DelegationKey and pkg/coordinator looks entries up with
	// DelegatorBucket + AllWithPrefix.
	delegator := testPrefix(t, "delegator")
	digest := testDigest(t, "delegated-event")

	key, err := DelegationKey(delegator, digest)
	if err != nil {
		t.Fatalf("DelegationKey: %v", err)
	}
	bucket, err := DelegatorBucket(delegator)
	if err != nil {
		t.Fatalf("DelegatorBucket: %v", err)
	}
	if len(key) < len(bucket) || key[:len(bucket)] != bucket {
		t.Fatalf("DelegationKey %q does not start with DelegatorBucket %q", key, bucket)
	}
}
