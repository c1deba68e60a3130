// Copyright 2025 Certen Protocol
//
// Reply events (rpy) carry either an OOBI payload (location scheme or
// end-role binding) or a key state notice (KSN), versioned by an ISO
// timestamp "dt" for the best-available-data-acceptance rule (spec.md §4.6).

package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/independant-validator/pkg/codec"
)

// Role names a participant's function in OOBI end-role bindings.
type Role string

const (
	RoleController  Role = "controller"
	RoleWitness     Role = "witness"
	RoleWatcher     Role = "watcher"
	RoleMessagebox  Role = "messagebox"
)

// LocationScheme binds a prefix to a network endpoint under a transport tag
// (e.g. "http", "tcp").
type LocationScheme struct {
	Prefix    codec.Prefix
	Scheme    string
	URL       string
}

// EndRole binds a controller identifier, in a given role, to an
// endpoint-provider identifier (e.g. "this witness is reachable via that
// messagebox identifier").
type EndRole struct {
	Controller codec.Prefix
	Role       Role
	Provider   codec.Prefix
}

// KeyStateNotice (KSN) is a signed summary of an identifier's state at a
// given sn, used to resolve stale-looking replies without fetching the
// full KEL.
type KeyStateNotice struct {
	Prefix           codec.Prefix
	Sn               uint64
	Digest           codec.Digest
	CurrentKeys      []codec.Prefix
	SigningThreshold codec.Threshold
	NextThreshold    codec.Threshold
	NextKeyHashes    []codec.Digest
	Witnesses        []codec.Prefix
	WitnessThreshold int
}

// ReplyRoute names which payload a Reply carries.
type ReplyRoute string

const (
	RouteLocScheme ReplyRoute = "/loc/scheme"
	RouteEndRole   ReplyRoute = "/end/role/add"
	RouteEndRoleCut ReplyRoute = "/end/role/cut"
	RouteKSN       ReplyRoute = "/ksn"
)

// Reply is a rpy message: a route, a payload, and a signer-and-timestamp
// pair used for BADA ordering.
type Reply struct {
	Route     ReplyRoute
	Timestamp time.Time

	LocScheme *LocationScheme
	EndRole   *EndRole
	KSN       *KeyStateNotice

	// Signer is the prefix whose signature covers this reply; SignerSn is
	// its last-establishment-event sn at signing time, used by the BADA
	// ordering rule (spec.md §4.6 rule (b)).
	Signer   codec.Prefix
	SignerSn uint64

	// Sig is the signer's direct signature, used when Signer is
	// non-transferable (a single couplet, spec.md §4.6). IndexedSigs is
	// used when Signer is transferable: one or more indexed signatures
	// checked against the signer's current keys and threshold at SignerSn.
	Sig         codec.Signature
	IndexedSigs []codec.IndexedSignature
}

// SignedBytes renders the canonical bytes a reply's signature(s) cover: the
// JSON encoding of r with its own signature fields cleared, so neither can
// be part of what it signs.
func (r Reply) SignedBytes() ([]byte, error) {
	cp := r
	cp.Sig = codec.Signature{}
	cp.IndexedSigs = nil
	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("event: marshal reply for signing: %w", err)
	}
	return raw, nil
}

// Subject returns the identifier this reply concerns, used to reject OOBIs
// whose signer does not match their subject (spec.md §4.6).
func (r Reply) Subject() codec.Prefix {
	switch r.Route {
	case RouteLocScheme:
		return r.LocScheme.Prefix
	case RouteEndRole, RouteEndRoleCut:
		return r.EndRole.Controller
	case RouteKSN:
		return r.KSN.Prefix
	default:
		return codec.Prefix{}
	}
}
