// Copyright 2025 Certen Protocol
//
// Event models the six TEL event kinds (vcp, vrt, iss, bis, rev, brv) as
// one flat struct, the same "kind-specific fields left empty" choice
// pkg/event.KeyEvent makes for the KEL (pkg/database/types.go's flat
// structs over a polymorphic hierarchy, per §9's design note). A TEL event
// anchors into its controlling identifier's KEL via a source seal rather
// than carrying its own signatures: the registrar's KEL event is what gets
// signed, the TEL event is the thing that gets anchored.

package tel

import (
	"encoding/json"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// Kind aliases event.Kind so callers never need to import both packages
// just to name a TEL event's type tag.
type Kind = event.Kind

const (
	Vcp = event.Vcp // registry inception
	Vrt = event.Vrt // registry rotation
	Iss = event.Iss // credential issuance
	Bis = event.Bis // credential issuance, backer-anchored
	Rev = event.Rev // credential revocation
	Brv = event.Brv // credential revocation, backer-anchored
)

// IsRegistryEvent reports whether kind manages a registry's own TEL (as
// opposed to one credential's).
func IsRegistryEvent(k Kind) bool { return k == Vcp || k == Vrt }

// IsCredentialEvent reports whether kind manages a single credential's TEL.
func IsCredentialEvent(k Kind) bool {
	switch k {
	case Iss, Bis, Rev, Brv:
		return true
	default:
		return false
	}
}

// IsBackerAnchored reports whether kind requires backer receipts rather
// than (or in addition to) a controlling-KEL seal.
func IsBackerAnchored(k Kind) bool { return k == Bis || k == Brv }

// NoBackersTrait is the vcp "c" trait marking a registry as controller-only:
// its credential events anchor solely via KEL seals, no backer receipts are
// ever required (spec.md's TEL supplement, grounded on original_source/'s
// NoBackers registry trait).
const NoBackersTrait = "NB"

// Event is the common envelope for every TEL event kind.
type Event struct {
	Version string       `json:"v"`
	Kind    Kind         `json:"t"`
	Digest  codec.Digest `json:"d"`
	// RegistryID or CredentialID, depending on Kind: the TEL's own
	// self-addressing identifier (its own "i" field, distinct from the
	// controlling KEL identifier referenced by Seal).
	ID   codec.Prefix  `json:"i"`
	Sn   uint64        `json:"s"`
	Prev *codec.Digest `json:"p,omitempty"`

	// vcp only: the controlling identifier establishing this registry.
	IssuerID *codec.Prefix `json:"ii,omitempty"`
	// vcp/vrt: backer set, additive on vrt.
	Backers        []codec.Prefix `json:"b,omitempty"`
	BackersAdd     []codec.Prefix `json:"ba,omitempty"`
	BackersRemove  []codec.Prefix `json:"br,omitempty"`
	BackerThreshold *int          `json:"bt,omitempty"`
	Traits         []string       `json:"c,omitempty"`

	// iss/bis/rev/brv: the registry this credential event belongs to.
	RegistryID *codec.Prefix `json:"ri,omitempty"`

	// Seal anchors this TEL event into the issuing/registrar controller's
	// KEL: a source seal (sn, digest) pointing at the KEL event that
	// carries this TEL event's digest in its own Seals ("a" field).
	Seal *event.Seal `json:"seal,omitempty"`
}

// SnHex renders Sn as lowercase hex, matching the KEL wire convention.
func (e *Event) SnHex() string { return fmt.Sprintf("%x", e.Sn) }

type eventWire struct {
	Version         string         `json:"v"`
	Kind            Kind           `json:"t"`
	Digest          codec.Digest   `json:"d"`
	ID              codec.Prefix   `json:"i"`
	Sn              string         `json:"s"`
	Prev            *codec.Digest  `json:"p,omitempty"`
	IssuerID        *codec.Prefix  `json:"ii,omitempty"`
	Backers         []codec.Prefix `json:"b,omitempty"`
	BackersAdd      []codec.Prefix `json:"ba,omitempty"`
	BackersRemove   []codec.Prefix `json:"br,omitempty"`
	BackerThreshold *int           `json:"bt,omitempty"`
	Traits          []string       `json:"c,omitempty"`
	RegistryID      *codec.Prefix  `json:"ri,omitempty"`
	Seal            *event.Seal    `json:"seal,omitempty"`
}

// MarshalJSON renders sn as hex, preserving field order for the canonical
// round-trip property the same way pkg/event.KeyEvent does.
func (e Event) MarshalJSON() ([]byte, error) {
	w := eventWire{
		Version: e.Version, Kind: e.Kind, Digest: e.Digest, ID: e.ID, Sn: e.SnHex(),
		Prev: e.Prev, IssuerID: e.IssuerID, Backers: e.Backers,
		BackersAdd: e.BackersAdd, BackersRemove: e.BackersRemove,
		BackerThreshold: e.BackerThreshold, Traits: e.Traits,
		RegistryID: e.RegistryID, Seal: e.Seal,
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses the hex sn back into a uint64.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var sn uint64
	if w.Sn != "" {
		if _, err := fmt.Sscanf(w.Sn, "%x", &sn); err != nil {
			return fmt.Errorf("tel: sn: %w", err)
		}
	}
	*e = Event{
		Version: w.Version, Kind: w.Kind, Digest: w.Digest, ID: w.ID, Sn: sn,
		Prev: w.Prev, IssuerID: w.IssuerID, Backers: w.Backers,
		BackersAdd: w.BackersAdd, BackersRemove: w.BackersRemove,
		BackerThreshold: w.BackerThreshold, Traits: w.Traits,
		RegistryID: w.RegistryID, Seal: w.Seal,
	}
	return nil
}

// HasTrait reports whether traits carries name.
func HasTrait(traits []string, name string) bool {
	for _, t := range traits {
		if t == name {
			return true
		}
	}
	return false
}
