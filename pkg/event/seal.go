// Copyright 2025 Certen Protocol
//
// Seals: cross-log references embedded in an event's anchored-data ("a")
// section, or standing alone as a delegator's source-seal.

package event

import (
	"encoding/json"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// Seal is a tagged union of the three seal shapes spec.md §3 names:
// event-seal (prefix+sn+digest), digest-only seal, and source-seal
// (delegator sn+digest, no prefix).
type Seal struct {
	Prefix *codec.Prefix
	Sn     *uint64
	Digest *codec.Digest
}

// IsEventSeal reports the (prefix, sn, digest) shape.
func (s Seal) IsEventSeal() bool { return s.Prefix != nil && s.Sn != nil && s.Digest != nil }

// IsDigestSeal reports the digest-only shape.
func (s Seal) IsDigestSeal() bool { return s.Prefix == nil && s.Sn == nil && s.Digest != nil }

// IsSourceSeal reports the (sn, digest), no-prefix shape used by delegators
// and by TEL events anchoring into a KEL.
func (s Seal) IsSourceSeal() bool { return s.Prefix == nil && s.Sn != nil && s.Digest != nil }

// Matches reports whether this event-seal names (prefix, sn, digest).
func (s Seal) Matches(prefix codec.Prefix, sn uint64, digest codec.Digest) bool {
	if !s.IsEventSeal() {
		return false
	}
	return s.Prefix.Equal(prefix) && *s.Sn == sn && s.Digest.Equal(digest)
}

// NewEventSeal builds an (i, s, d) seal, used to anchor a delegated event
// or a TEL-registry-anchoring KEL event.
func NewEventSeal(prefix codec.Prefix, sn uint64, digest codec.Digest) Seal {
	return Seal{Prefix: &prefix, Sn: &sn, Digest: &digest}
}

// NewSourceSeal builds an (s, d) seal, used by TEL events to point back at
// their anchoring KEL event.
func NewSourceSeal(sn uint64, digest codec.Digest) Seal {
	return Seal{Sn: &sn, Digest: &digest}
}

type sealWire struct {
	Prefix string `json:"i,omitempty"`
	Sn     string `json:"s,omitempty"`
	Digest string `json:"d,omitempty"`
}

// MarshalJSON renders whichever fields are set; sn is rendered as lowercase hex.
func (s Seal) MarshalJSON() ([]byte, error) {
	var w sealWire
	if s.Prefix != nil {
		t, err := s.Prefix.Text()
		if err != nil {
			return nil, err
		}
		w.Prefix = t
	}
	if s.Sn != nil {
		w.Sn = fmt.Sprintf("%x", *s.Sn)
	}
	if s.Digest != nil {
		t, err := s.Digest.Text()
		if err != nil {
			return nil, err
		}
		w.Digest = t
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses whichever fields are present into the tagged union.
func (s *Seal) UnmarshalJSON(data []byte) error {
	var w sealWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var out Seal
	if w.Prefix != "" {
		p, err := codec.ParsePrefix(w.Prefix)
		if err != nil {
			return fmt.Errorf("event: seal prefix: %w", err)
		}
		out.Prefix = &p
	}
	if w.Sn != "" {
		var sn uint64
		if _, err := fmt.Sscanf(w.Sn, "%x", &sn); err != nil {
			return fmt.Errorf("event: seal sn: %w", err)
		}
		out.Sn = &sn
	}
	if w.Digest != "" {
		d, err := codec.ParseDigest(w.Digest)
		if err != nil {
			return fmt.Errorf("event: seal digest: %w", err)
		}
		out.Digest = &d
	}
	*s = out
	return nil
}
