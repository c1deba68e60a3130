// Copyright 2025 Certen Protocol
//
// Canonical TEL serialization, the same placeholder-then-patch technique
// pkg/event/canonical.go uses for the KEL: render with a placeholder
// version and digest, patch in the real byte length, hash, then patch in
// the real digest text. vcp and iss additionally self-address their own
// "i" field, the same way icp/dip do on the KEL side.

package tel

import (
	"bytes"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

const (
	versionPrefix      = "KERI10JSON"
	versionLen         = 17
	placeholderVersion = versionPrefix + "000000_"
)

func renderVersion(totalLen int) (string, error) {
	if totalLen < 0 || totalLen > 0xFFFFFF {
		return "", fmt.Errorf("tel: serialization length %d out of range", totalLen)
	}
	return fmt.Sprintf("%s%06x_", versionPrefix, totalLen), nil
}

// selfAddresses reports whether kind establishes a new TEL (registry or
// credential), whose own ID is the digest of this very event.
func selfAddresses(k Kind) bool { return k == Vcp || k == Iss }

// Serialize renders ev to its canonical bytes and computes its digest
// under hashCode, mutating ev in place (Version, Digest, and for vcp/iss,
// ID) the same way event.Serialize does for the KEL.
func Serialize(ev *Event, hashCode codec.DigestCode) ([]byte, codec.Digest, error) {
	selfAddr := selfAddresses(ev.Kind)

	placeholderDigest, err := codec.PlaceholderText(hashCode)
	if err != nil {
		return nil, codec.Digest{}, err
	}

	ev.Version = placeholderVersion
	ev.Digest = codec.Digest{}
	var placeholderID codec.Prefix
	if selfAddr {
		sized, err := codec.NewDigest(hashCode, nil)
		if err != nil {
			return nil, codec.Digest{}, err
		}
		placeholderID = codec.Prefix{Code: codec.PrefixCode(hashCode), Key: make([]byte, len(sized.Bytes))}
	}

	raw, err := marshalWithPlaceholders(ev, placeholderDigest, selfAddr, placeholderID)
	if err != nil {
		return nil, codec.Digest{}, fmt.Errorf("tel: canonical serialization failed: %w", err)
	}

	realVersion, err := renderVersion(len(raw))
	if err != nil {
		return nil, codec.Digest{}, err
	}
	raw = bytes.Replace(raw, []byte(placeholderVersion), []byte(realVersion), 1)

	digest, err := codec.NewDigest(hashCode, raw)
	if err != nil {
		return nil, codec.Digest{}, err
	}
	digestText, err := digest.Text()
	if err != nil {
		return nil, codec.Digest{}, err
	}

	final := bytes.Replace(raw, []byte(`"d":"`+placeholderDigest+`"`), []byte(`"d":"`+digestText+`"`), 1)
	if selfAddr {
		placeholderIDText, err := placeholderID.Text()
		if err != nil {
			return nil, codec.Digest{}, err
		}
		final = bytes.Replace(final, []byte(`"i":"`+placeholderIDText+`"`), []byte(`"i":"`+digestText+`"`), 1)
	}

	ev.Version = realVersion
	ev.Digest = digest
	if selfAddr {
		ev.ID = codec.NewSelfAddressingPrefix(digest)
	}
	return final, digest, nil
}

func marshalWithPlaceholders(ev *Event, placeholderDigest string, selfAddr bool, placeholderID codec.Prefix) ([]byte, error) {
	savedID := ev.ID
	if selfAddr {
		ev.ID = placeholderID
	}
	defer func() { ev.ID = savedID }()

	raw, err := ev.MarshalJSON()
	if err != nil {
		return nil, err
	}
	raw = bytes.Replace(raw, []byte(`"d":""`), []byte(`"d":"`+placeholderDigest+`"`), 1)
	return raw, nil
}

// VerifyDigestBinding recomputes ev's digest over its own canonical bytes
// and compares to ev.Digest, the TEL analogue of event.VerifyDigestBinding.
func VerifyDigestBinding(ev Event) (bool, error) {
	want := ev.Digest
	cp := ev
	_, got, err := Serialize(&cp, codec.DigestCode(want.Code))
	if err != nil {
		return false, err
	}
	return got.Equal(want), nil
}
