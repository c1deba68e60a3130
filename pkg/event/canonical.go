// Copyright 2025 Certen Protocol
//
// Canonical serialization: write the version string with a placeholder byte
// length, compute the actual encoded length, patch the version string, and
// (for self-addressing events) substitute the "d" field — and, for
// inception variants, also "i" — with a placeholder of the correct code
// width, hash the resulting bytes, then substitute the digest back. The
// canonical serialized bytes are exactly the bytes signed and hashed; any
// reserialization of a parsed event must be byte-identical (spec.md §8,
// "canonical round-trip").

package event

import (
	"bytes"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// Seal spots: errors.
var (
	errSerialize = fmt.Errorf("event: canonical serialization failed")
)

// Serialize renders ev to its canonical bytes and computes its
// self-addressing digest under hashCode. For inception/delegated-inception
// events the identifier prefix is self-addressing too and is set to the
// same digest. ev is mutated in place: Version and Digest (and, for
// inception kinds, Prefix) are overwritten with their final values.
func Serialize(ev *KeyEvent, hashCode codec.DigestCode) ([]byte, codec.Digest, error) {
	selfAddressing := ev.Kind.IsInception()

	placeholderDigest, err := codec.PlaceholderText(hashCode)
	if err != nil {
		return nil, codec.Digest{}, err
	}

	ev.Version = placeholderVersion
	ev.Digest = codec.Digest{} // will render as "" until placeholder below is injected textually
	var placeholderPrefix codec.Prefix
	if selfAddressing {
		sized, err := codec.NewDigest(hashCode, nil)
		if err != nil {
			return nil, codec.Digest{}, err
		}
		placeholderPrefix = codec.Prefix{Code: codec.PrefixCode(hashCode), Key: make([]byte, len(sized.Bytes))}
	}

	// First pass: marshal with placeholders to discover the true length.
	raw, err := marshalWithPlaceholders(ev, placeholderDigest, selfAddressing, placeholderPrefix)
	if err != nil {
		return nil, codec.Digest{}, fmt.Errorf("%w: %v", errSerialize, err)
	}

	realVersion, err := renderVersion(len(raw))
	if err != nil {
		return nil, codec.Digest{}, err
	}

	// Patch version string in place (same length as placeholder: versionLen).
	raw = bytes.Replace(raw, []byte(placeholderVersion), []byte(realVersion), 1)

	// Hash the bytes exactly as they stand now: version is real, d (and i)
	// fields hold placeholders of the correct code width.
	digest, err := codec.NewDigest(hashCode, raw)
	if err != nil {
		return nil, codec.Digest{}, err
	}
	digestText, err := digest.Text()
	if err != nil {
		return nil, codec.Digest{}, err
	}

	final := bytes.Replace(raw, []byte(`"d":"`+placeholderDigest+`"`), []byte(`"d":"`+digestText+`"`), 1)
	if selfAddressing {
		placeholderPrefixText, err := placeholderPrefix.Text()
		if err != nil {
			return nil, codec.Digest{}, err
		}
		final = bytes.Replace(final, []byte(`"i":"`+placeholderPrefixText+`"`), []byte(`"i":"`+digestText+`"`), 1)
	}

	ev.Version = realVersion
	ev.Digest = digest
	if selfAddressing {
		ev.Prefix = codec.NewSelfAddressingPrefix(digest)
	}

	return final, digest, nil
}

func marshalWithPlaceholders(ev *KeyEvent, placeholderDigest string, selfAddressing bool, placeholderPrefix codec.Prefix) ([]byte, error) {
	// Temporarily swap in placeholder prefix for inception kinds so the
	// marshaled "i" field has the correct width before the real digest is
	// known.
	savedPrefix := ev.Prefix
	if selfAddressing {
		ev.Prefix = placeholderPrefix
	}
	defer func() { ev.Prefix = savedPrefix }()

	raw, err := ev.MarshalJSON()
	if err != nil {
		return nil, err
	}
	// Inject the placeholder digest text into the "d" field, which
	// currently renders as "" because ev.Digest is the zero value.
	raw = bytes.Replace(raw, []byte(`"d":""`), []byte(`"d":"`+placeholderDigest+`"`), 1)
	return raw, nil
}

// VerifyDigestBinding recomputes hashCode over the canonical bytes of ev
// (with d, and i where self-addressing, replaced by the placeholder) and
// compares to ev.Digest. This is the re-serialization half of the
// structural validation step (spec.md §4.4 step 1): re-serialize and
// confirm byte equality, then verify d by recomputing the digest.
func VerifyDigestBinding(ev KeyEvent) (bool, error) {
	want := ev.Digest
	cp := ev
	_, got, err := Serialize(&cp, codec.DigestCode(want.Code))
	if err != nil {
		return false, err
	}
	return got.Equal(want), nil
}
