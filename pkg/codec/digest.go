// Copyright 2025 Certen Protocol
//
// Digest is a tagged-hash primitive: a derivation code naming the hash
// function, plus the raw digest bytes. It supports verify-binding:
// recomputing the hash over given bytes and comparing to itself.

package codec

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Digest is a self-describing hash value.
type Digest struct {
	Code  DigestCode
	Bytes []byte
}

// NewDigest hashes data with the hash function named by code.
func NewDigest(code DigestCode, data []byte) (Digest, error) {
	size, ok := digestSize(code)
	if !ok {
		return Digest{}, fmt.Errorf("%w: %s", ErrUnknownDigestCode, code)
	}
	sum, err := sumFor(code, data)
	if err != nil {
		return Digest{}, err
	}
	if len(sum) != size {
		return Digest{}, fmt.Errorf("codec: digest %s produced %d bytes, want %d", code, len(sum), size)
	}
	return Digest{Code: code, Bytes: sum}, nil
}

func sumFor(code DigestCode, data []byte) ([]byte, error) {
	switch code {
	case DigestBlake3_256:
		sum := blake3.Sum256(data)
		return sum[:], nil
	case DigestBlake3_512:
		sum := blake3.Sum512(data)
		return sum[:], nil
	case DigestBlake2b_256:
		sum := blake2b.Sum256(data)
		return sum[:], nil
	case DigestBlake2b_512:
		sum := blake2b.Sum512(data)
		return sum[:], nil
	case DigestBlake2s_256:
		sum := blake2s.Sum256(data)
		return sum[:], nil
	case DigestSHA3_256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case DigestSHA3_512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	case DigestSHA2_256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case DigestSHA2_512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDigestCode, code)
	}
}

// VerifyBinding recomputes the hash over data and compares it, in constant
// time, to the digest's own bytes.
func (d Digest) VerifyBinding(data []byte) (bool, error) {
	sum, err := sumFor(d.Code, data)
	if err != nil {
		return false, err
	}
	if len(sum) != len(d.Bytes) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(sum, d.Bytes) == 1, nil
}

// Equal reports whether two digests carry the same code and bytes.
func (d Digest) Equal(other Digest) bool {
	if d.Code != other.Code || len(d.Bytes) != len(other.Bytes) {
		return false
	}
	return subtle.ConstantTimeCompare(d.Bytes, other.Bytes) == 1
}

// IsZero reports whether d has never been set (used for "no previous digest").
func (d Digest) IsZero() bool {
	return d.Code == "" && len(d.Bytes) == 0
}

// Text renders the digest as its self-describing compact text form.
func (d Digest) Text() (string, error) {
	return EncodePrimitive(string(d.Code), d.Bytes)
}

// ParseDigest decodes a compact text digest.
func ParseDigest(text string) (Digest, error) {
	code, rest, err := matchCode(text, knownDigestCodes)
	if err != nil {
		return Digest{}, err
	}
	dc := DigestCode(code)
	size, ok := digestSize(dc)
	if !ok {
		return Digest{}, fmt.Errorf("%w: %s", ErrUnknownDigestCode, code)
	}
	_, raw, err := decodeSized(code+rest, knownDigestCodes, size)
	if err != nil {
		return Digest{}, err
	}
	return Digest{Code: dc, Bytes: raw}, nil
}

// PlaceholderText returns a filler string of exactly the length a real
// digest of this code would render to, used to hold the "d" (and "i") field
// open while computing the canonical serialization that will be hashed.
func PlaceholderText(code DigestCode) (string, error) {
	size, ok := digestSize(code)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDigestCode, code)
	}
	full := len(code) + (4-(len(code)+b64Len(size))%4)%4 + b64Len(size)
	return strings.Repeat("#", full), nil
}

var knownDigestCodes = []string{
	string(DigestBlake3_256), string(DigestBlake2b_256), string(DigestBlake2s_256),
	string(DigestSHA3_256), string(DigestSHA2_256),
	string(DigestBlake3_512), string(DigestSHA3_512), string(DigestBlake2b_512), string(DigestSHA2_512),
}
