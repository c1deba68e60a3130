// Copyright 2025 Certen Protocol
//
// Identifier prefix: a tagged union of a basic prefix (raw public key, with
// a code naming curve and transferability) and a self-addressing prefix (a
// digest of the inception event).

package codec

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
)

// Prefix identifies a KERI controller. It is either basic (wraps a public
// key directly) or self-addressing (wraps the inception event's digest).
type Prefix struct {
	Code  PrefixCode
	// For basic prefixes, Key is the raw public key bytes.
	// For self-addressing prefixes, Key holds the digest bytes and Code is
	// reused from the DigestCode space (see NewSelfAddressingPrefix).
	Key []byte
}

// NewBasicEd25519Prefix builds a basic, transferable Ed25519 prefix.
func NewBasicEd25519Prefix(pub ed25519.PublicKey) (Prefix, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Prefix{}, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrMalformedPrimitive, ed25519.PublicKeySize)
	}
	return Prefix{Code: PrefixEd25519, Key: append([]byte(nil), pub...)}, nil
}

// NewNonTransferablePrefix builds a basic, non-transferable Ed25519 prefix.
// Identifiers with this prefix may never rotate (§3 invariant): they act
// only as witnesses or watchers.
func NewNonTransferablePrefix(pub ed25519.PublicKey) (Prefix, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Prefix{}, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrMalformedPrimitive, ed25519.PublicKeySize)
	}
	return Prefix{Code: PrefixEd25519NonTransferable, Key: append([]byte(nil), pub...)}, nil
}

// NewBasicEd448Prefix builds a basic, transferable Ed448 prefix.
func NewBasicEd448Prefix(pub ed448.PublicKey) (Prefix, error) {
	if len(pub) != ed448.PublicKeySize {
		return Prefix{}, fmt.Errorf("%w: ed448 public key must be %d bytes", ErrMalformedPrimitive, ed448.PublicKeySize)
	}
	return Prefix{Code: PrefixEd448, Key: append([]byte(nil), pub...)}, nil
}

// NewNonTransferableEd448Prefix builds a basic, non-transferable Ed448
// prefix, for a witness or watcher identified by an Ed448 key.
func NewNonTransferableEd448Prefix(pub ed448.PublicKey) (Prefix, error) {
	if len(pub) != ed448.PublicKeySize {
		return Prefix{}, fmt.Errorf("%w: ed448 public key must be %d bytes", ErrMalformedPrimitive, ed448.PublicKeySize)
	}
	return Prefix{Code: PrefixEd448NonTransferable, Key: append([]byte(nil), pub...)}, nil
}

// NewSelfAddressingPrefix builds a self-addressing prefix from the digest
// of a (not yet fully serialized) inception event.
func NewSelfAddressingPrefix(d Digest) Prefix {
	return Prefix{Code: PrefixCode(d.Code), Key: append([]byte(nil), d.Bytes...)}
}

// IsZero reports whether p has never been set.
func (p Prefix) IsZero() bool {
	return p.Code == "" && len(p.Key) == 0
}

// IsTransferable reports whether events may ever be authored under this prefix.
func (p Prefix) IsTransferable() bool {
	return p.Code != PrefixEd25519NonTransferable && p.Code != PrefixEd448NonTransferable
}

// IsBasic reports whether this is a raw-public-key prefix as opposed to a
// self-addressing (digest-of-inception) prefix.
func (p Prefix) IsBasic() bool {
	switch p.Code {
	case PrefixEd25519, PrefixEd25519NonTransferable, PrefixECDSASecp256k1, PrefixEd448, PrefixEd448NonTransferable:
		return true
	default:
		return false
	}
}

// Equal reports structural equality.
func (p Prefix) Equal(other Prefix) bool {
	if p.Code != other.Code || len(p.Key) != len(other.Key) {
		return false
	}
	for i := range p.Key {
		if p.Key[i] != other.Key[i] {
			return false
		}
	}
	return true
}

// Text renders the prefix as compact self-describing text.
func (p Prefix) Text() (string, error) {
	return EncodePrimitive(string(p.Code), p.Key)
}

var knownPrefixCodes = append([]string{
	string(PrefixEd25519), string(PrefixEd25519NonTransferable), string(PrefixECDSASecp256k1),
	string(PrefixEd448), string(PrefixEd448NonTransferable),
}, knownDigestCodes...)

// ParsePrefix decodes a compact text identifier prefix.
func ParsePrefix(text string) (Prefix, error) {
	code, rest, err := matchCode(text, knownPrefixCodes)
	if err != nil {
		return Prefix{}, err
	}
	switch PrefixCode(code) {
	case PrefixEd25519, PrefixEd25519NonTransferable:
		_, raw, err := decodeSized(code+rest, knownPrefixCodes, ed25519.PublicKeySize)
		if err != nil {
			return Prefix{}, err
		}
		return Prefix{Code: PrefixCode(code), Key: raw}, nil
	case PrefixECDSASecp256k1:
		_, raw, err := decodeSized(code+rest, knownPrefixCodes, 33)
		if err != nil {
			return Prefix{}, err
		}
		return Prefix{Code: PrefixCode(code), Key: raw}, nil
	case PrefixEd448, PrefixEd448NonTransferable:
		_, raw, err := decodeSized(code+rest, knownPrefixCodes, ed448.PublicKeySize)
		if err != nil {
			return Prefix{}, err
		}
		return Prefix{Code: PrefixCode(code), Key: raw}, nil
	default:
		// Self-addressing: code reuses a digest code.
		size, ok := digestSize(DigestCode(code))
		if !ok {
			return Prefix{}, fmt.Errorf("%w: %s", ErrMalformedPrimitive, code)
		}
		_, raw, err := decodeSized(code+rest, knownPrefixCodes, size)
		if err != nil {
			return Prefix{}, err
		}
		return Prefix{Code: PrefixCode(code), Key: raw}, nil
	}
}
