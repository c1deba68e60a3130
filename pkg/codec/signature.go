// Copyright 2025 Certen Protocol
//
// Signature primitives: a tagged signature plus the indexed-signature
// variant that names which key position(s) in an event a signature
// corresponds to. The pre-rotation index pairing (§9 design note) encodes
// three cases: current-only, both-same, both-different.

package codec

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signature is a self-describing signature value.
type Signature struct {
	Code  SigCode
	Bytes []byte
}

// NewSignature wraps raw signature bytes with their algorithm code.
func NewSignature(code SigCode, raw []byte) (Signature, error) {
	size, ok := sigSize(code)
	if !ok {
		return Signature{}, fmt.Errorf("%w: %s", ErrUnknownSigCode, code)
	}
	if len(raw) != size {
		return Signature{}, fmt.Errorf("%w: signature %s wants %d bytes, got %d", ErrMalformedPrimitive, code, size, len(raw))
	}
	return Signature{Code: code, Bytes: raw}, nil
}

// Verify checks sig against message under pub, dispatching on the
// signature's own algorithm code.
func (sig Signature) Verify(pub Prefix, message []byte) (bool, error) {
	switch sig.Code {
	case SigEd25519Sha512:
		if len(pub.Key) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: ed25519 key size", ErrMalformedPrimitive)
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Key), message, sig.Bytes), nil
	case SigECDSASecp256k1Sha256:
		digest := sha256.Sum256(message)
		pubECDSA, err := ethcrypto.UnmarshalPubkey(pub.Key)
		if err != nil {
			return false, fmt.Errorf("codec: unmarshal secp256k1 key: %w", err)
		}
		return verifySecp256k1(pubECDSA, digest[:], sig.Bytes), nil
	case SigEd448:
		if len(pub.Key) != ed448.PublicKeySize {
			return false, fmt.Errorf("%w: ed448 key size", ErrMalformedPrimitive)
		}
		return ed448.Verify(ed448.PublicKey(pub.Key), message, sig.Bytes, ""), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownSigCode, sig.Code)
	}
}

func verifySecp256k1(pub *ecdsa.PublicKey, digest, sig []byte) bool {
	if len(sig) < 64 {
		return false
	}
	return ethcrypto.VerifySignature(ethcrypto.FromECDSAPub(pub), digest, sig[:64])
}

// Index names the key position(s) an indexed signature corresponds to.
// Current is always present. PreviousNext is present only when the signer
// is revealing a key that was committed in the prior event's next-keys-data
// (the rotation case); its absence models a current-only signer (e.g. a
// freshly added current key with no prior commitment).
type Index struct {
	Current      int
	PreviousNext int
	HasPreviousNext bool
}

// SameSlot reports whether Current and PreviousNext name the same position
// (the "both-same" pre-rotation pairing case).
func (ix Index) SameSlot() bool {
	return ix.HasPreviousNext && ix.Current == ix.PreviousNext
}

// IndexedSignature couples a Signature to the Index naming the signer's
// position(s) within the event's key sets.
type IndexedSignature struct {
	Index Index
	Sig   Signature
}
