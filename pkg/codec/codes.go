// Copyright 2025 Certen Protocol
//
// Derivation codes for self-describing primitives.
// Each code names the primitive's cryptographic algorithm and, implicitly,
// the raw byte length of the material that follows it once base64-decoded.

package codec

// DigestCode identifies the hash function used to produce a Digest.
type DigestCode string

const (
	DigestBlake3_256 DigestCode = "E"  // 32-byte digest
	DigestBlake2b_256 DigestCode = "F" // 32-byte digest
	DigestBlake2s_256 DigestCode = "G" // 32-byte digest
	DigestSHA3_256    DigestCode = "H" // 32-byte digest
	DigestSHA2_256    DigestCode = "I" // 32-byte digest
	DigestBlake3_512  DigestCode = "0D" // 64-byte digest
	DigestSHA3_512    DigestCode = "0E" // 64-byte digest
	DigestBlake2b_512 DigestCode = "0F" // 64-byte digest
	DigestSHA2_512    DigestCode = "0G" // 64-byte digest
)

// digestSize returns the raw byte length of the digest for a given code.
func digestSize(c DigestCode) (int, bool) {
	switch c {
	case DigestBlake3_256, DigestBlake2b_256, DigestBlake2s_256, DigestSHA3_256, DigestSHA2_256:
		return 32, true
	case DigestBlake3_512, DigestSHA3_512, DigestBlake2b_512, DigestSHA2_512:
		return 64, true
	default:
		return 0, false
	}
}

// PrefixCode identifies the kind of identifier prefix.
type PrefixCode string

const (
	// PrefixEd25519 is a basic, transferable Ed25519 public key prefix.
	PrefixEd25519 PrefixCode = "D"
	// PrefixEd25519NonTransferable is a basic, non-transferable Ed25519 public key prefix.
	PrefixEd25519NonTransferable PrefixCode = "B"
	// PrefixECDSASecp256k1 is a basic, transferable secp256k1 public key prefix.
	PrefixECDSASecp256k1 PrefixCode = "1AAA"
	// PrefixEd448 is a basic, transferable Ed448 public key prefix.
	PrefixEd448 PrefixCode = "1AAD"
	// PrefixEd448NonTransferable is a basic, non-transferable Ed448 public key prefix.
	PrefixEd448NonTransferable PrefixCode = "1AAE"
	// PrefixSelfAddressing reuses the DigestCode space: a self-addressing
	// identifier is literally the digest of its inception event.
)

// SigCode identifies the signature algorithm.
type SigCode string

const (
	SigEd25519Sha512       SigCode = "A"
	SigECDSASecp256k1Sha256 SigCode = "1AAB"
	SigEd448               SigCode = "1AAC"
)

func sigSize(c SigCode) (int, bool) {
	switch c {
	case SigEd25519Sha512:
		return 64, true
	case SigECDSASecp256k1Sha256:
		return 64, true
	case SigEd448:
		return 114, true
	default:
		return 0, false
	}
}
