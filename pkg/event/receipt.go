// Copyright 2025 Certen Protocol
//
// Receipts reference another event by (prefix, sn, digest). A
// non-transferable receipt is witness-signed with either indexed
// signatures (position in that event's witness list) or explicit
// basic-prefix+signature couplets; a transferable receipt carries an
// event-seal plus indexed signatures.

package event

import "github.com/certen/independant-validator/pkg/codec"

// NonTransReceiptCouplet pairs a witness's basic prefix with its raw
// signature, used when the witness signature is not index-addressed.
type NonTransReceiptCouplet struct {
	Witness codec.Prefix
	Sig     codec.Signature
}

// Receipt references the receipted event by (Prefix, Sn, Digest).
type Receipt struct {
	Prefix codec.Prefix
	Sn     uint64
	Digest codec.Digest

	// Non-transferable receipt attachments (from witnesses).
	IndexedWitnessSigs []codec.IndexedSignature
	Couplets           []NonTransReceiptCouplet

	// Transferable receipt attachment: signer's own event-seal plus the
	// indexed signatures over it.
	SignerSeal   *Seal
	IndexedSigs  []codec.IndexedSignature
}

// IsTransferable reports whether this is a transferable receipt (signed by
// a transferable controller with an event-seal) rather than a
// non-transferable (witness) receipt.
func (r Receipt) IsTransferable() bool {
	return r.SignerSeal != nil
}
