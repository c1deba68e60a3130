// Copyright 2025 Certen Protocol
//
// Sentinel errors for the primitive codec.

package codec

import "errors"

var (
	// ErrMalformedPrimitive is returned when a self-describing primitive
	// cannot be decoded: unknown code, wrong length, invalid base64.
	ErrMalformedPrimitive = errors.New("codec: malformed primitive")

	// ErrMalformedAttachment is returned when an attachment group's framing
	// (code + count) does not match its payload.
	ErrMalformedAttachment = errors.New("codec: malformed attachment")

	// ErrUnknownDigestCode is returned for an unrecognized digest derivation code.
	ErrUnknownDigestCode = errors.New("codec: unknown digest code")

	// ErrUnknownSigCode is returned for an unrecognized signature derivation code.
	ErrUnknownSigCode = errors.New("codec: unknown signature code")

	// ErrBindingMismatch is returned when a digest does not verify against given bytes.
	ErrBindingMismatch = errors.New("codec: digest binding mismatch")
)
