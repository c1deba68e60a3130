// Copyright 2025 Certen Protocol
//
// Compact text encoding for self-describing primitives: a short derivation
// code followed by URL-safe base64 of the raw bytes. Codes whose length is
// not a multiple of 4 are padded with leading 'A' (zero-valued base64url)
// characters so that code+payload length is always a multiple of 4; those
// pad characters are discarded on decode and never appear in the rendered
// code itself.

package codec

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// EncodePrimitive renders code||raw as compact self-describing text.
func EncodePrimitive(code string, raw []byte) (string, error) {
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrMalformedPrimitive)
	}
	b64 := base64.RawURLEncoding.EncodeToString(raw)
	pad := (4 - (len(code)+len(b64))%4) % 4
	var b strings.Builder
	b.WriteString(code)
	for i := 0; i < pad; i++ {
		b.WriteByte('A')
	}
	b.WriteString(b64)
	return b.String(), nil
}

// b64Len returns the RawURLEncoding text length for n raw bytes.
func b64Len(n int) int {
	return (n*8 + 5) / 6
}

// matchCode finds the longest code in known that prefixes text.
func matchCode(text string, known []string) (code string, rest string, err error) {
	sorted := append([]string(nil), known...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, c := range sorted {
		if strings.HasPrefix(text, c) {
			return c, text[len(c):], nil
		}
	}
	return "", "", fmt.Errorf("%w: no known code prefixes %q", ErrMalformedPrimitive, text)
}

// DecodePrimitive decodes text against a list of known codes of unknown raw
// size (used when the size cannot be inferred from the code alone, e.g.
// attachment material). It assumes no padding was used, i.e. len(code)+len(b64)
// is already a multiple of 4.
func DecodePrimitive(text string, known []string) (code string, raw []byte, err error) {
	code, rest, err := matchCode(text, known)
	if err != nil {
		return "", nil, err
	}
	raw, err = base64.RawURLEncoding.DecodeString(rest)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedPrimitive, err)
	}
	return code, raw, nil
}

// decodeSized decodes text whose raw payload is known to be rawSize bytes,
// stripping the leading pad characters that were inserted to align length
// to a multiple of 4.
func decodeSized(text string, known []string, rawSize int) (code string, raw []byte, err error) {
	code, rest, err := matchCode(text, known)
	if err != nil {
		return "", nil, err
	}
	want := b64Len(rawSize)
	if len(rest) < want {
		return "", nil, fmt.Errorf("%w: %s wants %d b64 chars, have %d", ErrMalformedPrimitive, code, want, len(rest))
	}
	pad := len(rest) - want
	b64 := rest[pad:]
	raw, err = base64.RawURLEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedPrimitive, err)
	}
	return code, raw, nil
}
