// Copyright 2025 Certen Protocol
//
// TEL storage: the same digest/bysn indexing PutEvent/GetEventBySn use for
// the KEL, but keyed by registry or credential identifier instead of a
// controller prefix, and storing raw bytes rather than a typed event --
// pkg/tel owns its own wire shape, storage only persists it.

package storage

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
)

// PutTelEvent stores rawEvent (already-canonicalized JSON) under digest and
// indexes it by (telID, sn).
func (s *Storage) PutTelEvent(telID codec.Prefix, sn uint64, digest codec.Digest, rawEvent []byte) error {
	dk, err := digestKey(prefixTelEvent, digest)
	if err != nil {
		return fmt.Errorf("storage: tel digest key: %w", err)
	}
	if err := s.kv.Set(dk, rawEvent); err != nil {
		return err
	}
	snk, err := eventBySnKey(prefixTelBySn, telID, sn)
	if err != nil {
		return fmt.Errorf("storage: tel sn key: %w", err)
	}
	digestText, err := digest.Text()
	if err != nil {
		return err
	}
	return s.kv.Set(snk, []byte(digestText))
}

// GetTelEventByDigest returns the raw bytes stored under digest.
func (s *Storage) GetTelEventByDigest(digest codec.Digest) ([]byte, error) {
	dk, err := digestKey(prefixTelEvent, digest)
	if err != nil {
		return nil, err
	}
	return s.kv.Get(dk)
}

// GetTelEventBySn returns the raw bytes stored at (telID, sn).
func (s *Storage) GetTelEventBySn(telID codec.Prefix, sn uint64) ([]byte, error) {
	snk, err := eventBySnKey(prefixTelBySn, telID, sn)
	if err != nil {
		return nil, err
	}
	digestText, err := s.kv.Get(snk)
	if err != nil {
		return nil, err
	}
	d, err := codec.ParseDigest(string(digestText))
	if err != nil {
		return nil, err
	}
	return s.GetTelEventByDigest(d)
}

// RangeTEL returns the raw bytes of every event for telID with sn in
// [fromSn, toSn], inclusive, in ascending order. A missing sn stops the
// scan short, mirroring RangeKEL's gap handling.
func (s *Storage) RangeTEL(telID codec.Prefix, fromSn, toSn uint64) ([][]byte, error) {
	var out [][]byte
	for sn := fromSn; sn <= toSn; sn++ {
		raw, err := s.GetTelEventBySn(telID, sn)
		if err != nil {
			if err == ErrNotFound {
				break
			}
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// PutTelState persists the JSON-encoded projected state for telID.
func (s *Storage) PutTelState(telID codec.Prefix, rawState []byte) error {
	k, err := identifierKey(prefixTelState, telID)
	if err != nil {
		return err
	}
	return s.kv.Set(k, rawState)
}

// GetTelState returns the JSON-encoded projected state for telID.
func (s *Storage) GetTelState(telID codec.Prefix) ([]byte, error) {
	k, err := identifierKey(prefixTelState, telID)
	if err != nil {
		return nil, err
	}
	return s.kv.Get(k)
}
