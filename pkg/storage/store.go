// Copyright 2025 Certen Protocol
//
// Storage is the append-only event log plus per-identifier indices the
// validator, escrows, and agent all read and write through. Grounded on
// pkg/ledger/store.go's pattern of a thin struct wrapping a KV handle, with
// sentinel errors in pkg/ledger/errors.go's style (errors.go in this
// package) and JSON-encoded values the way pkg/ledger/store.go stores its
// anchor records.

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// Storage is the durable backing store for KEL/TEL events, their attached
// signatures and witness receipts, OOBI/KSN replies, and the first-seen
// insertion-order log (spec.md §6).
type Storage struct {
	kv KV
}

// New wraps kv in a Storage.
func New(kv KV) *Storage {
	return &Storage{kv: kv}
}

// PutEvent stores ev keyed by its own digest and indexes it by
// (identifier, sn) so KEL replay (RangeKEL) can walk events in order.
// Storing an event that already exists at (identifier, sn) under a
// different digest is permitted -- duplicity detection is the validator's
// job, not storage's (spec.md §7).
func (s *Storage) PutEvent(ev *event.KeyEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: marshal event: %w", err)
	}
	dk, err := digestKey(prefixEventByDigest, ev.Digest)
	if err != nil {
		return fmt.Errorf("storage: event digest key: %w", err)
	}
	if err := s.kv.Set(dk, raw); err != nil {
		return err
	}
	snk, err := eventBySnKey(prefixEventBySn, ev.Prefix, ev.Sn)
	if err != nil {
		return fmt.Errorf("storage: event sn key: %w", err)
	}
	digestText, err := ev.Digest.Text()
	if err != nil {
		return err
	}
	return s.kv.Set(snk, []byte(digestText))
}

// GetEventByDigest fetches a previously stored event by its digest.
func (s *Storage) GetEventByDigest(d codec.Digest) (*event.KeyEvent, error) {
	dk, err := digestKey(prefixEventByDigest, d)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(dk)
	if err != nil {
		return nil, err
	}
	var ev event.KeyEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("storage: unmarshal event: %w", err)
	}
	return &ev, nil
}

// GetEventBySn fetches the event at (identifier, sn), following the
// (identifier, sn) -> digest -> event indirection.
func (s *Storage) GetEventBySn(id codec.Prefix, sn uint64) (*event.KeyEvent, error) {
	snk, err := eventBySnKey(prefixEventBySn, id, sn)
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
	return s.GetEventByDigest(d)
}

// RangeKEL returns every event for id with sn in [fromSn, toSn], inclusive,
// in ascending sn order. A missing sn in the range stops the scan short of
// toSn rather than erroring, since a gap is exactly what the out-of-order
// escrow exists to track (spec.md §5).
func (s *Storage) RangeKEL(id codec.Prefix, fromSn, toSn uint64) ([]*event.KeyEvent, error) {
	var out []*event.KeyEvent
	for sn := fromSn; sn <= toSn; sn++ {
		ev, err := s.GetEventBySn(id, sn)
		if err != nil {
			if err == ErrNotFound {
				break
			}
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// PutSignatures appends sigs to the signature set already stored against
// digest, deduplicating by index.
func (s *Storage) PutSignatures(d codec.Digest, sigs []codec.IndexedSignature) error {
	existing, err := s.GetSignatures(d)
	if err != nil && err != ErrNotFound {
		return err
	}
	merged := mergeIndexedSigs(existing, sigs)
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	dk, err := digestKey(prefixSigs, d)
	if err != nil {
		return err
	}
	return s.kv.Set(dk, raw)
}

// GetSignatures returns the signature set stored against digest.
func (s *Storage) GetSignatures(d codec.Digest) ([]codec.IndexedSignature, error) {
	dk, err := digestKey(prefixSigs, d)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(dk)
	if err != nil {
		return nil, err
	}
	var sigs []codec.IndexedSignature
	if err := json.Unmarshal(raw, &sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

func mergeIndexedSigs(existing, incoming []codec.IndexedSignature) []codec.IndexedSignature {
	byIdx := make(map[int]codec.IndexedSignature, len(existing)+len(incoming))
	order := make([]int, 0, len(existing)+len(incoming))
	for _, s := range existing {
		if _, ok := byIdx[s.Index.Current]; !ok {
			order = append(order, s.Index.Current)
		}
		byIdx[s.Index.Current] = s
	}
	for _, s := range incoming {
		if _, ok := byIdx[s.Index.Current]; !ok {
			order = append(order, s.Index.Current)
		}
		byIdx[s.Index.Current] = s
	}
	out := make([]codec.IndexedSignature, 0, len(order))
	for _, idx := range order {
		out = append(out, byIdx[idx])
	}
	return out
}

// PutReceipts appends witness/transferable receipts recorded against digest.
func (s *Storage) PutReceipts(d codec.Digest, receipts []event.Receipt) error {
	existing, err := s.GetReceipts(d)
	if err != nil && err != ErrNotFound {
		return err
	}
	merged := append(existing, receipts...)
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	dk, err := digestKey(prefixReceipts, d)
	if err != nil {
		return err
	}
	return s.kv.Set(dk, raw)
}

// GetReceipts returns the receipts recorded against digest.
func (s *Storage) GetReceipts(d codec.Digest) ([]event.Receipt, error) {
	dk, err := digestKey(prefixReceipts, d)
	if err != nil {
		return nil, err
	}
	raw, err := s.kv.Get(dk)
	if err != nil {
		return nil, err
	}
	var receipts []event.Receipt
	if err := json.Unmarshal(raw, &receipts); err != nil {
		return nil, err
	}
	return receipts, nil
}

// AppendFirstSeen records d as the next entry in id's first-seen log,
// returning the sequence number assigned. This is the "first seen"
// insertion-order ledger original_source/ keeps alongside the KEL proper,
// distinct from sn because out-of-order events are recorded in arrival
// order, not chain order (SPEC_FULL.md, "Supplemented features").
func (s *Storage) AppendFirstSeen(id codec.Prefix, d codec.Digest) (uint64, error) {
	seqKey, err := identifierKey(prefixFirstSeenSeq, id)
	if err != nil {
		return 0, err
	}
	var next uint64
	raw, err := s.kv.Get(seqKey)
	if err == nil {
		next = binary.BigEndian.Uint64(raw)
	} else if err != ErrNotFound {
		return 0, err
	}
	entryKey, err := eventBySnKey(prefixFirstSeen, id, next)
	if err != nil {
		return 0, err
	}
	digestText, err := d.Text()
	if err != nil {
		return 0, err
	}
	if err := s.kv.Set(entryKey, []byte(digestText)); err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next+1)
	if err := s.kv.Set(seqKey, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// ListFirstSeen returns id's first-seen log entries, in insertion order.
func (s *Storage) ListFirstSeen(id codec.Prefix) ([]codec.Digest, error) {
	base, err := identifierKey(prefixFirstSeen, id)
	if err != nil {
		return nil, err
	}
	pairs, err := s.kv.ScanPrefix(base)
	if err != nil {
		return nil, err
	}
	out := make([]codec.Digest, 0, len(pairs))
	for _, p := range pairs {
		d, err := codec.ParseDigest(string(p.Value))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// PutReply stores a KSN or OOBI reply message, keyed by its subject and
// route. Callers apply BADA ordering (spec.md §4.6 rule b) before calling
// this -- Storage itself performs no acceptance check, it only persists.
func (s *Storage) PutReply(r *event.Reply) error {
	subjText, err := r.Subject().Text()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var key []byte
	if r.Route == event.RouteKSN {
		key = append(append([]byte(nil), prefixKSN...), []byte(subjText)...)
	} else {
		key = append(append([]byte(nil), prefixOOBI...), []byte(string(r.Route)+"/"+subjText)...)
	}
	return s.kv.Set(key, raw)
}

// GetKSN returns the latest stored key state notice reply for subject.
func (s *Storage) GetKSN(subject codec.Prefix) (*event.Reply, error) {
	subjText, err := subject.Text()
	if err != nil {
		return nil, err
	}
	key := append(append([]byte(nil), prefixKSN...), []byte(subjText)...)
	raw, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	var r event.Reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarkCompromised persistently flags id as duplicitous-compromised: once
// set, no restart or replay should ever again accept an event for id
// (spec.md §7). This is a presence-only marker rather than a stored
// keystate.State snapshot, since replayState always rebuilds state fresh
// from the event log and only needs a yes/no gate here.
func (s *Storage) MarkCompromised(id codec.Prefix) error {
	key, err := identifierKey(prefixCompromised, id)
	if err != nil {
		return err
	}
	return s.kv.Set(key, []byte("1"))
}

// IsCompromised reports whether id has ever been marked compromised.
func (s *Storage) IsCompromised(id codec.Prefix) (bool, error) {
	key, err := identifierKey(prefixCompromised, id)
	if err != nil {
		return false, err
	}
	_, err = s.kv.Get(key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetOOBI returns the stored reply for (route, subject).
func (s *Storage) GetOOBI(route event.ReplyRoute, subject codec.Prefix) (*event.Reply, error) {
	subjText, err := subject.Text()
	if err != nil {
		return nil, err
	}
	key := append(append([]byte(nil), prefixOOBI...), []byte(string(route)+"/"+subjText)...)
	raw, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	var r event.Reply
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
