// Copyright 2025 Certen Protocol
//
// Adapter wraps a CometBFT dbm.DB (the teacher's persistent KV backend,
// pkg/ledger's original storage substrate) so it satisfies pkg/storage.KV
// directly -- a third on-disk backend alongside pkg/storage/memstore and
// pkg/storage/sqlstore, chosen when an operator wants an embedded store
// with no external Postgres dependency.

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/independant-validator/pkg/storage"
)

// Adapter implements storage.KV over a CometBFT dbm.DB.
type Adapter struct {
	db dbm.DB
}

// New wraps db as a storage.KV.
func New(db dbm.DB) *Adapter {
	return &Adapter{db: db}
}

// Get implements storage.KV.
func (a *Adapter) Get(key []byte) ([]byte, error) {
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

// Set implements storage.KV, writing durably (SetSync) since Storage treats
// a successful Set as a committed write (spec.md §5's per-event atomicity
// guarantee).
func (a *Adapter) Set(key, value []byte) error {
	return a.db.SetSync(key, value)
}

// Delete implements storage.KV.
func (a *Adapter) Delete(key []byte) error {
	return a.db.DeleteSync(key)
}

// ScanPrefix implements storage.KV by opening a ranged iterator from prefix
// to prefix's lexicographic upper bound, matching pkg/storage/memstore's
// sorted-order contract.
func (a *Adapter) ScanPrefix(prefix []byte) ([]storage.KVPair, error) {
	end := prefixUpperBound(prefix)
	it, err := a.db.Iterator(prefix, end)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []storage.KVPair
	for ; it.Valid(); it.Next() {
		k := append([]byte(nil), it.Key()...)
		v := append([]byte(nil), it.Value()...)
		out = append(out, storage.KVPair{Key: k, Value: v})
	}
	return out, it.Error()
}

// prefixUpperBound returns the smallest byte string greater than every
// string starting with prefix, or nil if prefix is all 0xFF bytes (meaning
// "scan to the end of the keyspace").
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
		end = end[:i]
	}
	return nil
}
