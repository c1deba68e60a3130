// Copyright 2025 Certen Protocol
//
// KV key layout, grounded on pkg/ledger/store.go's keySys*/keyAnchor*
// prefix-plus-binary-suffix convention in the teacher repository.

package storage

import (
	"encoding/binary"

	"github.com/certen/independant-validator/pkg/codec"
)

var (
	prefixEventByDigest   = []byte("kel:event:digest:")   // + digest text -> rawEventJSON
	prefixEventBySn       = []byte("kel:event:bysn:")     // + identifier + "/" + bigendian(sn) -> digest text
	prefixSigs            = []byte("kel:sigs:")           // + digest text -> json([]IndexedSignature)
	prefixReceipts        = []byte("kel:receipts:")       // + digest text -> json([]Receipt)
	prefixFirstSeen       = []byte("kel:firstseen:")      // + identifier + "/" + bigendian(seq) -> digest text
	prefixFirstSeenSeq    = []byte("kel:firstseen:seq:")  // + identifier -> bigendian(nextSeq)
	prefixState           = []byte("kel:state:")          // + identifier -> json(keystate.State)
	prefixCompromised     = []byte("kel:compromised:")    // + identifier -> "1" (presence-only marker)

	prefixTelEvent  = []byte("tel:event:digest:")  // + digest text -> rawTelEventJSON
	prefixTelBySn   = []byte("tel:event:bysn:")    // + telID + "/" + bigendian(sn) -> digest text
	prefixTelState  = []byte("tel:state:")         // + telID -> json(tel state)

	prefixOOBI = []byte("oobi:reply:") // + route + "/" + subject -> json(Reply)
	prefixKSN  = []byte("ksn:reply:")  // + subject -> json(Reply)
)

func snSuffix(sn uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, sn)
	return b
}

func identifierKey(prefix []byte, id codec.Prefix) ([]byte, error) {
	text, err := id.Text()
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), prefix...), []byte(text)...), nil
}

func eventBySnKey(prefix []byte, id codec.Prefix, sn uint64) ([]byte, error) {
	base, err := identifierKey(prefix, id)
	if err != nil {
		return nil, err
	}
	return append(append(base, '/'), snSuffix(sn)...), nil
}

func digestKey(prefix []byte, d codec.Digest) ([]byte, error) {
	text, err := d.Text()
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), prefix...), []byte(text)...), nil
}
