// Copyright 2025 Certen Protocol
//
// Attachment group framing: the CESR groups that follow a serialized event
// on the wire, each identified by a two-character group code and a
// two-character count. Modeled as a small tagged-union parser in the same
// walk-the-path shape as pkg/merkle's inclusion-proof path (merkle.Tree
// in the teacher repository), adapted from byte-hash pairs to typed
// attachment groups.

package codec

import "fmt"

// GroupCode identifies the kind of attachment group.
type GroupCode string

const (
	GroupIndexedControllerSigs   GroupCode = "-A"
	GroupIndexedWitnessSigs      GroupCode = "-B"
	GroupNonTransReceiptCouplets GroupCode = "-C"
	GroupSealSourceCouplets      GroupCode = "-G"
	GroupFirstSeenReplyCouplets  GroupCode = "-D"
	GroupTransferableIdxSigGroups GroupCode = "-F"
	GroupLastEstSigGroups        GroupCode = "-H"
	GroupPathedMaterialQuad      GroupCode = "-L"
	GroupFramedGroup             GroupCode = "-V"
)

// Attachment is one parsed CESR group: its kind and the ordered items it
// carries. The concrete item type depends on Code; callers type-assert
// Items against the shape they expect (e.g. []IndexedSignature for
// GroupIndexedControllerSigs).
type Attachment struct {
	Code  GroupCode
	Count int
	Items []any
}

// ParseAttachmentGroups walks a concatenated attachment byte stream and
// returns the ordered list of attachment groups it contains.
//
// Each group begins with a GroupCode, followed by a count quadruplet (a
// two-character base64 count of the items that follow), followed by that
// many items rendered in the encoding appropriate to the group kind. This
// is a structural parser: callers supply a decodeItem function per group
// kind via ItemDecoders, since the item shape varies (indexed signature vs.
// receipt couplet vs. seal-source couplet).
type ItemDecoders map[GroupCode]func(text string) (item any, consumed int, err error)

func ParseAttachmentGroups(text string, decoders ItemDecoders) ([]Attachment, error) {
	var groups []Attachment
	for len(text) > 0 {
		if len(text) < 4 {
			return nil, fmt.Errorf("%w: truncated group header", ErrMalformedAttachment)
		}
		code := GroupCode(text[:2])
		countText := text[2:4]
		count, err := decodeQuadrupletCount(countText)
		if err != nil {
			return nil, fmt.Errorf("%w: group %s count: %v", ErrMalformedAttachment, code, err)
		}
		text = text[4:]

		decode, ok := decoders[code]
		if !ok {
			return nil, fmt.Errorf("%w: no decoder registered for group %s", ErrMalformedAttachment, code)
		}

		items := make([]any, 0, count)
		for i := 0; i < count; i++ {
			item, consumed, err := decode(text)
			if err != nil {
				return nil, fmt.Errorf("%w: group %s item %d: %v", ErrMalformedAttachment, code, i, err)
			}
			items = append(items, item)
			text = text[consumed:]
		}
		groups = append(groups, Attachment{Code: code, Count: count, Items: items})
	}
	return groups, nil
}

// decodeQuadrupletCount decodes a two-character base64url count field.
func decodeQuadrupletCount(s string) (int, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	if len(s) != 2 {
		return 0, fmt.Errorf("count field must be 2 characters")
	}
	v := 0
	for _, c := range s {
		idx := indexOf(alphabet, byte(c))
		if idx < 0 {
			return 0, fmt.Errorf("invalid base64url count character %q", c)
		}
		v = v*64 + idx
	}
	return v, nil
}

func indexOf(alphabet string, b byte) int {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			return i
		}
	}
	return -1
}

// RenderAttachmentGroup frames a group's already-encoded item texts behind
// its code and quadruplet count.
func RenderAttachmentGroup(code GroupCode, itemTexts []string) (string, error) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	n := len(itemTexts)
	if n >= 64*64 {
		return "", fmt.Errorf("%w: group %s too large to frame (%d items)", ErrMalformedAttachment, code, n)
	}
	countText := string([]byte{alphabet[n/64], alphabet[n%64]})
	out := string(code) + countText
	for _, t := range itemTexts {
		out += t
	}
	return out, nil
}
