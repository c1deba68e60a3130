// Copyright 2025 Certen Protocol
//
// Transport is the narrow interface the validator and agent consume to
// fetch remote KELs/TELs and submit locally-produced events, without
// depending on a concrete wire protocol. Grounded on pkg/server's handler
// style in the teacher repository (stdlib net/http only, no router
// library) -- the transport boundary itself is an external collaborator
// per spec.md §6, so only the interface and its error surface live here;
// pkg/transport/httpclient provides the stdlib net/http implementation.

package transport

import (
	"context"
	"errors"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// Transport is the set of operations the validator/agent need from a peer
// (a witness, watcher, or another controller's agent).
type Transport interface {
	// FetchKEL retrieves events for id with sn in [fromSn, toSn].
	FetchKEL(ctx context.Context, id codec.Prefix, fromSn, toSn uint64) ([]*event.KeyEvent, error)
	// SubmitEvent delivers a locally-produced event (with its attached
	// signatures) to a peer for ingestion.
	SubmitEvent(ctx context.Context, ev *event.KeyEvent, sigs []codec.IndexedSignature) error
	// SubmitReceipt delivers a witness or transferable receipt to a peer.
	SubmitReceipt(ctx context.Context, r *event.Receipt) error
	// FetchKSN retrieves the latest key state notice reply a peer holds for subject.
	FetchKSN(ctx context.Context, subject codec.Prefix) (*event.Reply, error)
	// PollMailbox retrieves queued messages for id from topic, starting
	// after cursor, following the (identifier, topic, cursor) shape
	// spec.md §4.7 describes.
	PollMailbox(ctx context.Context, id codec.Prefix, topic string, cursor int) ([]event.Exchange, error)
}

// Errors a Transport implementation is expected to surface using these
// sentinels (wrapped with %w), so callers can branch on failure class
// without depending on a concrete implementation's error types.
var (
	ErrUnknownIdentifier         = errors.New("transport: unknown identifier")
	ErrMalformedEvent            = errors.New("transport: malformed event")
	ErrSignatureVerificationFailed = errors.New("transport: signature verification failed")
	ErrThresholdNotMet           = errors.New("transport: signing threshold not met")
	ErrMissingDelegator          = errors.New("transport: missing delegator approval")
	ErrDuplicitous               = errors.New("transport: duplicitous event detected")
	ErrStaleReply                = errors.New("transport: reply superseded by a newer one")
	ErrNoLocationScheme          = errors.New("transport: no location scheme for identifier")
)
