// Copyright 2025 Certen Protocol
//
// Query (qry) and exchange (exn) message shapes. These are not part of the
// KEL/TEL hash chains; they are the wire shapes the Mailbox & Exchange
// component (spec.md §4.7) forwards between group participants and
// witnesses. Their presence here supplements spec.md's distillation, which
// names the Mailbox & Exchange component but not the wire shape of what it
// carries (see SPEC_FULL.md, "Supplemented features").

package event

import "github.com/certen/independant-validator/pkg/codec"

// QueryRoute names what a query asks for.
type QueryRoute string

const (
	QueryRouteLog    QueryRoute = "/log"
	QueryRouteMailbox QueryRoute = "/mbx"
	QueryRouteKSN    QueryRoute = "/ksn"
)

// Query is a qry message: a route plus the subject identifier and, for
// mailbox queries, a per-topic cursor map.
type Query struct {
	Route   QueryRoute
	Subject codec.Prefix
	// Cursors maps topic name -> already-consumed count, for /mbx queries.
	Cursors map[string]int
}

// ExchangeRoute names what an exn message forwards.
type ExchangeRoute string

const (
	ExchangeRouteMultisig   ExchangeRoute = "/multisig/icp"
	ExchangeRouteMultisigRot ExchangeRoute = "/multisig/rot"
	ExchangeRouteDelegate   ExchangeRoute = "/delegate/apply"
)

// Exchange is an exn message: a sender forwarding a partially-signed event
// (and its attached signatures) to fellow group participants or to a
// delegator for approval.
type Exchange struct {
	Route     ExchangeRoute
	Sender    codec.Prefix
	Recipient codec.Prefix
	Payload   KeyEvent
	Sigs      []codec.IndexedSignature
}
