// Copyright 2025 Certen Protocol
//
// Event and message kind tags, and the protocol version string framing
// every serialized message: the first 17 bytes are always
// "KERI10JSONxxxxxx_" where xxxxxx is the six-hex-digit byte length of the
// entire serialization.

package event

import "fmt"

// Kind tags the event/message type, the "t" field of every KERI message.
type Kind string

const (
	Icp Kind = "icp" // inception
	Rot Kind = "rot" // rotation
	Ixn Kind = "ixn" // interaction
	Dip Kind = "dip" // delegated inception
	Drt Kind = "drt" // delegated rotation

	Rct Kind = "rct" // non-transferable receipt
	Vrc Kind = "vrc" // transferable receipt

	Rpy Kind = "rpy" // reply (OOBI, KSN)
	Qry Kind = "qry" // query
	Exn Kind = "exn" // exchange (forwards multisig/delegation requests)

	Vcp Kind = "vcp" // TEL registry inception
	Vrt Kind = "vrt" // TEL registry rotation
	Iss Kind = "iss" // TEL credential issuance
	Bis Kind = "bis" // TEL credential issuance, backer-anchored
	Rev Kind = "rev" // TEL credential revocation
	Brv Kind = "brv" // TEL credential revocation, backer-anchored
)

// IsEstablishment reports whether kind changes the key state (as opposed to
// interaction, which only anchors data).
func (k Kind) IsEstablishment() bool {
	switch k {
	case Icp, Rot, Dip, Drt:
		return true
	default:
		return false
	}
}

// IsDelegated reports whether kind is a delegated establishment event.
func (k Kind) IsDelegated() bool {
	return k == Dip || k == Drt
}

// IsInception reports whether kind starts a new KEL (sn must be 0).
func (k Kind) IsInception() bool {
	return k == Icp || k == Dip
}

const (
	versionProtocol = "KERI10"
	versionJSON     = "JSON"
	versionPrefix   = versionProtocol + versionJSON
	versionLen      = 17 // len("KERI10JSONxxxxxx_")
)

// placeholderVersion is the version string before the true byte length is
// known; its length is fixed at versionLen so patching never shifts bytes.
const placeholderVersion = versionPrefix + "000000_"

// renderVersion patches a placeholder version string with the true byte
// length of the full serialization, encoded as six lowercase hex digits.
func renderVersion(totalLen int) (string, error) {
	if totalLen < 0 || totalLen > 0xFFFFFF {
		return "", fmt.Errorf("event: serialization length %d out of range", totalLen)
	}
	return fmt.Sprintf("%s%06x_", versionPrefix, totalLen), nil
}
