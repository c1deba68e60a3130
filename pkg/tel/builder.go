// Copyright 2025 Certen Protocol
//
// TEL event builders, the registry/credential analogue of
// pkg/event/builder.go's BuildInception/BuildRotation/BuildInteraction:
// construct the unsigned, undigested event shape and leave Serialize to
// fill in Digest/Version/ID.

package tel

import (
	"fmt"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
)

// RegistryInceptionParams describes a vcp event before serialization.
type RegistryInceptionParams struct {
	IssuerID        codec.Prefix
	Backers         []codec.Prefix
	BackerThreshold int
	Traits          []string
	Seal            event.Seal // source seal into the issuer's KEL
}

// BuildRegistryInception constructs an unsigned vcp event.
func BuildRegistryInception(p RegistryInceptionParams) (*Event, error) {
	if p.BackerThreshold < 0 || p.BackerThreshold > len(p.Backers) {
		return nil, fmt.Errorf("tel: backer threshold %d invalid for %d backers", p.BackerThreshold, len(p.Backers))
	}
	if HasTrait(p.Traits, NoBackersTrait) && len(p.Backers) > 0 {
		return nil, fmt.Errorf("tel: no-backers registry must not declare backers")
	}
	bt := p.BackerThreshold
	issuer := p.IssuerID
	seal := p.Seal
	return &Event{
		Kind:            Vcp,
		Sn:              0,
		IssuerID:        &issuer,
		Backers:         p.Backers,
		BackerThreshold: &bt,
		Traits:          p.Traits,
		Seal:            &seal,
	}, nil
}

// RegistryRotationParams describes a vrt event before serialization.
type RegistryRotationParams struct {
	ID              codec.Prefix
	Sn              uint64
	Prev            codec.Digest
	BackersAdd      []codec.Prefix
	BackersRemove   []codec.Prefix
	BackerThreshold int
	Seal            event.Seal
}

// BuildRegistryRotation constructs an unsigned vrt event.
func BuildRegistryRotation(p RegistryRotationParams) (*Event, error) {
	if p.Sn == 0 {
		return nil, fmt.Errorf("tel: registry rotation sn must be > 0")
	}
	bt := p.BackerThreshold
	prev := p.Prev
	seal := p.Seal
	return &Event{
		Kind: Vrt, ID: p.ID, Sn: p.Sn, Prev: &prev,
		BackersAdd: p.BackersAdd, BackersRemove: p.BackersRemove,
		BackerThreshold: &bt, Seal: &seal,
	}, nil
}

// CredentialIssuanceParams describes an iss or bis event before
// serialization.
type CredentialIssuanceParams struct {
	RegistryID codec.Prefix
	Backed     bool // true selects bis over iss
	Seal       event.Seal
}

// BuildCredentialIssuance constructs an unsigned iss (or bis) event.
func BuildCredentialIssuance(p CredentialIssuanceParams) (*Event, error) {
	kind := Iss
	if p.Backed {
		kind = Bis
	}
	registry := p.RegistryID
	seal := p.Seal
	return &Event{Kind: kind, Sn: 0, RegistryID: &registry, Seal: &seal}, nil
}

// CredentialRevocationParams describes a rev or brv event before
// serialization.
type CredentialRevocationParams struct {
	ID         codec.Prefix
	RegistryID codec.Prefix
	Sn         uint64
	Prev       codec.Digest
	Backed     bool // true selects brv over rev
	Seal       event.Seal
}

// BuildCredentialRevocation constructs an unsigned rev (or brv) event.
func BuildCredentialRevocation(p CredentialRevocationParams) (*Event, error) {
	if p.Sn == 0 {
		return nil, fmt.Errorf("tel: credential revocation sn must be > 0")
	}
	kind := Rev
	if p.Backed {
		kind = Brv
	}
	registry := p.RegistryID
	prev := p.Prev
	seal := p.Seal
	return &Event{
		Kind: kind, ID: p.ID, Sn: p.Sn, Prev: &prev,
		RegistryID: &registry, Seal: &seal,
	}, nil
}
