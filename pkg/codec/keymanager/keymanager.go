// Copyright 2025 Certen Protocol
//
// File-backed Ed25519 key manager implementing the Key Manager interface
// consumed by the Identifier Agent (spec §6). The core never stores private
// material beyond this package; it is loaded, on demand, from a key file or
// generated and persisted, following the load-or-generate-and-save shape of
// pkg/crypto/bls.KeyManager in the teacher repository, adapted from BLS
// scalars to Ed25519 seeds with an explicit current/next pre-rotation pair.
package keymanager

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/certen/independant-validator/pkg/codec"
)

// KeyManager owns the current and next-in-line Ed25519 key pairs for one
// identifier. Rotate() reveals the next key as current and generates a
// fresh next key, matching KERI's pre-rotation commitment scheme.
type KeyManager struct {
	keyPath string

	currentPriv ed25519.PrivateKey
	currentPub  ed25519.PublicKey
	nextPriv    ed25519.PrivateKey
	nextPub     ed25519.PublicKey
}

// New creates a key manager whose material is persisted under keyPath
// (empty keyPath keeps keys in memory only, useful for tests).
func New(keyPath string) *KeyManager {
	return &KeyManager{keyPath: keyPath}
}

// LoadOrGenerate loads existing key material from keyPath, or generates a
// fresh current/next pair and persists it if keyPath is set and absent.
func (km *KeyManager) LoadOrGenerate() error {
	if km.keyPath != "" {
		if _, err := os.Stat(km.keyPath); err == nil {
			return km.load()
		}
	}
	return km.generate()
}

func (km *KeyManager) generate() error {
	cp, csk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("keymanager: generate current key: %w", err)
	}
	np, nsk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("keymanager: generate next key: %w", err)
	}
	km.currentPub, km.currentPriv = cp, csk
	km.nextPub, km.nextPriv = np, nsk
	if km.keyPath != "" {
		return km.save()
	}
	return nil
}

func (km *KeyManager) load() error {
	data, err := os.ReadFile(km.keyPath)
	if err != nil {
		return fmt.Errorf("keymanager: read key file: %w", err)
	}
	var currentHex, nextHex string
	if _, err := fmt.Sscanf(string(data), "%s %s", &currentHex, &nextHex); err != nil {
		return fmt.Errorf("keymanager: parse key file: %w", err)
	}
	currentSeed, err := hex.DecodeString(currentHex)
	if err != nil {
		return fmt.Errorf("keymanager: decode current seed: %w", err)
	}
	nextSeed, err := hex.DecodeString(nextHex)
	if err != nil {
		return fmt.Errorf("keymanager: decode next seed: %w", err)
	}
	km.currentPriv = ed25519.NewKeyFromSeed(currentSeed)
	km.currentPub = km.currentPriv.Public().(ed25519.PublicKey)
	km.nextPriv = ed25519.NewKeyFromSeed(nextSeed)
	km.nextPub = km.nextPriv.Public().(ed25519.PublicKey)
	return nil
}

func (km *KeyManager) save() error {
	if dir := filepath.Dir(km.keyPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("keymanager: mkdir: %w", err)
		}
	}
	currentSeed := km.currentPriv.Seed()
	nextSeed := km.nextPriv.Seed()
	content := fmt.Sprintf("%s %s", hex.EncodeToString(currentSeed), hex.EncodeToString(nextSeed))
	return os.WriteFile(km.keyPath, []byte(content), 0600)
}

// PublicKey returns the current public key as a codec Prefix.
func (km *KeyManager) PublicKey() (codec.Prefix, error) {
	return codec.NewBasicEd25519Prefix(km.currentPub)
}

// NextPublicKey returns the committed-but-unrevealed next public key.
func (km *KeyManager) NextPublicKey() (codec.Prefix, error) {
	return codec.NewBasicEd25519Prefix(km.nextPub)
}

// Sign signs data with the current private key.
func (km *KeyManager) Sign(data []byte) (codec.Signature, error) {
	sig := ed25519.Sign(km.currentPriv, data)
	return codec.NewSignature(codec.SigEd25519Sha512, sig)
}

// Rotate reveals the next key as current and generates a fresh next key,
// persisting the new pair if keyPath is set. Returns the new current and
// next public keys so the caller can build the rotation event's key sets.
func (km *KeyManager) Rotate() (current codec.Prefix, next codec.Prefix, err error) {
	np, nsk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return codec.Prefix{}, codec.Prefix{}, fmt.Errorf("keymanager: generate next key: %w", err)
	}
	km.currentPriv, km.currentPub = km.nextPriv, km.nextPub
	km.nextPriv, km.nextPub = nsk, np
	if km.keyPath != "" {
		if err := km.save(); err != nil {
			return codec.Prefix{}, codec.Prefix{}, err
		}
	}
	cur, err := km.PublicKey()
	if err != nil {
		return codec.Prefix{}, codec.Prefix{}, err
	}
	nxt, err := km.NextPublicKey()
	if err != nil {
		return codec.Prefix{}, codec.Prefix{}, err
	}
	return cur, nxt, nil
}
