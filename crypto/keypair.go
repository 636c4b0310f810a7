// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto implements identity and attestation (spec component C1):
// Ed25519 keypair generation, DID derivation, signing/verification of
// memories, and a zeroizing container for private key material.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/musictopeople/ocm-go/ids"
)

// PrivateKeyMaterial holds an Ed25519 private key in a container that
// zeroes itself on Zero() and never reveals its bytes through String,
// GoString or %v/%+v formatting -- only through Bytes(), which callers must
// treat as sensitive.
type PrivateKeyMaterial struct {
	b []byte
}

func newPrivateKeyMaterial(b ed25519.PrivateKey) *PrivateKeyMaterial {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &PrivateKeyMaterial{b: cp}
}

// Bytes returns the raw private key. The returned slice aliases internal
// storage; callers must not retain or mutate it beyond the call site.
func (k *PrivateKeyMaterial) Bytes() ed25519.PrivateKey {
	return ed25519.PrivateKey(k.b)
}

// Zero overwrites the backing array with zero bytes. Safe to call more than
// once and safe to call on a nil receiver.
func (k *PrivateKeyMaterial) Zero() {
	if k == nil {
		return
	}
	for i := range k.b {
		k.b[i] = 0
	}
}

func (k *PrivateKeyMaterial) String() string   { return "<redacted private key>" }
func (k *PrivateKeyMaterial) GoString() string { return "<redacted private key>" }

// KeyPair is a self-sovereign Ed25519 identity: a public key and its
// zeroizing private counterpart, plus the DID derived from the public key.
type KeyPair struct {
	Public  ed25519.PublicKey
	private *PrivateKeyMaterial
	DID     ids.DID
}

// GenerateKeyPair derives a new Ed25519 keypair from a cryptographically
// secure RNG and its corresponding DID.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return &KeyPair{
		Public:  pub,
		private: newPrivateKeyMaterial(priv),
		DID:     ids.DeriveDID(pub),
	}, nil
}

// KeyPairFromPrivate reconstructs a KeyPair from a previously generated
// 64-byte Ed25519 private key (e.g. loaded from secure storage).
func KeyPairFromPrivate(priv ed25519.PrivateKey) (*KeyPair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{
		Public:  pub,
		private: newPrivateKeyMaterial(priv),
		DID:     ids.DeriveDID(pub),
	}, nil
}

// Zero destroys the private key material held by this KeyPair. The public
// key and DID remain valid for verification.
func (k *KeyPair) Zero() {
	k.private.Zero()
}

// PublicKeyBase64 is the base64 (standard alphabet) encoding of the public
// key, as stored at rest.
func (k *KeyPair) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(k.Public)
}

// PrivateKeyBytes returns the raw 64-byte Ed25519 private key, for callers
// persisting identity to disk (e.g. node startup loading/writing the
// identity file). Round-trips through KeyPairFromPrivate.
func (k *KeyPair) PrivateKeyBytes() ed25519.PrivateKey {
	return k.private.Bytes()
}

// MultibasePublicKey returns the multibase-base58btc encoded public key
// used as a genesis operation verification method: "z" || base58btc(pub).
func (k *KeyPair) MultibasePublicKey() string {
	return MultibaseEncode(k.Public)
}

// MultibaseEncode applies the "z"-prefixed base58btc multibase encoding
// used for verification methods throughout the genesis operation.
func MultibaseEncode(pub []byte) string {
	return "z" + base58.Encode(pub)
}

// MultibaseDecode reverses MultibaseEncode, rejecting anything not
// "z"-prefixed.
func MultibaseDecode(s string) ([]byte, error) {
	if len(s) == 0 || s[0] != 'z' {
		return nil, fmt.Errorf("crypto: multibase key missing 'z' prefix")
	}
	return base58.Decode(s[1:])
}

// Sign produces a 64-byte Ed25519 signature over payload.
func (k *KeyPair) Sign(payload []byte) []byte {
	return ed25519.Sign(k.private.Bytes(), payload)
}

// Verify reports whether sig is a valid Ed25519 signature over payload
// under pub. It never panics on malformed input -- it returns false.
func Verify(pub ed25519.PublicKey, payload, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	defer func() { recover() }() //nolint:errcheck // ed25519.Verify can panic on exotic malformed keys
	return ed25519.Verify(pub, payload, sig)
}
