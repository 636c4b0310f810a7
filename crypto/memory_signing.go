// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/musictopeople/ocm-go/memory"
)

// SignMemory sets m.Signature to the base64 Ed25519 signature over
// m.SigningPayload(), signed under k.
func SignMemory(k *KeyPair, m *memory.SignedMemory) {
	sig := k.Sign(m.SigningPayload())
	m.Signature = base64.StdEncoding.EncodeToString(sig)
}

// VerifyMemory returns false if m's content hash does not match its data,
// and otherwise verifies the signature under pub.
func VerifyMemory(pub ed25519.PublicKey, m *memory.SignedMemory) bool {
	if !m.VerifyHash() {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return false
	}
	return Verify(pub, m.SigningPayload(), sig)
}
