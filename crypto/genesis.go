// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import "time"

// GenesisOperation is the immutable record created alongside a new
// identity: the DID document's founding operation.
type GenesisOperation struct {
	AlsoKnownAs          []string `json:"also_known_as"`
	RotationKeys         []string `json:"rotation_keys"`
	VerificationMethods  []string `json:"verification_methods"`
	CreatedAt            string   `json:"created_at"`
}

// NewGenesisOperation builds the genesis operation for a freshly generated
// identity, recording its multibase-encoded public key as the sole
// verification method and rotation key.
func NewGenesisOperation(k *KeyPair, handle string) *GenesisOperation {
	vm := k.MultibasePublicKey()
	return &GenesisOperation{
		AlsoKnownAs:         []string{handle},
		RotationKeys:        []string{vm},
		VerificationMethods: []string{vm},
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
	}
}
