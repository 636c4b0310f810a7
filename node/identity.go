// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/musictopeople/ocm-go/crypto"
)

const (
	permReadWriteExecute = 0o755
	permReadWrite        = 0o600
	permReadOnly         = 0o400
)

const identityFileName = "identity.key"

// LoadOrCreateIdentity reads a base64-encoded Ed25519 private key from
// <dataDir>/identity.key, generating and persisting a new one if absent --
// the same "load from disk, else generate and write with restricted
// permissions" shape as the teacher's getStakingSigner.
func LoadOrCreateIdentity(dataDir string) (*crypto.KeyPair, error) {
	path := filepath.Join(dataDir, identityFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		priv, decodeErr := base64.StdEncoding.DecodeString(string(raw))
		if decodeErr != nil {
			return nil, fmt.Errorf("node: decode identity file: %w", decodeErr)
		}
		return crypto.KeyPairFromPrivate(priv)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("node: read identity file: %w", err)
	}

	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("node: generate identity: %w", err)
	}

	if err := os.MkdirAll(dataDir, permReadWriteExecute); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(kp.PrivateKeyBytes())
	if err := os.WriteFile(path, []byte(encoded), permReadWrite); err != nil {
		return nil, fmt.Errorf("node: write identity file: %w", err)
	}
	if err := os.Chmod(path, permReadOnly); err != nil {
		return nil, fmt.Errorf("node: restrict identity file permissions: %w", err)
	}
	return kp, nil
}
