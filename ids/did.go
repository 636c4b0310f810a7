// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids holds the identifier types shared across every component:
// the DID of a self-sovereign identity, and thin helpers around the UUIDv4
// identifiers used for memories, claim tokens and peers.
package ids

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"regexp"
)

const (
	didPrefix  = "did:plc:"
	didIDBytes = 24
	// didIDChars is ceil(didIDBytes*8/5): the unpadded base32 length of a
	// 24-byte truncated hash. spec.md §3 derives the DID as
	// base32lower(truncate24(sha256(...))) but §6 separately describes the
	// id portion as "28 lowercase base32 chars" (24 raw bytes -> 38.4,
	// "truncate to 28 typical") -- an internally inconsistent pair the spec
	// itself flags as ambiguous. This implementation follows the concrete
	// formula in §3 (encode the truncated 24-byte hash in full) and
	// documents the deviation in DESIGN.md rather than lossily truncating
	// the encoded id to 28 chars, which would throw away hash bits no
	// other peer could reconstruct.
	didIDChars = 39
)

var base32Lower = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// didFormat matches did:plc:<39 lowercase base32 chars> -- see didIDChars.
var didFormat = regexp.MustCompile(`^did:plc:[a-z2-7]{39}$`)

// DID is a decentralized identifier of the form did:plc:<39 lowercase
// base32 chars>, deterministically derived from an Ed25519 public key.
type DID string

// DeriveDID computes did:plc:<base32lower(truncate24(SHA256("did:plc:" || pub)))>.
func DeriveDID(pub []byte) DID {
	h := sha256.Sum256(append([]byte(didPrefix), pub...))
	truncated := h[:didIDBytes]
	return DID(didPrefix + base32Lower.EncodeToString(truncated))
}

func (d DID) String() string { return string(d) }

// Valid reports whether d has the expected did:plc: shape. It does not
// verify that the id matches any particular public key.
func (d DID) Valid() bool {
	return didFormat.MatchString(string(d))
}

func ParseDID(s string) (DID, error) {
	d := DID(s)
	if !d.Valid() {
		return "", fmt.Errorf("ids: invalid DID %q", s)
	}
	return d, nil
}
