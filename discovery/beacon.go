// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package discovery implements LAN peer discovery (spec component C7):
// periodic UDP beacon broadcast, beacon ingestion into the shared peer
// table, and dialing newly discovered peers.
package discovery

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/ocmerr"
)

// maxBeaconSize bounds a single UDP datagram's JSON body, mirroring the
// network package's length-checked framing discipline even though UDP
// itself has no length prefix to validate.
const maxBeaconSize = 2048

// BeaconInterval is how often this node announces itself, per spec.md §4.7.
const BeaconInterval = 60 * time.Second

// Beacon is the UDP datagram broadcast by every participating node.
type Beacon struct {
	PeerID    uuid.UUID `json:"peer_id"`
	DID       ids.DID   `json:"did"`
	Address   string    `json:"address"`
	Port      uint16    `json:"port"`
	Timestamp time.Time `json:"timestamp"`
}

func encodeBeacon(b *Beacon) ([]byte, error) {
	return json.Marshal(b)
}

func decodeBeacon(body []byte) (*Beacon, error) {
	if len(body) > maxBeaconSize {
		return nil, ocmerr.New(ocmerr.Validation, "discovery: beacon exceeds max size")
	}
	var b Beacon
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
