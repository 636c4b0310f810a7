// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network implements the length-framed authenticated transport
// (spec component C6): wire framing, HMAC authentication, nonce replay
// protection, per-IP rate limiting and connection admission.
package network

import (
	"time"

	"github.com/google/uuid"
)

// MessageType enumerates the wire message kinds. JSON tags are stable
// across versions per spec.md §6.
type MessageType string

const (
	Handshake     MessageType = "Handshake"
	MemorySync    MessageType = "MemorySync"
	MemoryRequest MessageType = "MemoryRequest"
	PeerDiscovery MessageType = "PeerDiscovery"
	Ping          MessageType = "Ping"
	Pong          MessageType = "Pong"
	// SyncRequest and SyncResponse carry the hash-diff exchange driven by
	// the sync orchestrator (spec component C8, spec.md §4.8).
	SyncRequest  MessageType = "SyncRequest"
	SyncResponse MessageType = "SyncResponse"
)

// MaxMessageSize is the maximum permitted frame body, in bytes.
const MaxMessageSize = 1 << 20 // 1 MiB

// NetworkMessage is the envelope carried by every frame.
type NetworkMessage struct {
	MessageType MessageType `json:"message_type"`
	Payload     string      `json:"payload"`
	FromPeer    uuid.UUID   `json:"from_peer"`
	Timestamp   time.Time   `json:"timestamp"`
	Nonce       string      `json:"nonce"`
	HMAC        string      `json:"hmac"`
}
