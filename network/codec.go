// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/musictopeople/ocm-go/ocmerr"
)

// WriteFrame writes msg as a 4-byte big-endian length prefix followed by
// its UTF-8 JSON body.
func WriteFrame(w io.Writer, msg *NetworkMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Network, err, "network: marshal frame")
	}
	if len(body) > MaxMessageSize {
		return ocmerr.New(ocmerr.Validation, "network: outbound frame exceeds max message size")
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return ocmerr.Wrap(ocmerr.Network, err, "network: write length prefix")
	}
	if _, err := w.Write(body); err != nil {
		return ocmerr.Wrap(ocmerr.Network, err, "network: write frame body")
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A length exceeding
// MaxMessageSize is rejected before any body bytes are read, so the caller
// never allocates on an attacker-controlled size.
func ReadFrame(r io.Reader) (*NetworkMessage, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "network: read length prefix")
	}
	length := binary.BigEndian.Uint32(lenPrefix[:])
	if length > MaxMessageSize {
		return nil, ocmerr.New(ocmerr.Network, "network: frame exceeds max message size")
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "network: read frame body")
	}

	var msg NetworkMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, ocmerr.Wrap(ocmerr.Validation, err, "network: decode frame body")
	}
	return &msg, nil
}
