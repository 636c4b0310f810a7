// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/network"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// ConnectDiscoveredPeers dials and handshakes every peer in peers that
// isn't already known to transport, per spec.md §4.7's
// connect_discovered_peers operation. It returns the addresses it
// successfully connected to.
func ConnectDiscoveredPeers(transport *network.Transport, peers []*network.PeerInfo, log logging.Logger) []string {
	if log == nil {
		log = logging.NoLog
	}

	var connected []string
	for _, p := range peers {
		if _, already := transport.Peers.Get(p.PeerID); already {
			continue
		}

		addr := net.JoinHostPort(p.Address, strconv.Itoa(int(p.Port)))
		conn, err := transport.Dial(addr)
		if err != nil {
			log.Debug("dial discovered peer failed", zap.String("addr", addr), zap.Error(err))
			continue
		}

		if err := transport.Handshake(conn, p.Address, p.Port); err != nil {
			log.Debug("handshake with discovered peer failed", zap.String("addr", addr), zap.Error(err))
			conn.Close()
			continue
		}

		transport.Peers.Upsert(&network.PeerInfo{
			PeerID:   p.PeerID,
			Address:  p.Address,
			Port:     p.Port,
			LastSeen: time.Now().UTC(),
			DID:      p.DID,
		})
		connected = append(connected, addr)
		conn.Close()
	}
	return connected
}
