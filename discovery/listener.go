// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package discovery

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/network"
	"github.com/musictopeople/ocm-go/ocmerr"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// Listener broadcasts this node's presence and ingests beacons from other
// nodes on the same LAN into a shared network.PeerTable.
type Listener struct {
	identity      *crypto.KeyPair
	localPeerID   uuid.UUID
	advertiseAddr string
	advertisePort uint16

	conn  *net.UDPConn
	peers *network.PeerTable
	log   logging.Logger
}

type Config struct {
	Identity      *crypto.KeyPair
	LocalPeerID   uuid.UUID
	AdvertiseAddr string
	AdvertisePort uint16
	Peers         *network.PeerTable
	Logger        logging.Logger
}

// Listen opens a UDP socket on discoveryAddr (e.g. "0.0.0.0:9652") for
// both broadcasting and receiving beacons.
func Listen(discoveryAddr string, cfg Config) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", discoveryAddr)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "discovery: resolve udp addr")
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "discovery: listen udp")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoLog
	}
	return &Listener{
		identity:      cfg.Identity,
		localPeerID:   cfg.LocalPeerID,
		advertiseAddr: cfg.AdvertiseAddr,
		advertisePort: cfg.AdvertisePort,
		conn:          conn,
		peers:         cfg.Peers,
		log:           logger.Named("discovery"),
	}, nil
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

// Run drives both the inbound beacon-ingestion loop and the periodic
// outbound broadcast until ctx is cancelled.
func (l *Listener) Run(ctx context.Context, broadcastAddr string) {
	go l.receiveLoop(ctx)
	l.broadcastLoop(ctx, broadcastAddr)
}

func (l *Listener) receiveLoop(ctx context.Context) {
	buf := make([]byte, maxBeaconSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}

		beacon, err := decodeBeacon(buf[:n])
		if err != nil {
			l.log.Debug("malformed beacon", zap.Error(err))
			continue
		}
		if beacon.PeerID == l.localPeerID {
			continue
		}

		did := beacon.DID
		l.peers.Upsert(&network.PeerInfo{
			PeerID:   beacon.PeerID.String(),
			Address:  beacon.Address,
			Port:     beacon.Port,
			LastSeen: time.Now().UTC(),
			DID:      &did,
		})
	}
}

func (l *Listener) broadcastLoop(ctx context.Context, broadcastAddr string) {
	ticker := time.NewTicker(BeaconInterval)
	defer ticker.Stop()

	l.broadcastOnce(broadcastAddr)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.broadcastOnce(broadcastAddr)
		}
	}
}

func (l *Listener) broadcastOnce(broadcastAddr string) {
	dst, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		l.log.Debug("resolve broadcast addr failed", zap.Error(err))
		return
	}

	beacon := &Beacon{
		PeerID:    l.localPeerID,
		DID:       l.identity.DID,
		Address:   l.advertiseAddr,
		Port:      l.advertisePort,
		Timestamp: time.Now().UTC(),
	}
	body, err := encodeBeacon(beacon)
	if err != nil {
		l.log.Debug("encode beacon failed", zap.Error(err))
		return
	}

	if _, err := l.conn.WriteToUDP(body, dst); err != nil {
		l.log.Debug("broadcast beacon failed", zap.Error(err))
	}
}
