// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/json"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/network/throttling"
	"github.com/musictopeople/ocm-go/ocmerr"
	"github.com/musictopeople/ocm-go/store"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// Transport is the C6 aggregate. Its five admission/bookkeeping units --
// peer table, rate limiter, replay cache, connection tracker, and the
// durable store reached through them -- are deliberately independent
// locks; nothing here ever holds more than one at a time, so a slow store
// write can't stall admission of an unrelated connection (spec.md §9).
type Transport struct {
	Identity     *crypto.KeyPair
	LocalPeerID  uuid.UUID
	SharedSecret string

	Store   store.Store
	Manager *crdt.Manager
	Peers   *PeerTable

	limiter *throttling.RateLimiter
	replay  *ReplayCache
	conns   *throttling.ConnectionTracker

	metrics     *metrics
	log         logging.Logger
	syncHandler SyncHandler
}

// SyncHandler receives SyncRequest/SyncResponse frames the transport
// itself doesn't interpret -- the sync orchestrator (C8) registers
// itself here to keep network free of an import on the sync package.
type SyncHandler interface {
	HandleSyncMessage(conn net.Conn, msg *NetworkMessage)
}

// SetSyncHandler wires the sync orchestrator into frame dispatch.
func (t *Transport) SetSyncHandler(h SyncHandler) {
	t.syncHandler = h
}

// Config collects the dependencies Transport needs; everything else
// (rate limits, replay window, connection caps) takes spec.md defaults.
type Config struct {
	Identity     *crypto.KeyPair
	LocalPeerID  uuid.UUID
	SharedSecret string
	Store        store.Store
	Manager      *crdt.Manager
	Logger       logging.Logger
	Registerer   prometheus.Registerer
	Namespace    string
}

func NewTransport(cfg Config) (*Transport, error) {
	if cfg.SharedSecret == "" {
		cfg.SharedSecret = DevSharedSecret
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoLog
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "ocm"
	}

	m, err := newMetrics(cfg.Namespace, cfg.Registerer)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "network: register metrics")
	}

	return &Transport{
		Identity:     cfg.Identity,
		LocalPeerID:  cfg.LocalPeerID,
		SharedSecret: cfg.SharedSecret,
		Store:        cfg.Store,
		Manager:      cfg.Manager,
		Peers:        NewPeerTable(),
		limiter:      throttling.NewRateLimiter(throttling.DefaultRateLimitPerMinute, time.Minute),
		replay:       NewReplayCache(MaxMessageAge),
		conns:        throttling.NewConnectionTracker(throttling.DefaultMaxConnectionsPerIP),
		metrics:      m,
		log:          cfg.Logger.Named("network"),
	}, nil
}

// Listen accepts inbound connections on addr until the listener is closed
// or ctx-driven shutdown closes it from the caller's side; each accepted
// connection is handled on its own goroutine.
func (t *Transport) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "network: listen")
	}
	go t.acceptLoop(ln)
	return ln, nil
}

func (t *Transport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			t.metrics.acceptFailed.Inc()
			return
		}
		go t.HandleConnection(conn)
	}
}

// Dial opens an outbound connection to a peer's transport address.
func (t *Transport) Dial(addr string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Network, err, "network: dial")
	}
	return conn, nil
}

// Send authenticates and frames payload as msgType, writing it to conn.
func (t *Transport) Send(conn net.Conn, msgType MessageType, payload string) error {
	msg, err := NewMessage(t.SharedSecret, msgType, payload, t.LocalPeerID)
	if err != nil {
		return err
	}
	return WriteFrame(conn, msg)
}

// Handshake sends this node's identity over conn as the first message of
// a new connection (spec.md §4.6 step 1).
func (t *Transport) Handshake(conn net.Conn, advertiseAddr string, advertisePort uint16) error {
	payload := HandshakePayload{
		PeerID:  t.LocalPeerID,
		DID:     t.Identity.DID,
		Address: advertiseAddr,
		Port:    advertisePort,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Network, err, "network: marshal handshake")
	}
	return t.Send(conn, Handshake, string(body))
}

// RequestMemories asks the peer on conn for did's most recent memories.
// limit <= 0 asks for the spec default of 10.
func (t *Transport) RequestMemories(conn net.Conn, did ids.DID, limit int) error {
	body, err := json.Marshal(MemoryRequestPayload{DID: did, Limit: limit})
	if err != nil {
		return ocmerr.Wrap(ocmerr.Network, err, "network: marshal memory_request")
	}
	return t.Send(conn, MemoryRequest, string(body))
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
