// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package node is the composition root: it wires crypto identity, store,
// CRDT manager, transport, discovery, sync orchestrator and directory
// client into one process, and drives their lifecycle from a single
// shutdown context.
package node

import (
	"context"
	"fmt"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/config"
	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/directory"
	"github.com/musictopeople/ocm-go/discovery"
	"github.com/musictopeople/ocm-go/network"
	"github.com/musictopeople/ocm-go/store"
	ocmsync "github.com/musictopeople/ocm-go/sync"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// Node owns every long-lived component and the goroutines that drive
// them. Its shutdown is idempotent, matching the teacher's
// shutdownOnce/Shutdown(exitCode) pattern.
type Node struct {
	Config *config.Config

	Identity  *crypto.KeyPair
	Store     *store.PebbleStore
	Manager   *crdt.Manager
	Transport *network.Transport
	Sync      *ocmsync.Orchestrator
	Directory *directory.Client
	Discovery *discovery.Listener
	PortMap   *discovery.PortMapper

	listener interface{ Close() error }
	log      logging.Logger
	logs     logging.Factory

	cancel       context.CancelFunc
	wg           stdsync.WaitGroup
	shutdownOnce stdsync.Once
	done         chan struct{}
}

// New wires every component from cfg but does not start any network I/O;
// call Start to begin listening, broadcasting and syncing.
func New(cfg *config.Config, identity *crypto.KeyPair) (*Node, error) {
	logs := logging.NewFactory(cfg.Logging)
	log, err := logs.Make("node")
	if err != nil {
		return nil, fmt.Errorf("node: build logger: %w", err)
	}

	st, err := store.OpenPebbleStore(filepath.Join(cfg.DataDir, "store"))
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	manager := crdt.NewManager(identity.DID.String(), crdt.LastWriterWins)

	transport, err := network.NewTransport(network.Config{
		Identity:     identity,
		LocalPeerID:  uuid.New(),
		SharedSecret: cfg.Network.SharedSecret,
		Store:        st,
		Manager:      manager,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("node: build transport: %w", err)
	}

	orch := ocmsync.NewOrchestrator(transport, st, manager, crdt.LastWriterWins, log)

	var dirClient *directory.Client
	if cfg.Directory.URL != "" {
		dirClient, err = directory.Open(directory.Config{
			BaseURL:  cfg.Directory.URL,
			CacheDir: filepath.Join(cfg.DataDir, "directory-cache"),
			Timeout:  cfg.Directory.Timeout,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("node: build directory client: %w", err)
		}
	}

	n := &Node{
		Config:    cfg,
		Identity:  identity,
		Store:     st,
		Manager:   manager,
		Transport: transport,
		Sync:      orch,
		Directory: dirClient,
		log:       log,
		logs:      logs,
		done:      make(chan struct{}),
	}

	if cfg.Network.DiscoveryEnabled {
		disc, err := discovery.Listen(fmt.Sprintf(":%d", cfg.Network.DiscoveryPort), discovery.Config{
			Identity:      identity,
			LocalPeerID:   transport.LocalPeerID,
			AdvertiseAddr: cfg.Network.AdvertiseAddr,
			AdvertisePort: cfg.Network.ListenPort,
			Peers:         transport.Peers,
			Logger:        log,
		})
		if err != nil {
			return nil, fmt.Errorf("node: start discovery listener: %w", err)
		}
		n.Discovery = disc

		if cfg.Network.NATTraversal {
			if pm, err := discovery.DiscoverGateway(log); err != nil {
				log.Debug("nat traversal unavailable", zap.Error(err))
			} else {
				n.PortMap = pm
			}
		}
	}

	return n, nil
}

// Start launches the accept loop, and (if discovery is enabled) the
// discovery listener, periodic broadcaster and peer-connector, plus a
// periodic sync ticker, each as an independent goroutine observing ctx.
// It returns once the listener is up; the goroutines keep running until
// ctx is cancelled or Stop is called.
func (n *Node) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	addr := fmt.Sprintf("%s:%d", n.Config.Network.ListenHost, n.Config.Network.ListenPort)
	ln, err := n.Transport.Listen(addr)
	if err != nil {
		cancel()
		return fmt.Errorf("node: listen: %w", err)
	}
	n.listener = ln
	n.log.Info("listening", zap.String("addr", addr))

	if n.Discovery != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.Discovery.Run(runCtx, n.Config.Network.BroadcastAddr)
		}()

		n.wg.Add(1)
		go n.connectDiscoveredPeersLoop(runCtx)
	}

	n.wg.Add(1)
	go n.syncTickerLoop(runCtx)

	return nil
}

func (n *Node) connectDiscoveredPeersLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(discovery.BeaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			connected := discovery.ConnectDiscoveredPeers(n.Transport, n.Transport.Peers.All(), n.log)
			if len(connected) > 0 {
				n.log.Debug("connected discovered peers", zap.Int("count", len(connected)))
			}
		}
	}
}

func (n *Node) syncTickerLoop(ctx context.Context) {
	defer n.wg.Done()
	interval := n.Config.Network.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range n.Transport.Peers.All() {
				addr := fmt.Sprintf("%s:%d", p.Address, p.Port)
				conn, err := n.Transport.Dial(addr)
				if err != nil {
					continue
				}
				if err := n.Sync.SyncWithPeer(conn, p.PeerID); err != nil {
					n.log.Debug("sync_with_peer failed", zap.String("peer", p.PeerID), zap.Error(err))
				}
				conn.Close()
			}
		}
	}
}

// Stop shuts the node down exactly once: cancels every background
// goroutine's context, closes the listener and discovery socket, waits
// for goroutines to exit, and closes the store.
func (n *Node) Stop() {
	n.shutdownOnce.Do(n.stop)
}

func (n *Node) stop() {
	n.log.Info("shutting down node")

	if n.cancel != nil {
		n.cancel()
	}
	if n.listener != nil {
		_ = n.listener.Close()
	}
	if n.Discovery != nil {
		_ = n.Discovery.Close()
	}

	n.wg.Wait()

	if n.Directory != nil {
		if err := n.Directory.Close(); err != nil {
			n.log.Debug("error closing directory cache", zap.Error(err))
		}
	}
	if err := n.Store.Close(); err != nil {
		n.log.Warn("error during store shutdown", zap.Error(err))
	}

	n.logs.Close()
	close(n.done)
	n.log.Info("finished node shutdown")
}

// Done is closed once Stop has fully completed.
func (n *Node) Done() <-chan struct{} { return n.done }
