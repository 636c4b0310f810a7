// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package directory implements a best-effort PLC-style DID directory
// client: an HTTP lookup of a DID's current verification method, falling
// back to a local pebble-backed cache when the network is unavailable.
// spec.md §1 scopes a hosted directory service out, but still expects
// "best-effort cache with offline fallback" in every node (§7: "DID
// resolution failures fall back to locally cached verification; sync
// continues").
package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/ocmerr"
	"github.com/musictopeople/ocm-go/utils/logging"
)

// VerificationMethod is the subset of a PLC directory document this node
// needs: the multibase-encoded Ed25519 public key backing did's signatures.
type VerificationMethod struct {
	DID                ids.DID `json:"did"`
	MultibasePublicKey string  `json:"multibase_public_key"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Client resolves DIDs against baseURL, caching every successful lookup
// in a pebble-backed store so later resolutions survive the directory
// being unreachable.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache *pebble.DB

	log logging.Logger
}

type Config struct {
	BaseURL   string
	CacheDir  string
	Timeout   time.Duration
	Logger    logging.Logger
}

func Open(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NoLog
	}

	db, err := pebble.Open(cfg.CacheDir, &pebble.Options{})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "directory: open cache")
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		cache:   db,
		log:     log.Named("directory"),
	}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Close()
}

// Resolve looks did up against the configured directory; on any failure
// (network error, non-200, malformed body, or an empty baseURL) it falls
// back to whatever verification method was last cached for did.
func (c *Client) Resolve(ctx context.Context, did ids.DID) (*VerificationMethod, error) {
	vm, err := c.fetch(ctx, did)
	if err != nil {
		c.log.Debug("directory lookup failed, falling back to cache", zap.String("did", did.String()), zap.Error(err))
		return c.readCache(did)
	}
	if err := c.writeCache(vm); err != nil {
		c.log.Debug("directory cache write failed", zap.Error(err))
	}
	return vm, nil
}

func (c *Client) fetch(ctx context.Context, did ids.DID) (*VerificationMethod, error) {
	if c.baseURL == "" {
		return nil, ocmerr.New(ocmerr.DirectoryLookup, "directory: no base url configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+did.String(), nil)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ocmerr.Newf(ocmerr.DirectoryLookup, "directory: unexpected status %d", resp.StatusCode)
	}

	var vm VerificationMethod
	if err := json.NewDecoder(resp.Body).Decode(&vm); err != nil {
		return nil, ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: decode response")
	}
	vm.UpdatedAt = time.Now().UTC()
	return &vm, nil
}

func (c *Client) readCache(did ids.DID) (*VerificationMethod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, closer, err := c.cache.Get([]byte(did.String()))
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: no cached verification method")
	}
	defer closer.Close()

	var vm VerificationMethod
	if err := json.Unmarshal(raw, &vm); err != nil {
		return nil, ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: decode cached verification method")
	}
	return &vm, nil
}

func (c *Client) writeCache(vm *VerificationMethod) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(vm)
	if err != nil {
		return ocmerr.Wrap(ocmerr.DirectoryLookup, err, "directory: marshal verification method")
	}
	if err := c.cache.Set([]byte(vm.DID.String()), raw, pebble.Sync); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "directory: cache set")
	}
	return nil
}
