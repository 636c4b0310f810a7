// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/musictopeople/ocm-go/claim"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
	"github.com/musictopeople/ocm-go/ocmerr"
)

// Key prefixes for the single flat pebble keyspace. One mutex serializes
// every operation against the underlying handle, matching spec.md §4.3's
// "concurrent access is serialized via an internal mutex; callers see
// linearizable operations."
const (
	prefixMemory       = "memory/"
	prefixMemoryByDID  = "memory_by_did/"
	prefixClaimToken   = "claim_token/"
	prefixTokenByCode  = "claim_token_by_code/"
	prefixProxy        = "proxy/"
	prefixProxyByOrg   = "proxy_by_org/"
)

// PebbleStore implements Store over a single *pebble.DB handle guarded by
// one mutex, the same "one connection, one lock" shape as the teacher's
// database/manager.versionedDatabase wraps a single handle.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: open pebble")
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Close(); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: close pebble")
	}
	return nil
}

// --- memories ---

func memoryKey(id uuid.UUID) []byte {
	return []byte(prefixMemory + id.String())
}

// memoryByDIDKey sorts lexicographically by the inverted nanosecond
// timestamp so a forward scan yields timestamp-descending order, matching
// ListMemoriesByDID's contract.
func memoryByDIDKey(did ids.DID, m *memory.SignedMemory) []byte {
	inverted := invertedNanos(m.Timestamp.UnixNano())
	return []byte(fmt.Sprintf("%s%s/%020d/%s", prefixMemoryByDID, did, inverted, m.ID))
}

func invertedNanos(nanos int64) uint64 {
	return ^uint64(nanos)
}

func (s *PebbleStore) PutMemory(m *memory.SignedMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(m)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal memory")
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(memoryKey(m.ID), b, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: put memory")
	}
	if err := batch.Set(memoryByDIDKey(m.DID, m), []byte(m.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: index memory by did")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: commit memory batch")
	}
	return nil
}

func (s *PebbleStore) GetMemory(id uuid.UUID) (*memory.SignedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getMemoryLocked(id)
}

func (s *PebbleStore) getMemoryLocked(id uuid.UUID) (*memory.SignedMemory, error) {
	val, closer, err := s.db.Get(memoryKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: get memory")
	}
	defer closer.Close()

	var m memory.SignedMemory
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: unmarshal memory")
	}
	return &m, nil
}

func (s *PebbleStore) ListMemories() ([]*memory.SignedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixMemory),
		UpperBound: prefixUpperBound(prefixMemory),
	})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: iterate memories")
	}
	defer iter.Close()

	var out []*memory.SignedMemory
	for iter.First(); iter.Valid(); iter.Next() {
		if bytes.HasPrefix(iter.Key(), []byte(prefixMemoryByDID)) {
			continue
		}
		var m memory.SignedMemory
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: unmarshal memory")
		}
		out = append(out, &m)
	}
	return out, nil
}

func (s *PebbleStore) ListMemoriesByDID(did ids.DID) ([]*memory.SignedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := fmt.Sprintf("%s%s/", prefixMemoryByDID, did)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: iterate memories by did")
	}
	defer iter.Close()

	var out []*memory.SignedMemory
	for iter.First(); iter.Valid(); iter.Next() {
		idStr := string(iter.Value())
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		m, err := s.getMemoryLocked(id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			out = append(out, m)
		}
	}
	// the secondary index is already ordered timestamp-descending by key
	// construction; stable-sort defensively in case of clock ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// --- claim tokens ---

func claimTokenKey(id uuid.UUID) []byte { return []byte(prefixClaimToken + id.String()) }
func tokenByCodeKey(code string) []byte { return []byte(prefixTokenByCode + code) }

func (s *PebbleStore) PutClaimToken(t *claim.ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putClaimTokenLocked(t)
}

func (s *PebbleStore) putClaimTokenLocked(t *claim.ClaimToken) error {
	b, err := json.Marshal(t)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal claim token")
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(claimTokenKey(t.ID), b, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: put claim token")
	}
	if err := batch.Set(tokenByCodeKey(t.Token), []byte(t.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: index claim token by code")
	}
	orgKey := []byte(fmt.Sprintf("%s%s/%s", "claim_token_by_org/", t.OrganizationDID, t.ID))
	if err := batch.Set(orgKey, []byte(t.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: index claim token by org")
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetClaimTokenByToken(token string) (*claim.ClaimToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idBytes, closer, err := s.db.Get(tokenByCodeKey(token))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: lookup claim token by code")
	}
	id, parseErr := uuid.Parse(string(idBytes))
	closer.Close()
	if parseErr != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, parseErr, "store: parse claim token id")
	}

	val, closer2, err := s.db.Get(claimTokenKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: get claim token")
	}
	defer closer2.Close()

	var t claim.ClaimToken
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: unmarshal claim token")
	}
	return &t, nil
}

func (s *PebbleStore) UpdateClaimToken(t *claim.ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putClaimTokenLocked(t)
}

func (s *PebbleStore) ListTokensByOrg(did ids.DID) ([]*claim.ClaimToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := fmt.Sprintf("claim_token_by_org/%s/", did)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: iterate tokens by org")
	}
	defer iter.Close()

	var out []*claim.ClaimToken
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := uuid.Parse(string(iter.Value()))
		if err != nil {
			continue
		}
		val, closer, err := s.db.Get(claimTokenKey(id))
		if err != nil {
			continue
		}
		var t claim.ClaimToken
		if err := json.Unmarshal(val, &t); err == nil {
			out = append(out, &t)
		}
		closer.Close()
	}
	return out, nil
}

// --- proxies ---

func proxyKey(id uuid.UUID) []byte { return []byte(prefixProxy + id.String()) }

func (s *PebbleStore) PutProxy(p *claim.ProxyMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putProxyLocked(p)
}

func (s *PebbleStore) putProxyLocked(p *claim.ProxyMemory) error {
	b, err := json.Marshal(p)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal proxy")
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(proxyKey(p.ID), b, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: put proxy")
	}
	orgKey := []byte(fmt.Sprintf("%s%s/%s", prefixProxyByOrg, p.OrganizationDID, p.ID))
	if err := batch.Set(orgKey, []byte(p.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: index proxy by org")
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) ListProxiesByOrg(did ids.DID) ([]*claim.ProxyMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listProxiesByOrgLocked(did)
}

func (s *PebbleStore) listProxiesByOrgLocked(did ids.DID) ([]*claim.ProxyMemory, error) {
	prefix := fmt.Sprintf("%s%s/", prefixProxyByOrg, did)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Storage, err, "store: iterate proxies by org")
	}
	defer iter.Close()

	var out []*claim.ProxyMemory
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := uuid.Parse(string(iter.Value()))
		if err != nil {
			continue
		}
		val, closer, err := s.db.Get(proxyKey(id))
		if err != nil {
			continue
		}
		var p claim.ProxyMemory
		if err := json.Unmarshal(val, &p); err == nil {
			out = append(out, &p)
		}
		closer.Close()
	}
	return out, nil
}

// escapeLikePattern escapes \, %, _ before the caller treats pattern as a
// %...%-wrapped substring match, per spec.md §4.3.
func escapeLikePattern(pattern string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(pattern)
}

// likeToRegexp turns an escaped LIKE-style pattern (with \-escaped
// metacharacters) into a case-insensitive substring regexp, since pebble
// has no SQL engine to push the LIKE down to.
func likeToRegexp(escaped string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)")
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c == '\\' && i+1 < len(escaped) {
			b.WriteString(regexp.QuoteMeta(string(escaped[i+1])))
			i++
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(c)))
	}
	return regexp.Compile(b.String())
}

func (s *PebbleStore) SearchProxiesByName(did ids.DID, pattern string) ([]*claim.ProxyMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listProxiesByOrgLocked(did)
	if err != nil {
		return nil, err
	}

	re, err := likeToRegexp(escapeLikePattern(pattern))
	if err != nil {
		return nil, ocmerr.Wrap(ocmerr.Validation, err, "store: compile search pattern")
	}

	var out []*claim.ProxyMemory
	for _, p := range all {
		if re.MatchString(p.ProxyForName) {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreateProxyRecordAtomic persists the signed memory, claim token, and
// proxy record in a single committed batch -- resolving the spec.md §9
// open question about create_proxy_record's non-atomicity (DESIGN.md).
func (s *PebbleStore) CreateProxyRecordAtomic(m *memory.SignedMemory, p *claim.ProxyMemory, t *claim.ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, err := json.Marshal(m)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal memory")
	}
	tb, err := json.Marshal(t)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal claim token")
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: marshal proxy")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(memoryKey(m.ID), mb, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch memory")
	}
	if err := batch.Set(memoryByDIDKey(m.DID, m), []byte(m.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch memory index")
	}
	if err := batch.Set(claimTokenKey(t.ID), tb, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch claim token")
	}
	if err := batch.Set(tokenByCodeKey(t.Token), []byte(t.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch claim token index")
	}
	orgTokenKey := []byte(fmt.Sprintf("claim_token_by_org/%s/%s", t.OrganizationDID, t.ID))
	if err := batch.Set(orgTokenKey, []byte(t.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch claim token org index")
	}
	if err := batch.Set(proxyKey(p.ID), pb, nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch proxy")
	}
	orgProxyKey := []byte(fmt.Sprintf("%s%s/%s", prefixProxyByOrg, p.OrganizationDID, p.ID))
	if err := batch.Set(orgProxyKey, []byte(p.ID.String()), nil); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: batch proxy org index")
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return ocmerr.Wrap(ocmerr.Storage, err, "store: commit proxy record batch")
	}
	return nil
}

// prefixUpperBound returns the exclusive upper bound for a forward scan
// over every key with the given prefix.
func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			out := make([]byte, i+1)
			copy(out, b[:i+1])
			out[i]++
			return out
		}
	}
	return nil
}

var _ Store = (*PebbleStore)(nil)
