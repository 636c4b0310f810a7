package claim

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
)

// memStore is a minimal in-memory Store used only to exercise Engine.
type memStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*memory.SignedMemory
	tokens   map[string]*ClaimToken
	proxies  []*ProxyMemory
}

func newMemStore() *memStore {
	return &memStore{
		memories: make(map[uuid.UUID]*memory.SignedMemory),
		tokens:   make(map[string]*ClaimToken),
	}
}

func (s *memStore) GetClaimTokenByToken(token string) (*ClaimToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token], nil
}

func (s *memStore) UpdateClaimToken(t *ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
	return nil
}

func (s *memStore) GetMemory(id uuid.UUID) (*memory.SignedMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memories[id], nil
}

func (s *memStore) PutMemory(m *memory.SignedMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = m
	return nil
}

func (s *memStore) CreateProxyRecordAtomic(m *memory.SignedMemory, p *ProxyMemory, t *ClaimToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = m
	s.tokens[t.Token] = t
	s.proxies = append(s.proxies, p)
	return nil
}

func (s *memStore) ListTokensByOrg(did ids.DID) ([]*ClaimToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ClaimToken
	for _, t := range s.tokens {
		if t.OrganizationDID == did {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) ListProxiesByOrg(did ids.DID) ([]*ProxyMemory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ProxyMemory
	for _, p := range s.proxies {
		if p.OrganizationDID == did {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestClaimFlowEndToEnd(t *testing.T) {
	require := require.New(t)

	org, err := crypto.GenerateKeyPair()
	require.NoError(err)
	parent, err := crypto.GenerateKeyPair()
	require.NoError(err)

	s := newMemStore()
	e := NewEngine(s)

	proxy, token, err := e.CreateProxyRecord(org, "Jamie Smith", "", `{"first_name":"Jamie"}`)
	require.NoError(err)
	require.Equal("Jamie Smith", proxy.ProxyForName)
	require.True(len(token.Token) == len(tokenPrefix)+tokenCodeChars)

	claimed, err := e.ClaimProxyRecord(token.Token, parent)
	require.NoError(err)
	require.Equal(parent.DID, claimed.DID)
	require.Equal(proxy.MemoryData, claimed.MemoryData)

	stored, _ := s.GetClaimTokenByToken(token.Token)
	require.NotNil(stored.ClaimedByDID)
	require.Equal(parent.DID, *stored.ClaimedByDID)

	_, err = e.ClaimProxyRecord(token.Token, parent)
	require.ErrorIs(err, ErrAlreadyClaimed)
}

func TestCreateProxyRecordAssignsIndependentID(t *testing.T) {
	require := require.New(t)

	org, err := crypto.GenerateKeyPair()
	require.NoError(err)

	e := NewEngine(newMemStore())
	proxy, token, err := e.CreateProxyRecord(org, "Jamie Smith", "", `{"first_name":"Jamie"}`)
	require.NoError(err)
	require.NotEqual(token.MemoryID, proxy.ID)
}

func TestEngineStatistics(t *testing.T) {
	require := require.New(t)

	org, err := crypto.GenerateKeyPair()
	require.NoError(err)
	parent, err := crypto.GenerateKeyPair()
	require.NoError(err)

	s := newMemStore()
	e := NewEngine(s)

	_, firstToken, err := e.CreateProxyRecord(org, "Jamie Smith", "", `{"first_name":"Jamie"}`)
	require.NoError(err)
	_, _, err = e.CreateProxyRecord(org, "Alex Rivera", "", `{"first_name":"Alex"}`)
	require.NoError(err)

	_, err = e.ClaimProxyRecord(firstToken.Token, parent)
	require.NoError(err)

	stats, err := e.Statistics(org.DID)
	require.NoError(err)
	require.Equal(2, stats.TotalProxyRecords)
	require.Equal(2, stats.TotalTokensCreated)
	require.Equal(1, stats.TokensClaimed)
	require.Equal(0, stats.TokensExpired)
	require.Equal(1, stats.TokensActive)
	require.InDelta(50.0, stats.ClaimRate(), 0.001)
}
