package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/claim"
	"github.com/musictopeople/ocm-go/crdt"
	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/ids"
	"github.com/musictopeople/ocm-go/memory"
	"github.com/musictopeople/ocm-go/network"
)

type memStore struct {
	memories map[uuid.UUID]*memory.SignedMemory
}

func newMemStore() *memStore { return &memStore{memories: make(map[uuid.UUID]*memory.SignedMemory)} }

func (s *memStore) PutMemory(m *memory.SignedMemory) error { s.memories[m.ID] = m; return nil }
func (s *memStore) GetMemory(id uuid.UUID) (*memory.SignedMemory, error) { return s.memories[id], nil }
func (s *memStore) ListMemories() ([]*memory.SignedMemory, error) {
	out := make([]*memory.SignedMemory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, m)
	}
	return out, nil
}
func (s *memStore) ListMemoriesByDID(did ids.DID) ([]*memory.SignedMemory, error) {
	var out []*memory.SignedMemory
	for _, m := range s.memories {
		if m.DID == did {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *memStore) PutClaimToken(*claim.ClaimToken) error                          { return nil }
func (s *memStore) GetClaimTokenByToken(string) (*claim.ClaimToken, error)          { return nil, nil }
func (s *memStore) UpdateClaimToken(*claim.ClaimToken) error                       { return nil }
func (s *memStore) ListTokensByOrg(ids.DID) ([]*claim.ClaimToken, error)           { return nil, nil }
func (s *memStore) PutProxy(*claim.ProxyMemory) error                             { return nil }
func (s *memStore) ListProxiesByOrg(ids.DID) ([]*claim.ProxyMemory, error)         { return nil, nil }
func (s *memStore) SearchProxiesByName(ids.DID, string) ([]*claim.ProxyMemory, error) {
	return nil, nil
}
func (s *memStore) CreateProxyRecordAtomic(m *memory.SignedMemory, p *claim.ProxyMemory, t *claim.ClaimToken) error {
	s.memories[m.ID] = m
	return nil
}
func (s *memStore) Close() error { return nil }

func newTestOrchestrator(t *testing.T, st *memStore) (*Orchestrator, *network.Transport) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	manager := crdt.NewManager(kp.DID.String(), crdt.LastWriterWins)
	transport, err := network.NewTransport(network.Config{
		Identity:     kp,
		LocalPeerID:  uuid.New(),
		SharedSecret: "test-secret",
		Store:        st,
		Manager:      manager,
	})
	require.NoError(t, err)
	return NewOrchestrator(transport, st, manager, crdt.LastWriterWins, nil), transport
}

// TestHashDiffSyncTransfersMissingMemories exercises spec.md §4.8's
// named hash-diff scenario: peer A has {h1,h2,h3}, peer B has
// {h2,h3,h4}; after one sync initiated by A, A holds all four (only A's
// store is checked here).
func TestHashDiffSyncTransfersMissingMemories(t *testing.T) {
	require := require.New(t)

	authorKP, err := crypto.GenerateKeyPair()
	require.NoError(err)

	stA := newMemStore()
	stB := newMemStore()

	m1 := memory.New(authorKP.DID, "note", `{"n":1}`)
	m2 := memory.New(authorKP.DID, "note", `{"n":2}`)
	m3 := memory.New(authorKP.DID, "note", `{"n":3}`)
	m4 := memory.New(authorKP.DID, "note", `{"n":4}`)

	require.NoError(stA.PutMemory(m1))
	require.NoError(stA.PutMemory(m2))
	require.NoError(stA.PutMemory(m3))

	require.NoError(stB.PutMemory(m2))
	require.NoError(stB.PutMemory(m3))
	require.NoError(stB.PutMemory(m4))

	orchA, transportA := newTestOrchestrator(t, stA)
	orchB, transportB := newTestOrchestrator(t, stB)
	_ = orchB

	ln, err := transportB.Listen("127.0.0.1:0")
	require.NoError(err)
	defer ln.Close()

	conn, err := transportA.Dial(ln.Addr().String())
	require.NoError(err)
	defer conn.Close()

	go func() {
		for {
			msg, err := network.ReadFrame(conn)
			if err != nil {
				return
			}
			transportA.SetSyncHandler(orchA)
			orchA.HandleSyncMessage(conn, msg)
		}
	}()

	require.NoError(orchA.SyncWithPeer(conn, transportB.LocalPeerID.String()))

	require.Eventually(func() bool {
		ms, _ := stA.ListMemories()
		return len(ms) == 4
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDetectConflictsReportsContentMismatch(t *testing.T) {
	require := require.New(t)
	authorKP, err := crypto.GenerateKeyPair()
	require.NoError(err)

	st := newMemStore()
	m1 := memory.New(authorKP.DID, "note", `{"n":1}`)
	m2 := memory.New(authorKP.DID, "note", `{"n":2}`)
	m2.Timestamp = m1.Timestamp.Add(time.Second)
	require.NoError(st.PutMemory(m1))
	require.NoError(st.PutMemory(m2))

	orch, _ := newTestOrchestrator(t, st)
	conflicts, err := orch.DetectConflicts()
	require.NoError(err)
	require.Len(conflicts, 1)
}

func TestSyncWithPeerIsAtMostOneConcurrentPerPeer(t *testing.T) {
	require := require.New(t)
	st := newMemStore()
	orch, transportB := newTestOrchestrator(t, st)

	ln, err := transportB.Listen("127.0.0.1:0")
	require.NoError(err)
	defer ln.Close()

	conn, err := orch.transport.Dial(ln.Addr().String())
	require.NoError(err)
	defer conn.Close()

	peerID := transportB.LocalPeerID.String()
	guard, acquired := orch.tryAcquire(peerID)
	require.True(acquired)
	defer guard.release()

	require.NoError(orch.SyncWithPeer(conn, peerID))
	ms, _ := st.ListMemories()
	require.Len(ms, 0)
}

func TestStatisticsReportsTrackedMemoriesAndConflicts(t *testing.T) {
	require := require.New(t)
	authorKP, err := crypto.GenerateKeyPair()
	require.NoError(err)

	st := newMemStore()
	m1 := memory.New(authorKP.DID, "note", `{"n":1}`)
	m2 := memory.New(authorKP.DID, "note", `{"n":2}`)
	m2.Timestamp = m1.Timestamp.Add(time.Second)
	require.NoError(st.PutMemory(m1))
	require.NoError(st.PutMemory(m2))

	orch, _ := newTestOrchestrator(t, st)
	stats, err := orch.Statistics()
	require.NoError(err)
	require.Equal(2, stats.TotalMemories)
	require.Equal(1, stats.UnresolvedConflicts)
	require.Equal(0, stats.TotalPeersSynced)
	require.Equal(0, stats.ActiveSyncOperations)
	require.Empty(stats.LastSyncTimes)
}
