package store

import (
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/claim"
	"github.com/musictopeople/ocm-go/memory"
)

func newTestStore(t *testing.T) *PebbleStore {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	return &PebbleStore{db: db}
}

func TestPutGetMemoryRoundTrip(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	defer s.Close()

	m := memory.New("did:plc:abc", "individual", `{"a":1}`)
	require.NoError(s.PutMemory(m))

	got, err := s.GetMemory(m.ID)
	require.NoError(err)
	require.NotNil(got)
	require.Equal(m.ContentHash, got.ContentHash)
}

func TestGetMemoryNotFoundReturnsNilNoError(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	defer s.Close()

	got, err := s.GetMemory(uuid.New())
	require.NoError(err)
	require.Nil(got)
}

func TestListMemoriesByDIDOrderedDescending(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	defer s.Close()

	did := memory.New("did:plc:abc", "individual", "{}").DID
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		m := memory.New(did, "individual", `{"n":1}`)
		require.NoError(s.PutMemory(m))
		ids = append(ids, m.ID)
	}

	list, err := s.ListMemoriesByDID(did)
	require.NoError(err)
	require.Len(list, 3)
	for i := 1; i < len(list); i++ {
		require.False(list[i].Timestamp.After(list[i-1].Timestamp))
	}
}

func TestSearchProxiesByNameEscapesWildcards(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	defer s.Close()

	org := claim.ProxyMemory{ID: uuid.New(), ProxyForName: "100%_match", OrganizationDID: "did:plc:org"}
	require.NoError(s.PutProxy(&org))

	other := claim.ProxyMemory{ID: uuid.New(), ProxyForName: "no match here", OrganizationDID: "did:plc:org"}
	require.NoError(s.PutProxy(&other))

	results, err := s.SearchProxiesByName("did:plc:org", "100%_match")
	require.NoError(err)
	require.Len(results, 1)
	require.Equal("100%_match", results[0].ProxyForName)
}

func TestCreateProxyRecordAtomicPersistsAllThree(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)
	defer s.Close()

	m := memory.New("did:plc:org", "proxy_individual", `{"first_name":"Jamie"}`)
	tok, err := claim.NewClaimToken(m.ID, "did:plc:org", claim.DefaultTTL)
	require.NoError(err)
	p := &claim.ProxyMemory{ID: m.ID, ProxyForName: "Jamie Smith", OrganizationDID: "did:plc:org", MemoryData: m.MemoryData, ClaimTokenID: &tok.ID}

	require.NoError(s.CreateProxyRecordAtomic(m, p, tok))

	gotMem, err := s.GetMemory(m.ID)
	require.NoError(err)
	require.NotNil(gotMem)

	gotTok, err := s.GetClaimTokenByToken(tok.Token)
	require.NoError(err)
	require.NotNil(gotTok)

	proxies, err := s.ListProxiesByOrg("did:plc:org")
	require.NoError(err)
	require.Len(proxies, 1)
}
