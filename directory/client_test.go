package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/ids"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := Open(Config{BaseURL: baseURL, CacheDir: filepath.Join(t.TempDir(), "cache")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestResolveFetchesAndCaches(t *testing.T) {
	did := ids.DID("did:plc:abcdefghijklmnopqrstuvwxyz234567abc")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VerificationMethod{
			DID:                did,
			MultibasePublicKey: "zTestKey",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	vm, err := c.Resolve(context.Background(), did)
	require.NoError(t, err)
	require.Equal(t, "zTestKey", vm.MultibasePublicKey)
}

func TestResolveFallsBackToCacheOnLookupFailure(t *testing.T) {
	did := ids.DID("did:plc:abcdefghijklmnopqrstuvwxyz234567abc")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(VerificationMethod{DID: did, MultibasePublicKey: "zCached"})
	}))

	c := newTestClient(t, srv.URL)
	_, err := c.Resolve(context.Background(), did)
	require.NoError(t, err)

	srv.Close()

	vm, err := c.Resolve(context.Background(), did)
	require.NoError(t, err)
	require.Equal(t, "zCached", vm.MultibasePublicKey)
}

func TestResolveWithoutBaseURLOrCacheFails(t *testing.T) {
	c := newTestClient(t, "")
	_, err := c.Resolve(context.Background(), ids.DID("did:plc:abcdefghijklmnopqrstuvwxyz234567abc"))
	require.Error(t, err)
}
