package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/config"
	"github.com/musictopeople/ocm-go/crypto"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Network.SharedSecret = "test-secret"
	cfg.Network.ListenHost = "127.0.0.1"
	cfg.Network.ListenPort = 0
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestNewBuildsEveryComponent(t *testing.T) {
	cfg := newTestConfig(t)
	identity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	n, err := New(cfg, identity)
	require.NoError(t, err)
	require.NotNil(t, n.Store)
	require.NotNil(t, n.Manager)
	require.NotNil(t, n.Transport)
	require.NotNil(t, n.Sync)
	require.Nil(t, n.Discovery) // discovery disabled by default

	n.Stop()
}

func TestStartListensAndStopShutsDownCleanly(t *testing.T) {
	cfg := newTestConfig(t)
	identity, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	n, err := New(cfg, identity)
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background()))
	n.Stop()

	select {
	case <-n.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("node did not finish shutting down")
	}
}
