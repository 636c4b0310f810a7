package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)
	v.Set("network.shared-secret", "s3cret")

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, uint16(9651), cfg.Network.ListenPort)
	require.Equal(t, uint16(9652), cfg.Network.DiscoveryPort)
}

func TestValidateRejectsEqualP2PAndDiscoveryPorts(t *testing.T) {
	cfg := Default()
	cfg.Network.SharedSecret = "s3cret"
	cfg.Network.DiscoveryEnabled = true
	cfg.Network.ListenPort = 9651
	cfg.Network.DiscoveryPort = 9651

	require.ErrorIs(t, cfg.Validate(), errP2PDiscoveryPortsEqual)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Network.SharedSecret = "s3cret"
	cfg.LogLevel = "not-a-level"

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedDirectoryURL(t *testing.T) {
	cfg := Default()
	cfg.Network.SharedSecret = "s3cret"
	cfg.Directory.URL = "not a url"

	require.ErrorIs(t, cfg.Validate(), errDirectoryURLInvalid)
}

func TestValidateRejectsEmptySharedSecret(t *testing.T) {
	cfg := Default()
	require.ErrorIs(t, cfg.Validate(), errSharedSecretEmpty)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ocm.toml")
	content := `
data-dir = "/tmp/ocm"
log-level = "debug"

[network]
shared-secret = "file-secret"
listen-port = 7000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "file-secret", cfg.Network.SharedSecret)
	require.Equal(t, uint16(7000), cfg.Network.ListenPort)
	require.Equal(t, "debug", cfg.LogLevel)
}
