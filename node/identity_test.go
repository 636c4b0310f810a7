package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateIdentity(dir)
	require.NoError(t, err)

	second, err := LoadOrCreateIdentity(dir)
	require.NoError(t, err)

	require.Equal(t, first.DID, second.DID)
	require.Equal(t, first.Public, second.Public)
}
