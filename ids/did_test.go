package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDIDDeterministic(t *testing.T) {
	require := require.New(t)

	pub := []byte("a fixed 32-byte test public key")
	d1 := DeriveDID(pub)
	d2 := DeriveDID(pub)
	require.Equal(d1, d2)
	require.True(d1.Valid())
}

func TestDeriveDIDDiffersByKey(t *testing.T) {
	require := require.New(t)

	a := DeriveDID([]byte("key-a"))
	b := DeriveDID([]byte("key-b"))
	require.NotEqual(a, b)
}

func TestParseDIDRejectsGarbage(t *testing.T) {
	require := require.New(t)

	_, err := ParseDID("not-a-did")
	require.Error(err)

	_, err = ParseDID("did:plc:TOO_SHORT")
	require.Error(err)
}
