package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewComputesMatchingContentHash(t *testing.T) {
	require := require.New(t)

	m := New("did:plc:abc", "individual", `{"a":1}`)
	require.True(m.VerifyHash())
	require.Equal(HashContent(`{"a":1}`), m.ContentHash)
}

func TestVerifyHashDetectsTamper(t *testing.T) {
	require := require.New(t)

	m := New("did:plc:abc", "individual", `{"a":1}`)
	m.MemoryData = `{"a":2}`
	require.False(m.VerifyHash())
}

func TestSigningPayloadDeterministic(t *testing.T) {
	require := require.New(t)

	m := New("did:plc:abc", "individual", `{"a":1}`)
	p1 := m.SigningPayload()
	p2 := m.SigningPayload()
	require.Equal(p1, p2)
}
