package network

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestVerifyMessageAuthenticationRoundTrip(t *testing.T) {
	require := require.New(t)
	msg, err := NewMessage("secret", Ping, "ack", uuid.New())
	require.NoError(err)
	require.True(VerifyMessageAuthentication("secret", msg))
}

func TestVerifyMessageAuthenticationDetectsTamper(t *testing.T) {
	require := require.New(t)
	msg, err := NewMessage("secret", Ping, "ack", uuid.New())
	require.NoError(err)

	mutated := *msg
	mutated.Payload = "tampered"
	require.False(VerifyMessageAuthentication("secret", &mutated))

	mutated2 := *msg
	mutated2.FromPeer = uuid.New()
	require.False(VerifyMessageAuthentication("secret", &mutated2))
}

func TestVerifyMessageAuthenticationWrongSecret(t *testing.T) {
	require := require.New(t)
	msg, err := NewMessage("secret-a", Ping, "ack", uuid.New())
	require.NoError(err)
	require.False(VerifyMessageAuthentication("secret-b", msg))
}
