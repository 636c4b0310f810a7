package network

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	require := require.New(t)
	msg, err := NewMessage("secret", Handshake, "hi", uuid.New())
	require.NoError(err)

	var buf bytes.Buffer
	require.NoError(WriteFrame(&buf, msg))

	got, err := ReadFrame(&buf)
	require.NoError(err)
	require.Equal(msg.Nonce, got.Nonce)
	require.Equal(msg.HMAC, got.HMAC)
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], 0xFFFFFFFF)
	buf.Write(lenPrefix[:])

	_, err := ReadFrame(&buf)
	require.Error(err)
}

func TestWriteFrameRejectsOversizeBody(t *testing.T) {
	require := require.New(t)
	msg, err := NewMessage("secret", Handshake, string(make([]byte, MaxMessageSize+1)), uuid.New())
	require.NoError(err)

	require.Error(WriteFrame(&bytes.Buffer{}, msg))
}
