package discovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/ids"
)

func TestBeaconRoundTrip(t *testing.T) {
	require := require.New(t)
	b := &Beacon{
		PeerID:    uuid.New(),
		DID:       ids.DID("did:plc:abcdefghijklmnopqrstuvwxyz234567abcdefg"),
		Address:   "192.168.1.5",
		Port:      9652,
		Timestamp: time.Now().UTC(),
	}

	body, err := encodeBeacon(b)
	require.NoError(err)

	got, err := decodeBeacon(body)
	require.NoError(err)
	require.Equal(b.PeerID, got.PeerID)
	require.Equal(b.DID, got.DID)
	require.Equal(b.Address, got.Address)
	require.Equal(b.Port, got.Port)
}

func TestDecodeBeaconRejectsOversize(t *testing.T) {
	require := require.New(t)
	_, err := decodeBeacon(make([]byte, maxBeaconSize+1))
	require.Error(err)
}

func TestDecodeBeaconRejectsMalformedJSON(t *testing.T) {
	require := require.New(t)
	_, err := decodeBeacon([]byte("{not json"))
	require.Error(err)
}
