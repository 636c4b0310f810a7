package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/musictopeople/ocm-go/crypto"
	"github.com/musictopeople/ocm-go/network"
)

func TestListenerIngestsBeaconFromPeer(t *testing.T) {
	require := require.New(t)

	peers := network.NewPeerTable()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)

	l, err := Listen("127.0.0.1:0", Config{
		Identity:      kp,
		LocalPeerID:   uuid.New(),
		AdvertiseAddr: "127.0.0.1",
		AdvertisePort: 9001,
		Peers:         peers,
	})
	require.NoError(err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.receiveLoop(ctx)

	otherPeerID := uuid.New()
	otherKP, err := crypto.GenerateKeyPair()
	require.NoError(err)
	beacon := &Beacon{
		PeerID:    otherPeerID,
		DID:       otherKP.DID,
		Address:   "127.0.0.1",
		Port:      9002,
		Timestamp: time.Now().UTC(),
	}
	body, err := encodeBeacon(beacon)
	require.NoError(err)

	sender, err := net.ListenUDP("udp4", nil)
	require.NoError(err)
	defer sender.Close()
	_, err = sender.WriteToUDP(body, l.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(err)

	require.Eventually(func() bool {
		_, ok := peers.Get(otherPeerID.String())
		return ok
	}, time.Second, 10*time.Millisecond)
}
