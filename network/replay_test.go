package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayCacheRejectsDuplicateWithinWindow(t *testing.T) {
	require := require.New(t)
	c := NewReplayCache(5 * time.Minute)

	require.True(c.CheckAndInsert("n1"))
	require.False(c.CheckAndInsert("n1"))
}

func TestReplayCacheAcceptsSameNonceAfterWindow(t *testing.T) {
	require := require.New(t)
	c := NewReplayCache(5 * time.Minute)

	base := time.Now()
	c.nowFunc = func() time.Time { return base }
	require.True(c.CheckAndInsert("n1"))

	c.nowFunc = func() time.Time { return base.Add(6 * time.Minute) }
	require.True(c.CheckAndInsert("n1"))
}
