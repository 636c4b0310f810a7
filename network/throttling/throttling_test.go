package throttling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterDropsSixtyFirstMessage(t *testing.T) {
	require := require.New(t)
	r := NewRateLimiter(60, time.Minute)

	for i := 0; i < 60; i++ {
		require.True(r.Allow("1.2.3.4"))
	}
	require.False(r.Allow("1.2.3.4"))
}

func TestRateLimiterAcceptsAfterWindowElapses(t *testing.T) {
	require := require.New(t)
	r := NewRateLimiter(2, time.Minute)
	base := time.Now()
	r.nowFunc = func() time.Time { return base }

	require.True(r.Allow("1.2.3.4"))
	require.True(r.Allow("1.2.3.4"))
	require.False(r.Allow("1.2.3.4"))

	r.nowFunc = func() time.Time { return base.Add(time.Minute + time.Second) }
	require.True(r.Allow("1.2.3.4"))
}

func TestRateLimiterIsolatesByIP(t *testing.T) {
	require := require.New(t)
	r := NewRateLimiter(1, time.Minute)
	require.True(r.Allow("1.1.1.1"))
	require.True(r.Allow("2.2.2.2"))
}

func TestConnectionTrackerRefusesSixthConnection(t *testing.T) {
	require := require.New(t)
	tr := NewConnectionTracker(5)

	var guards []*ConnectionGuard
	for i := 0; i < 5; i++ {
		g, err := tr.Acquire("1.2.3.4")
		require.NoError(err)
		guards = append(guards, g)
	}

	_, err := tr.Acquire("1.2.3.4")
	require.Error(err)

	guards[0].Release()
	g, err := tr.Acquire("1.2.3.4")
	require.NoError(err)
	require.NotNil(g)
}

func TestConnectionGuardReleaseIsIdempotent(t *testing.T) {
	require := require.New(t)
	tr := NewConnectionTracker(1)
	g, err := tr.Acquire("1.2.3.4")
	require.NoError(err)

	g.Release()
	g.Release()
	require.Equal(0, tr.Count("1.2.3.4"))
}
