package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActiveScanSetExcludesConcurrentScans(t *testing.T) {
	set := newActiveScanSet()

	guard, ok := set.tryAcquire("KTLX")
	require.True(t, ok)
	require.Equal(t, 1, set.Len())

	_, ok = set.tryAcquire("KTLX")
	require.False(t, ok, "a second scan of the same station must be rejected")

	guard.Release()
	require.Equal(t, 0, set.Len())

	_, ok = set.tryAcquire("KTLX")
	require.True(t, ok, "station becomes scannable again after release")
}

func TestActiveScanSetReleaseIsIdempotent(t *testing.T) {
	set := newActiveScanSet()
	guard, ok := set.tryAcquire("KCRP")
	require.True(t, ok)

	guard.Release()
	guard.Release()
	require.Equal(t, 0, set.Len())
}

func TestActiveScanSetTracksDistinctStations(t *testing.T) {
	set := newActiveScanSet()
	_, ok1 := set.tryAcquire("KTLX")
	_, ok2 := set.tryAcquire("KCRP")
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, 2, set.Len())
}
