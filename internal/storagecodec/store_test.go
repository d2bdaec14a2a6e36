package storagecodec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForIndex(t *testing.T, s *Store, station, product string, minLen int) []IndexEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		idx, err := s.Index(station, product)
		require.NoError(t, err)
		if len(idx) >= minLen {
			return idx
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("index for %s/%s never reached length %d", station, product, minLen)
	return nil
}

func TestEnqueueWritesArtifactAndIndex(t *testing.T) {
	base := t.TempDir()
	s := New(base, 30)
	defer s.Shutdown()

	s.Enqueue(WriteTask{
		Station:   "KTLX",
		Product:   "reflectivity",
		Timestamp: "20260806_000000",
		Tilt:      "0.5",
		Artifact: Artifact{
			Metadata: Metadata{Station: "KTLX", Product: "reflectivity", RayCount: 4, GateCount: 4},
			Bitmask:  make([]byte, 2),
			Values:   nil,
		},
	})

	idx := waitForIndex(t, s, "KTLX", "reflectivity", 1)
	require.Len(t, idx, 1)
	require.Equal(t, "20260806_000000", idx[0].Timestamp)
	require.Equal(t, "0.5", idx[0].Tilt)

	require.True(t, s.HasTimestampProduct("KTLX", "20260806_000000", []string{"reflectivity"}))
	require.False(t, s.HasTimestampProduct("KTLX", "20260806_000000", []string{"velocity"}))
}

func TestEnqueueVolumetricUsesVolumetricFilename(t *testing.T) {
	base := t.TempDir()
	s := New(base, 30)
	defer s.Shutdown()

	s.Enqueue(WriteTask{
		Station:   "KTLX",
		Product:   "reflectivity",
		Timestamp: "20260806_000000",
		Tilt:      "",
		Artifact: Artifact{
			Metadata: Metadata{Station: "KTLX", Product: "reflectivity", RayCount: 4, GateCount: 4, Tilts: []float64{0.5}},
			Bitmask:  make([]byte, 2),
		},
	})

	waitForIndex(t, s, "KTLX", "reflectivity", 1)
	path := filepath.Join(base, "KTLX", "20260806_000000", "reflectivity", "volumetric.RDA")
	require.FileExists(t, path)
}

func TestWriteArtifactWrapsErrStorageWriteOnMkdirFailure(t *testing.T) {
	base := t.TempDir()
	s := New(base, 30)
	defer s.Shutdown()

	// Pre-create a plain file where the station/timestamp/product
	// directory must go, forcing MkdirAll to fail.
	blocker := filepath.Join(base, "KTLX")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := s.writeArtifact(WriteTask{
		Station:   "KTLX",
		Product:   "reflectivity",
		Timestamp: "20260806_000000",
		Tilt:      "0.5",
		Artifact:  Artifact{Metadata: Metadata{Station: "KTLX"}, Bitmask: make([]byte, 1)},
	})
	require.True(t, errors.Is(err, ErrStorageWrite))
}

func TestRetainDeletesOldestBeyondLimit(t *testing.T) {
	base := t.TempDir()
	s := New(base, 30)
	defer s.Shutdown()

	for i := 0; i < 35; i++ {
		ts := fmt.Sprintf("202608%02d_000000", i+1)
		s.Enqueue(WriteTask{
			Station:   "KTLX",
			Product:   "reflectivity",
			Timestamp: ts,
			Tilt:      "0.5",
			Artifact: Artifact{
				Metadata: Metadata{Station: "KTLX", Product: "reflectivity", RayCount: 2, GateCount: 2},
				Bitmask:  make([]byte, 1),
			},
		})
	}

	waitForIndex(t, s, "KTLX", "reflectivity", 35)

	require.NoError(t, s.Retain("KTLX", "reflectivity"))

	idx, err := s.Index("KTLX", "reflectivity")
	require.NoError(t, err)
	require.Len(t, idx, 30)

	for _, e := range idx {
		require.GreaterOrEqual(t, e.Timestamp, "20260806_000000")
	}
}
