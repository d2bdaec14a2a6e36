package storagecodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := Artifact{
		Metadata: Metadata{
			Station:      "KTLX",
			Product:      "reflectivity",
			TimestampRFC: "2026-08-06T00:00:00Z",
			ElevationDeg: 0.5,
			RayCount:     4,
			GateCount:    4,
			GateSpacingM: 250,
			FirstGateM:   0,
		},
		Bitmask: []byte{0b10100000, 0b00000000},
		Values:  []byte{10, 20},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, a))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, a.Metadata, got.Metadata)
	require.Equal(t, a.Bitmask, got.Bitmask)
	require.Equal(t, a.Values, got.Values)
}

func TestEncodeDecodeVolumetricDimensions(t *testing.T) {
	a := Artifact{
		Metadata: Metadata{
			Station:      "KTLX",
			Product:      "reflectivity",
			TimestampRFC: "2026-08-06T00:00:00Z",
			RayCount:     720,
			GateCount:    2,
			Tilts:        []float64{0.5, 1.5},
		},
		Bitmask: make([]byte, (720*2*2+7)/8),
		Values:  []byte{},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, a))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, got.Bitmask, len(a.Bitmask))
}
