package scheduler

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexrad-fleet/levelii-ingest/internal/appconfig"
	"github.com/nexrad-fleet/levelii-ingest/internal/bufferpool"
	"github.com/nexrad-fleet/levelii-ingest/internal/clock"
	"github.com/nexrad-fleet/levelii-ingest/internal/decoder"
	"github.com/nexrad-fleet/levelii-ingest/internal/metrics"
	"github.com/nexrad-fleet/levelii-ingest/internal/objectstore"
	"github.com/nexrad-fleet/levelii-ingest/internal/stationstate"
	"github.com/nexrad-fleet/levelii-ingest/internal/storagecodec"
)

func newTestScheduler(t *testing.T, store objectstore.Store) (*Scheduler, *storagecodec.Store) {
	t.Helper()
	cfg := appconfig.Default()
	cfg.BufferPoolSize = 4
	cfg.BufferSizeBytes = 1 << 20
	storage := storagecodec.New(t.TempDir(), cfg.MaxFramesPerStation)
	t.Cleanup(storage.Shutdown)
	stations := stationstate.New(t.TempDir() + "/state.json")
	m, _ := metrics.NewForTesting()
	sched := New(cfg, store, storage, stations, m, clock.Real(), t.TempDir()+"/state.json")
	return sched, storage
}

func TestStoreFrameEnqueuesPerTiltAndVolumetricArtifacts(t *testing.T) {
	sched, storage := newTestScheduler(t, objectstore.NewMemStore(nil))

	frame := &decoder.Frame{
		Station:    "KTLX",
		Product:    "reflectivity",
		Timestamp:  time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC),
		Elevations: []float64{0.5},
		Geometry:   decoder.Geometry{FirstGateM: 0, GateSpacingM: 250, GateCount: 4},
		VCPNumber:  212,
		Sweeps: []*decoder.Sweep{
			{
				ElevationDeg: 0.5,
				Bins: []decoder.Bin{
					{AzimuthDeg: 0, RangeM: 0, Value: 10},
					{AzimuthDeg: 90, RangeM: 250, Value: 20},
				},
			},
		},
	}

	sched.storeFrame(DiscoveryItem{Station: "KTLX", Timestamp: "20260806_000000"}, "reflectivity", frame)

	idx := waitForSchedulerIndex(t, storage, "KTLX", "reflectivity", 2)
	var sawTilt, sawVolumetric bool
	for _, e := range idx {
		if e.Tilt == "0.5" {
			sawTilt = true
		}
		if e.Tilt == "" || e.Tilt == "volumetric" {
			sawVolumetric = true
		}
	}
	require.True(t, sawTilt, "expected a per-tilt artifact")
	require.True(t, sawVolumetric, "expected a volumetric artifact")
}

// TestStoreFrameMergesSplitCutSweepsIntoOnePerTiltArtifact covers a VCP
// split cut: two sweeps at the same nominal tilt (distinct
// elevationNumber values, e.g. a surveillance scan and a Doppler scan)
// must contribute to one merged per-tilt grid, not two competing writes
// to the same artifact path.
func TestStoreFrameMergesSplitCutSweepsIntoOnePerTiltArtifact(t *testing.T) {
	sched, storage := newTestScheduler(t, objectstore.NewMemStore(nil))

	frame := &decoder.Frame{
		Station:    "KTLX",
		Product:    "reflectivity",
		Timestamp:  time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC),
		Elevations: []float64{0.5},
		Geometry:   decoder.Geometry{FirstGateM: 0, GateSpacingM: 250, GateCount: 4},
		VCPNumber:  212,
		Sweeps: []*decoder.Sweep{
			{
				ElevationDeg: 0.5,
				RadialCount:  360,
				Bins: []decoder.Bin{
					{AzimuthDeg: 0, RangeM: 0, Value: 10},
				},
			},
			{
				ElevationDeg: 0.5,
				RadialCount:  360,
				Bins: []decoder.Bin{
					{AzimuthDeg: 90, RangeM: 250, Value: 20},
				},
			},
		},
	}

	sched.storeFrame(DiscoveryItem{Station: "KTLX", Timestamp: "20260806_000000"}, "reflectivity", frame)

	// One per-tilt artifact plus one volumetric artifact: not three.
	idx := waitForSchedulerIndex(t, storage, "KTLX", "reflectivity", 2)
	require.Len(t, idx, 2)

	var tiltEntries int
	for _, e := range idx {
		if e.Tilt == "0.5" {
			tiltEntries++
		}
	}
	require.Equal(t, 1, tiltEntries, "split-cut sweeps must collapse into a single per-tilt artifact")
}

func waitForSchedulerIndex(t *testing.T, s *storagecodec.Store, station, product string, minLen int) []storagecodec.IndexEntry {
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

func putU16(buf []byte, off int, v uint16) { binary.BigEndian.PutUint16(buf[off:], v) }
func putU32(buf []byte, off int, v uint32) { binary.BigEndian.PutUint32(buf[off:], v) }
func putF32(buf []byte, off int, v float32) {
	binary.BigEndian.PutUint32(buf[off:], math.Float32bits(v))
}

// buildArchive constructs a minimal uncompressed Archive II buffer
// carrying one Message-31 reflectivity radial, matching the layout the
// decoder package tests against.
func buildArchive(station string, julian uint16, ms uint32) []byte {
	const (
		volOff = 44
		volLen = 44
		radOff = volOff + volLen
		radLen = 20
		refOff = radOff + radLen
	)
	refHeaderLen := 28
	gates := []byte{0, 2, 100, 255, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	refLen := refHeaderLen + len(gates)
	payloadLen := refOff + refLen
	if payloadLen%2 != 0 {
		payloadLen++
	}
	payload := make([]byte, payloadLen)
	putF32(payload, 12, 10.0)
	payload[21] = 0 // status: start of elevation
	payload[22] = 1
	putF32(payload, 24, 0.5)
	putU16(payload, 30, 3)
	putU32(payload, 32, uint32(volOff))
	putU32(payload, 36, uint32(radOff))
	putU32(payload, 40, uint32(refOff))

	payload[volOff] = 'R'
	copy(payload[volOff+1:volOff+4], []byte("VOL"))
	putU16(payload, volOff+40, 212)

	payload[radOff] = 'R'
	copy(payload[radOff+1:radOff+4], []byte("RAD"))
	putU16(payload, radOff+6, 230)
	putU16(payload, radOff+16, 2500)

	payload[refOff] = 'D'
	copy(payload[refOff+1:refOff+4], []byte("REF"))
	putU16(payload, refOff+8, uint16(len(gates)))
	putU16(payload, refOff+10, 0)
	putU16(payload, refOff+12, 250)
	payload[refOff+18] = 8
	putF32(payload, refOff+20, 2.0)
	putF32(payload, refOff+24, 66.0)
	copy(payload[refOff+refHeaderLen:], gates)

	vol := make([]byte, 24)
	copy(vol[0:20], []byte("NOTARCHIVE2PADDING01"))
	putU32(vol, 12, uint32(julian))
	putU32(vol, 16, ms)
	copy(vol[20:24], []byte(station))

	hdr := make([]byte, 16)
	putU16(hdr, 0, uint16((16+len(payload))/2))
	hdr[3] = 31
	putU16(hdr, 4, 7)
	putU16(hdr, 6, julian)
	putU32(hdr, 8, ms)
	putU16(hdr, 12, 1)
	putU16(hdr, 14, 1)

	out := append([]byte{}, vol...)
	out = append(out, hdr...)
	out = append(out, payload...)
	return out
}

func TestProcessItemDecodesAndStoresArtifacts(t *testing.T) {
	archive := buildArchive("KTLX", 20863, 58964000)
	store := objectstore.NewMemStore(map[string][]byte{
		"2026/08/06/KTLX/KTLX20260806_000000_V06": archive,
	})

	sched, storage := newTestScheduler(t, store)
	p := sched.p

	item := DiscoveryItem{Station: "KTLX", Bucket: DefaultBucket, Key: "2026/08/06/KTLX/KTLX20260806_000000_V06", Timestamp: "20260806_000000"}
	sched.processItem(context.Background(), p, item, []string{"reflectivity"})

	idx := waitForSchedulerIndex(t, storage, "KTLX", "reflectivity", 1)
	require.NotEmpty(t, idx)

	got := sched.stations.Get("KTLX")
	require.EqualValues(t, 1, got.FramesFetched)
}

func TestReadFullOrEOFAcceptsShortRead(t *testing.T) {
	pool := bufferpool.New(1, 1024)
	h := pool.Acquire()
	defer h.Release()

	n, err := readFullOrEOF(bytes.NewReader([]byte("hello")), h.Bytes())
	require.NoError(t, err)
	require.Equal(t, 5, n)
}
