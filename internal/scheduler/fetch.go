package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/nexrad-fleet/levelii-ingest/internal/container"
	"github.com/nexrad-fleet/levelii-ingest/internal/decoder"
	"github.com/nexrad-fleet/levelii-ingest/internal/storagecodec"
	"github.com/nexrad-fleet/levelii-ingest/internal/volumetric"
)

func (s *Scheduler) fetchWorker(ctx context.Context, p *pools) {
	defer s.wg.Done()
	for {
		if s.stopped.Load() {
			return
		}
		select {
		case <-p.stopFetch:
			return
		case batch := <-s.discoveryQueue:
			s.metrics.DiscoveryQueueDepth.Set(float64(len(s.discoveryQueue)))
			s.processBatch(ctx, p, batch)
		case <-time.After(pollInterval):
		}
	}
}

func (s *Scheduler) processBatch(ctx context.Context, p *pools, batch DiscoveryBatch) {
	cfg := s.config()
	for _, item := range batch.Items {
		if s.stopped.Load() {
			return
		}
		if s.storage.HasTimestampProduct(item.Station, item.Timestamp, cfg.Products) {
			continue
		}
		s.processItem(ctx, p, item, cfg.Products)
	}
}

// processItem fetches one archive, decodes every requested product,
// projects and bitmask-encodes each tilt plus the full volume, and
// enqueues the resulting artifacts for storage (spec §4.6 fetch stage).
func (s *Scheduler) processItem(ctx context.Context, p *pools, item DiscoveryItem, products []string) {
	traceID := uuid.New().String()
	start := s.clock.Now()

	rawHandle := p.buffers.Acquire()
	defer rawHandle.Release()

	rc, err := s.store.Fetch(ctx, item.Key)
	if err != nil {
		log.Printf("scheduler[%s]: fetch %s failed: %v", traceID, item.Key, err)
		s.metrics.RemoteFetchErrs.WithLabelValues(item.Station).Inc()
		s.onFailure(item)
		return
	}
	n, err := readFullOrEOF(rc, rawHandle.Bytes())
	rc.Close()
	if err != nil {
		log.Printf("scheduler[%s]: read %s failed: %v", traceID, item.Key, err)
		s.metrics.RemoteFetchErrs.WithLabelValues(item.Station).Inc()
		s.onFailure(item)
		return
	}

	decompressed, err := container.Decompress(rawHandle.Bytes()[:n])
	if err != nil {
		log.Printf("scheduler[%s]: decompress %s failed: %v", traceID, item.Key, err)
		s.onFailure(item)
		return
	}

	stageHandle := p.buffers.Acquire()
	defer stageHandle.Release()
	if len(decompressed) > len(stageHandle.Bytes()) {
		log.Printf("scheduler[%s]: decompressed archive %s (%d bytes) exceeds buffer capacity", traceID, item.Key, len(decompressed))
		s.onFailure(item)
		return
	}
	staged := stageHandle.Bytes()[:len(decompressed)]
	copy(staged, decompressed)

	frames, err := decoder.Decode(staged, products)
	if err != nil {
		log.Printf("scheduler[%s]: decode %s failed: %v", traceID, item.Key, err)
		s.onFailure(item)
		return
	}

	for product, frame := range frames {
		s.storeFrame(item, product, frame)
	}

	s.onSuccess(item, start)
}

func (s *Scheduler) storeFrame(item DiscoveryItem, product string, frame *decoder.Frame) {
	// frame.Elevations holds one entry per distinct tilt, already merged
	// across VCP split cuts (decoder.finalizeFrame groups sweeps within
	// elevationGroupEpsilon of each other). A tilt's 2-D grid must
	// aggregate every sweep at that tilt the same way ProjectVolume3D
	// does, or a split cut's second sweep silently overwrites the
	// first's on-disk artifact.
	for _, tilt := range frame.Elevations {
		merged := volumetric.MergeSweepsForTilt(frame.Sweeps, tilt, elevationGroupEpsilon)
		grid, ok := volumetric.ProjectSweep2D(merged, product, frame.Geometry)
		if !ok {
			continue
		}
		enc := volumetric.Encode(grid.Cells)
		s.storage.Enqueue(storagecodec.WriteTask{
			Station:   item.Station,
			Product:   product,
			Timestamp: item.Timestamp,
			Tilt:      fmt.Sprintf("%.1f", tilt),
			Artifact: storagecodec.Artifact{
				Metadata: storagecodec.Metadata{
					Station:      item.Station,
					Product:      product,
					TimestampRFC: frame.Timestamp.UTC().Format(time.RFC3339),
					ElevationDeg: tilt,
					RayCount:     grid.RayCount,
					GateCount:    grid.GateCount,
					GateSpacingM: grid.GateSpacingM,
					FirstGateM:   grid.FirstGateM,
					VCPNumber:    frame.VCPNumber,
				},
				Bitmask: enc.Bitmask,
				Values:  enc.Values,
			},
		})
	}

	if volume, ok := volumetric.ProjectVolume3D(frame.Sweeps, frame.Elevations, product, frame.Geometry, elevationGroupEpsilon); ok {
		enc := volumetric.Encode(volume.Cells)
		s.storage.Enqueue(storagecodec.WriteTask{
			Station:   item.Station,
			Product:   product,
			Timestamp: item.Timestamp,
			Tilt:      "",
			Artifact: storagecodec.Artifact{
				Metadata: storagecodec.Metadata{
					Station:      item.Station,
					Product:      product,
					TimestampRFC: frame.Timestamp.UTC().Format(time.RFC3339),
					RayCount:     volume.RayCount,
					GateCount:    volume.GateCount,
					GateSpacingM: volume.GateSpacingM,
					FirstGateM:   volume.FirstGateM,
					VCPNumber:    frame.VCPNumber,
					Tilts:        volume.Tilts,
				},
				Bitmask: enc.Bitmask,
				Values:  enc.Values,
			},
		})
	}
}

func (s *Scheduler) onSuccess(item DiscoveryItem, start time.Time) {
	s.stations.RecordFetchSuccess(item.Station, s.clock.Now())
	s.metrics.FramesFetched.WithLabelValues(item.Station).Inc()
	s.metrics.FetchDuration.Observe(s.clock.Since(start).Seconds())
}

func (s *Scheduler) onFailure(item DiscoveryItem) {
	s.stations.RecordFetchFailure(item.Station, s.clock.Now())
	s.metrics.FramesFailed.WithLabelValues(item.Station).Inc()
}

// readFullOrEOF reads into buf until it is full or the reader is
// exhausted, treating a short read as success: the buffer pool's
// fixed-size buffers are expected to be larger than most archives.
func readFullOrEOF(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return n, nil
	}
	return n, err
}
