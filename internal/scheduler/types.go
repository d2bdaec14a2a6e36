// Package scheduler drives the fleet-wide discovery and fetch pipeline:
// a discovery loop lists each monitored station's object-store prefix
// on an interval, a fetch pool decodes and projects the objects it
// finds, and a cleanup loop enforces retention. Pool sizes and the
// monitored-station set are reconfigurable at runtime.
package scheduler

import "time"

// DiscoveryItem is one candidate object surfaced by a discovery pass:
// a station, the key under which it was listed, and the timestamp
// parsed from the filename.
type DiscoveryItem struct {
	Station   string
	Bucket    string
	Key       string
	Timestamp string
}

// DiscoveryBatch groups up to batchSize items from a single station's
// discovery pass (spec §4.6: "chunks of up to 5 items per station").
type DiscoveryBatch struct {
	Station string
	Items   []DiscoveryItem
}

// batchSize is the maximum number of items per DiscoveryBatch.
const batchSize = 5

// minFilenameLen excludes short or metadata filenames from discovery
// (spec §4.6: "excluding *_MDM and < 20-char filenames").
const minFilenameLen = 20

// elevationGroupEpsilon matches the decoder's sweep-grouping tolerance,
// used when matching sweeps to tilts for volumetric projection.
const elevationGroupEpsilon = 0.01

// pollInterval is the granularity at which loops re-check the stop
// flag, bounding shutdown latency (spec §5: "sleeps are done in
// 100ms slices").
const pollInterval = 100 * time.Millisecond

func chunkBatches(station string, items []DiscoveryItem) []DiscoveryBatch {
	var batches []DiscoveryBatch
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, DiscoveryBatch{Station: station, Items: append([]DiscoveryItem{}, items[start:end]...)})
	}
	return batches
}
