package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nexrad-fleet/levelii-ingest/internal/objectstore"
)

// filenameTimestamp extracts the "YYYYMMDD_HHMMSS" timestamp from an
// archive key of the form YYYY/MM/DD/STATION/STATIONYYYYMMDD_HHMMSS_V06 (spec
// §6 "Archive key convention"). It returns ("", false) if the key
// doesn't contain a recognizable timestamp segment.
func filenameTimestamp(key string) (string, bool) {
	name := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		name = key[idx+1:]
	}
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return "", false
	}
	// parts[0] is STATION+YYYYMMDD (4-char station + 8-digit date),
	// parts[1] is HHMMSS.
	if len(parts[0]) < 8 || len(parts[1]) != 6 {
		return "", false
	}
	date := parts[0][len(parts[0])-8:]
	return date + "_" + parts[1], true
}

// eligibleKey reports whether key passes the discovery filename filter
// (spec §4.6 / §6): not an _MDM marker, and at least minFilenameLen
// characters in its final path segment.
func eligibleKey(key string) bool {
	name := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		name = key[idx+1:]
	}
	if len(name) < minFilenameLen {
		return false
	}
	if strings.Contains(name, "_MDM") {
		return false
	}
	return true
}

// dayPrefix builds the YYYY/MM/DD/STATION/ listing prefix for station
// on the given UTC day.
func dayPrefix(station, yyyymmdd string) string {
	return fmt.Sprintf("%s/%s/%s/%s/", yyyymmdd[0:4], yyyymmdd[4:6], yyyymmdd[6:8], station)
}

// scanResult is the outcome of one station's discovery pass: the items
// to fetch and the cursor value to persist regardless of how many of
// those items are later skipped as already present on disk.
type scanResult struct {
	Items      []DiscoveryItem
	NewCursor  string
	HasNewKeys bool
}

// scanStation lists bucket under prefix, filters against cursor and
// the filename rules, and applies cold-start catch-up selection.
func scanStation(ctx context.Context, store objectstore.Store, bucket, station, prefix, cursor string, maxFramesPerStation int, catchupEnabled bool) (scanResult, error) {
	result, err := store.List(ctx, prefix, cursor, "")
	if err != nil {
		return scanResult{}, fmt.Errorf("scheduler: list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(result.Objects))
	for _, obj := range result.Objects {
		if eligibleKey(obj.Key) {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		return scanResult{}, nil
	}

	newCursor := keys[len(keys)-1]

	selected := keys
	if cursor == "" {
		// Cold start: no prior cursor for this station.
		n := 1
		if catchupEnabled {
			n = maxFramesPerStation
		}
		if len(selected) > n {
			selected = selected[len(selected)-n:]
		}
	}

	items := make([]DiscoveryItem, 0, len(selected))
	for _, k := range selected {
		ts, ok := filenameTimestamp(k)
		if !ok {
			continue
		}
		items = append(items, DiscoveryItem{Station: station, Bucket: bucket, Key: k, Timestamp: ts})
	}

	return scanResult{Items: items, NewCursor: newCursor, HasNewKeys: true}, nil
}

// expandAllStations lists the day prefix with a "/" delimiter to
// enumerate station subdirectories, implementing the "ALL" sentinel
// (spec §4.6 "ALL stations mode").
func expandAllStations(ctx context.Context, store objectstore.Store, dayRoot string) ([]string, error) {
	result, err := store.List(ctx, dayRoot, "", "/")
	if err != nil {
		return nil, fmt.Errorf("scheduler: list %s: %w", dayRoot, err)
	}
	stations := make([]string, 0, len(result.CommonPrefixes))
	for _, p := range result.CommonPrefixes {
		trimmed := strings.TrimPrefix(p, dayRoot)
		trimmed = strings.Trim(trimmed, "/")
		if trimmed != "" {
			stations = append(stations, trimmed)
		}
	}
	sort.Strings(stations)
	return stations, nil
}
