package decoder

import (
	"fmt"
	"sort"
	"time"

	"github.com/nexrad-fleet/levelii-ingest/internal/bigend"
	"github.com/nexrad-fleet/levelii-ingest/internal/segment"
)

// julianEpoch is 1970-01-01, the NEXRAD-modified Julian date epoch where
// day 1 corresponds to that date (1-based Julian day).
var julianEpoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// messageTypeGeneric is the Message 31 (Generic Digital Radar Data) type.
const messageTypeGeneric = 31

// messageTypeLegacy is the Message 1 (legacy Digital Radar Data) type.
const messageTypeLegacy = 1

// azimuthMin/azimuthMax and elevationMin/elevationMax are the valid
// ranges from spec §3; samples outside are dropped.
const (
	azimuthMin   = 0.0
	azimuthMax   = 360.0
	elevationMin = -5.0
	elevationMax = 90.0
)

// elevationGroupEpsilon is the tolerance for grouping sweep elevations
// (spec §4.5: "within 0.01°").
const elevationGroupEpsilon = 0.01

// Decode parses a decompressed Archive II byte buffer into one Frame per
// requested product name. Per-radial and per-block failures are dropped
// silently (spec §7 DecodeSkip) so that one corrupt radial never aborts
// the rest of the archive.
func Decode(data []byte, products []string) (map[string]*Frame, error) {
	frames := make(map[string]*Frame, len(products))
	blockNames := make(map[string]string, len(products))
	for _, p := range products {
		blockName, known := blockNameForProduct[p]
		if !known {
			return nil, fmt.Errorf("decoder: unknown product %q", p)
		}
		blockNames[p] = blockName
		frames[p] = &Frame{Product: p}
	}

	if len(data) < 24 {
		return nil, fmt.Errorf("decoder: buffer too small for volume header (%d bytes)", len(data))
	}

	hr := bigend.NewReader(data)
	station := string(data[20:24])
	julian, _ := hr.U32(12)
	ms, _ := hr.U32(16)
	ts := timestampFromVolumeHeader(julian, ms)

	for _, f := range frames {
		f.Station = station
		f.Timestamp = ts
	}

	reassembler := segment.New()

	offset := 24
	archive2 := false
	if len(data) >= 24 && (string(data[0:8]) == "ARCHIVE2" || string(data[0:4]) == "AR2V") {
		archive2 = true
	}

	if archive2 && offset+(archive2MetadataSlots*archive2SlotSize) <= len(data) {
		for i := 0; i < archive2MetadataSlots; i++ {
			slotOff := offset + i*archive2SlotSize
			h, ok := parseMessageHeader(hr, slotOff+12)
			if !ok || h.msgType == 0 {
				continue
			}
			payloadOff := slotOff + 12 + messageHeaderSize
			payloadSize := archive2SlotSize - 12 - messageHeaderSize
			payload, ok := hr.Slice(payloadOff, payloadSize)
			if !ok {
				continue
			}
			reassembler.Add(h.sequenceNum, h.msgType, h.numSegments, h.segmentNum, payload)
		}
		offset += archive2MetadataSlots * archive2SlotSize
	}

	st := &scanState{
		currentSweepIdx: -1,
		currentElevNum:  -1,
		currentElevDeg:  -99.0,
	}

	messageCount := 0
	for offset+messageHeaderSize <= len(data) && messageCount < maxMessagesPerBuffer {
		if archive2 {
			for offset < len(data) && data[offset] == 0 {
				offset++
			}
		}
		if offset+messageHeaderSize > len(data) {
			break
		}

		headerOffset, h, found := findHeader(hr, offset, archive2)
		if !found {
			offset++
			continue
		}

		messageSizeBytes := h.sizeHalfwords * 2
		if messageSizeBytes < messageHeaderSize || headerOffset+messageSizeBytes > len(data) {
			offset = headerOffset + 1
			continue
		}

		payloadStart := headerOffset + messageHeaderSize
		payloadSize := messageSizeBytes - messageHeaderSize
		segPayload, ok := hr.Slice(payloadStart, payloadSize)

		nextOffset := headerOffset + messageSizeBytes
		if archive2 && messageSizeBytes < 2420 && h.msgType != 31 && h.msgType != 29 {
			nextOffset = headerOffset + (archive2SlotSize - 12)
		}

		messageCount++
		if !ok {
			offset = nextOffset
			continue
		}

		completed, err := reassembler.Add(h.sequenceNum, h.msgType, h.numSegments, h.segmentNum, segPayload)
		offset = nextOffset
		if err != nil || completed == nil {
			continue
		}

		switch completed.MessageType {
		case messageTypeLegacy:
			decodeMessage1Into(completed.Payload, frames, blockNames, st, reassembler)
		case messageTypeGeneric:
			decodeMessage31Into(completed.Payload, frames, blockNames, st, reassembler)
		}
	}

	for _, f := range frames {
		finalizeFrame(f)
	}

	return frames, nil
}

// scanState tracks sweep-transition bookkeeping shared across all
// requested products, since sweep boundaries are a property of the
// radial stream, not of any one product's moment data.
type scanState struct {
	currentSweepIdx int
	currentElevNum  int
	currentElevDeg  float64
}

func isNewSweepStatus(status uint8) bool {
	return status == statusStartElevation || status == statusStartVolume || status == statusStartElevationSegmented
}

func timestampFromVolumeHeader(julianDay, ms uint32) time.Time {
	days := int64(julianDay) - 1
	return julianEpoch.Add(time.Duration(days)*24*time.Hour + time.Duration(ms)*time.Millisecond)
}

// decodeMessage1Into decodes a legacy radial and appends its bins to
// every requested frame whose product is reflectivity (Message 1 only
// ever carries reflectivity).
func decodeMessage1Into(payload []byte, frames map[string]*Frame, blockNames map[string]string, st *scanState, reassembler *segment.Reassembler) {
	rad, ok := decodeRadial1(payload)
	if !ok {
		return
	}
	if !validAzimuthElevation(rad.azimuthDeg, rad.elevationDeg) {
		return
	}

	isNew := isNewSweepStatus(rad.radialStatus) || st.currentSweepIdx == -1
	if isNew {
		st.currentSweepIdx++
		st.currentElevDeg = rad.elevationDeg
		elevNum := int(rad.elevationDeg * 10) // legacy messages carry no elevation_number field
		st.currentElevNum = elevNum
		appendSweepToAll(frames, st.currentElevNum, rad.elevationDeg)
	}
	if st.currentSweepIdx < 0 {
		return
	}
	for _, f := range frames {
		f.Sweeps[st.currentSweepIdx].RadialCount++
	}

	for product, blockName := range blockNames {
		if blockName != "REF" {
			continue
		}
		f := frames[product]
		sweep := f.Sweeps[st.currentSweepIdx]
		if rad.nyquistVelocity > 0 {
			sweep.NyquistVelocity = rad.nyquistVelocity
		}
		if rad.unambiguousRange > 0 {
			sweep.UnambiguousRange = rad.unambiguousRange
		}
		if rad.numGates == 0 || len(rad.gateData) == 0 {
			continue
		}
		if f.Geometry.GateCount == 0 && rad.numGates > 10 {
			f.Geometry = Geometry{
				FirstGateM:   rad.firstGateM,
				GateSpacingM: rad.gateSpacingM,
				GateCount:    rad.numGates,
			}
		}
		for g := 0; g < rad.numGates && g < len(rad.gateData); g++ {
			raw := rad.gateData[g]
			if raw <= 1 {
				continue
			}
			value := (float32(raw) - 66.0) * 0.5
			if value < validityFloor("reflectivity") {
				continue
			}
			rangeM := rad.firstGateM + float64(g)*rad.gateSpacingM
			sweep.Bins = append(sweep.Bins, Bin{AzimuthDeg: rad.azimuthDeg, RangeM: rangeM, Value: value})
		}
	}
}

// decodeMessage31Into decodes a generic radial, updates VCP/Nyquist
// state, and appends bins for whichever requested products have a
// matching moment block present.
func decodeMessage31Into(payload []byte, frames map[string]*Frame, blockNames map[string]string, st *scanState, reassembler *segment.Reassembler) {
	rad, ok := decodeRadial31(payload)
	if !ok {
		return
	}
	if !validAzimuthElevation(rad.azimuthDeg, rad.elevationDeg) {
		return
	}

	isNew := isNewSweepStatus(rad.radialStatus) ||
		(rad.elevationNumber != st.currentElevNum && st.currentSweepIdx >= 0) ||
		st.currentSweepIdx == -1

	if isNew {
		st.currentSweepIdx++
		st.currentElevNum = rad.elevationNumber
		st.currentElevDeg = rad.elevationDeg
		if rad.radialStatus == statusStartVolume {
			reassembler.Clear()
		}
		appendSweepToAll(frames, rad.elevationNumber, rad.elevationDeg)
	}
	if st.currentSweepIdx < 0 {
		return
	}
	for _, f := range frames {
		f.Sweeps[st.currentSweepIdx].RadialCount++
	}

	if rad.hasVCP {
		for _, f := range frames {
			f.VCPNumber = rad.vcpNumber
		}
	}

	for product, blockName := range blockNames {
		f := frames[product]
		sweep := f.Sweeps[st.currentSweepIdx]
		if rad.nyquistVelocity > 0 {
			sweep.NyquistVelocity = rad.nyquistVelocity
		}
		if rad.unambiguousRange > 0 {
			sweep.UnambiguousRange = rad.unambiguousRange
		}

		mb, present := rad.moments[blockName]
		if !present {
			continue
		}
		if f.Geometry.GateCount == 0 && mb.gateCount > 10 {
			f.Geometry = Geometry{
				FirstGateM:   mb.firstGateM,
				GateSpacingM: mb.gateSpacingM,
				GateCount:    mb.gateCount,
			}
		}
		floor := validityFloor(product)
		for g := 0; g < mb.gateCount; g++ {
			raw, ok := mb.gateValue(g)
			if !ok || raw <= 1 {
				continue
			}
			value := (float32(raw) - mb.offset) / mb.scale
			if product == "reflectivity" && value < floor {
				continue
			}
			rangeM := mb.firstGateM + float64(g)*mb.gateSpacingM
			sweep.Bins = append(sweep.Bins, Bin{AzimuthDeg: rad.azimuthDeg, RangeM: rangeM, Value: value})
		}
	}
}

func validAzimuthElevation(az, elev float64) bool {
	return az >= azimuthMin-0.1 && az <= azimuthMax+0.1 && elev >= elevationMin && elev <= elevationMax
}

func appendSweepToAll(frames map[string]*Frame, elevNum int, elevDeg float64) {
	for _, f := range frames {
		f.Sweeps = append(f.Sweeps, &Sweep{
			ElevationNumber: elevNum,
			ElevationDeg:    elevDeg,
		})
	}
}

func finalizeFrame(f *Frame) {
	seen := make(map[float64]bool)
	for _, s := range f.Sweeps {
		key := roundTo(s.ElevationDeg, elevationGroupEpsilon)
		if !seen[key] {
			seen[key] = true
			f.Elevations = append(f.Elevations, s.ElevationDeg)
		}
	}
	sort.Float64s(f.Elevations)
}

func roundTo(v, epsilon float64) float64 {
	if epsilon <= 0 {
		return v
	}
	return float64(int64(v/epsilon+0.5)) * epsilon
}
