package decoder

import (
	"github.com/nexrad-fleet/levelii-ingest/internal/bigend"
)

const (
	statusStartElevation          = 0
	statusIntermediate            = 1
	statusEndElevation            = 2
	statusStartVolume             = 3
	statusEndVolume                = 4
	statusStartElevationSegmented = 5
)

// maxBlockPointers caps the number of data block pointers walked per
// radial (spec §4.4: "capped at 100").
const maxBlockPointers = 100

// maxMomentGates caps the gate count accepted from a moment block (spec
// §4.4: "cap 8000").
const maxMomentGates = 8000

// message31RadialHeaderSize is the fixed portion of the Message 31
// header preceding the variable-length block pointer array.
const message31RadialHeaderSize = 32

// momentBlock is a decoded moment ("D"-type) data block.
type momentBlock struct {
	gateCount    int
	firstGateM   float64
	gateSpacingM float64
	scale        float32
	offset       float32
	wordSize     int // 8 or 16
	data         []byte
}

// radial31 is the decoded content of one Message 31 radial.
type radial31 struct {
	azimuthDeg       float64
	elevationDeg     float64
	elevationNumber  int
	radialStatus     uint8
	vcpNumber        int
	hasVCP           bool
	nyquistVelocity  float64
	unambiguousRange float64
	moments          map[string]momentBlock
}

// decodeRadial31 parses a Message 31 payload (the message body following
// the 16-byte message header) into a radial31.
func decodeRadial31(payload []byte) (radial31, bool) {
	r := bigend.NewReader(payload)

	if len(payload) < message31RadialHeaderSize {
		return radial31{}, false
	}

	azimuthAngle, ok := r.F32(12)
	if !ok {
		return radial31{}, false
	}
	radialStatus, ok := r.U8(21)
	if !ok {
		return radial31{}, false
	}
	elevNumber, ok := r.U8(22)
	if !ok {
		return radial31{}, false
	}
	elevAngle, ok := r.F32(24)
	if !ok {
		return radial31{}, false
	}
	blockCount, ok := r.U16(30)
	if !ok {
		return radial31{}, false
	}

	rad := radial31{
		azimuthDeg:      float64(azimuthAngle),
		elevationDeg:    float64(elevAngle),
		elevationNumber: int(elevNumber),
		radialStatus:    radialStatus,
		moments:         make(map[string]momentBlock),
	}

	count := int(blockCount)
	if count > maxBlockPointers {
		count = maxBlockPointers
	}

	for b := 0; b < count; b++ {
		ptrOffset := message31RadialHeaderSize + b*4
		blockOff, ok := r.U32(ptrOffset)
		if !ok {
			continue
		}
		off := int(blockOff)
		if !bigend.Deref(off, 4, len(payload)) {
			continue
		}
		nameBytes, ok := r.Slice(off+1, 3)
		if !ok {
			continue
		}
		name := string(nameBytes)
		blockType, _ := r.U8(off)

		switch {
		case name == "VOL":
			if vcp, ok := parseVolumeBlock(r, off, len(payload)); ok {
				rad.vcpNumber = vcp
				rad.hasVCP = true
			}
		case name == "RAD":
			if nyq, ur, ok := parseRadialBlock(r, off, len(payload)); ok {
				rad.nyquistVelocity = nyq
				rad.unambiguousRange = ur
			}
		case blockType == 'D':
			if mb, ok := parseMomentBlock(r, off, len(payload)); ok {
				rad.moments[name] = mb
			}
		}
	}

	return rad, true
}

// parseVolumeBlock reads the VCP number from a VOL data block.
func parseVolumeBlock(r *bigend.Reader, off, payloadSize int) (int, bool) {
	if !bigend.Deref(off, 44, payloadSize) {
		return 0, false
	}
	vcp, ok := r.U16(off + 40)
	if !ok {
		return 0, false
	}
	return int(vcp), true
}

// parseRadialBlock reads Nyquist velocity (u16 x 0.01 m/s) and
// unambiguous range (u16 x 100 m) from a RAD data block.
func parseRadialBlock(r *bigend.Reader, off, payloadSize int) (nyquist, unambiguousRange float64, ok bool) {
	if !bigend.Deref(off, 20, payloadSize) {
		return 0, 0, false
	}
	urRaw, ok1 := r.U16(off + 6)
	nyqRaw, ok2 := r.U16(off + 16)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return float64(nyqRaw) * 0.01, float64(urRaw) * 100.0, true
}

// parseMomentBlock reads a "D"-type moment block header and slices its
// gate data, without dequantizing (that happens per-product in the
// caller, since scale/offset semantics are identical across products).
func parseMomentBlock(r *bigend.Reader, off, payloadSize int) (momentBlock, bool) {
	const headerSize = 28
	if !bigend.Deref(off, headerSize, payloadSize) {
		return momentBlock{}, false
	}
	numGates, ok1 := r.U16(off + 8)
	firstGate, ok2 := r.U16(off + 10)
	gateSpacing, ok3 := r.U16(off + 12)
	wordSizeRaw, ok4 := r.U8(off + 18)
	scale, ok5 := r.F32(off + 20)
	offset, ok6 := r.F32(off + 24)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return momentBlock{}, false
	}

	wordSize := int(wordSizeRaw)
	if wordSize == 0 {
		wordSize = 8
	}
	if wordSize != 8 && wordSize != 16 {
		return momentBlock{}, false
	}
	if numGates == 0 || int(numGates) > maxMomentGates || gateSpacing == 0 {
		return momentBlock{}, false
	}

	dataSize := int(numGates) * (wordSize / 8)
	data, ok := r.Slice(off+headerSize, dataSize)
	if !ok {
		return momentBlock{}, false
	}

	return momentBlock{
		gateCount:    int(numGates),
		firstGateM:   float64(firstGate),
		gateSpacingM: float64(gateSpacing),
		scale:        scale,
		offset:       offset,
		wordSize:     wordSize,
		data:         data,
	}, true
}

// gateValue returns the raw (un-dequantized) value at gate index g.
func (m momentBlock) gateValue(g int) (uint16, bool) {
	if g < 0 || g >= m.gateCount {
		return 0, false
	}
	if m.wordSize == 16 {
		if (g+1)*2 > len(m.data) {
			return 0, false
		}
		return uint16(m.data[g*2])<<8 | uint16(m.data[g*2+1]), true
	}
	if g >= len(m.data) {
		return 0, false
	}
	return uint16(m.data[g]), true
}
