package decoder

import "github.com/nexrad-fleet/levelii-ingest/internal/bigend"

// message1GateDataOffset is the fixed payload offset where the
// byte-per-gate reflectivity stream begins (spec §4.4).
const message1GateDataOffset = 46

// message1MinPayload is the minimum payload size to read azimuth,
// elevation, and radial status.
const message1MinPayload = 32

// radial1 is the decoded content of one legacy Message 1 radial.
type radial1 struct {
	azimuthDeg       float64
	elevationDeg     float64
	radialStatus     uint8
	numGates         int
	firstGateM       float64
	gateSpacingM     float64
	nyquistVelocity  float64
	unambiguousRange float64
	gateData         []byte
}

// decodeRadial1 parses a Message 1 payload (the message body following
// the 16-byte message header) per spec §4.4: azimuth and elevation are
// u16 scaled by 360/65536; first-gate and gate-size are meters; the
// byte-per-gate reflectivity stream starts at offset 46.
func decodeRadial1(payload []byte) (radial1, bool) {
	if len(payload) < message1MinPayload {
		return radial1{}, false
	}
	r := bigend.NewReader(payload)

	azRaw, ok := r.U16(8)
	if !ok {
		return radial1{}, false
	}
	elevRaw, ok := r.U16(16)
	if !ok {
		return radial1{}, false
	}
	radialStatus, ok := r.U8(1)
	if !ok {
		return radial1{}, false
	}

	rad := radial1{
		azimuthDeg:   float64(azRaw) * (360.0 / 65536.0),
		elevationDeg: float64(elevRaw) * (360.0 / 65536.0),
		radialStatus: radialStatus,
	}

	if len(payload) < message1GateDataOffset {
		return rad, true
	}

	firstGate, ok1 := r.U16(20)
	gateSize, ok2 := r.U16(22)
	numGates, ok3 := r.U16(24)
	unambRaw, ok4 := r.U16(26)
	nyquistRaw, ok5 := r.U16(28)
	if !ok1 || !ok2 || !ok3 {
		return rad, true
	}
	rad.firstGateM = float64(firstGate)
	rad.gateSpacingM = float64(gateSize)
	rad.numGates = int(numGates)
	if ok4 && unambRaw > 0 {
		rad.unambiguousRange = float64(unambRaw) * 100.0
	}
	if ok5 && nyquistRaw > 0 {
		rad.nyquistVelocity = float64(nyquistRaw) * 0.1
	}

	if rad.numGates > 0 {
		if data, ok := r.Slice(message1GateDataOffset, rad.numGates); ok {
			rad.gateData = data
		}
	}

	return rad, true
}
