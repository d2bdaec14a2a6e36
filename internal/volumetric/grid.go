// Package volumetric projects decoded polar radial bins onto fixed-size
// ray/gate grids and compresses the result into a sparse bitmask +
// values encoding suitable for on-disk storage (spec-equivalent to the
// source's volumetric projector).
package volumetric

import (
	"math"

	"github.com/nexrad-fleet/levelii-ingest/internal/decoder"
)

// maxVolumetricCells bounds the 3-D grid allocation; larger requests
// skip the volumetric step entirely rather than allocate.
const maxVolumetricCells = 200_000_000

// rayCount3D is the fixed ray resolution of the 3-D volumetric grid.
const rayCount3D = 720

// Grid2D is a per-sweep quantized [ray][gate] projection.
type Grid2D struct {
	ElevationDeg float64
	RayCount     int
	GateCount    int
	FirstGateM   float64
	GateSpacingM float64
	Cells        []uint8 // row-major, length RayCount*GateCount
}

// Grid3D is a quantized [tilt][ray][gate] volumetric projection.
type Grid3D struct {
	Tilts        []float64
	RayCount     int
	GateCount    int
	FirstGateM   float64
	GateSpacingM float64
	Cells        []uint8 // row-major, length len(Tilts)*RayCount*GateCount
}

// rayResolutionFactor returns 1.0 for sweeps with <= 400 radials (360-ray
// grid) and 2.0 otherwise (720-ray grid), per spec §4.5. radialCount must
// be the true per-radial count (decoder.Sweep.RadialCount), not an
// estimate derived from the bins that survived gate filtering — a
// clear-air radial with zero valid gates still counts as one radial.
func rayResolutionFactor(radialCount int) float64 {
	if radialCount <= 400 {
		return 1.0
	}
	return 2.0
}

// gateIndex computes floor((range-firstGate)/gateSpacing) and reports
// whether it falls within [0, gateCount).
func gateIndex(rangeM, firstGateM, gateSpacingM float64, gateCount int) (int, bool) {
	if gateSpacingM == 0 {
		return 0, false
	}
	idx := int(math.Floor((rangeM - firstGateM) / gateSpacingM))
	if idx < 0 || idx >= gateCount {
		return 0, false
	}
	return idx, true
}

// ProjectSweep2D projects one sweep's bins onto a 2-D ray/gate grid,
// quantizing with the product's parameter table. geom supplies the
// frozen gate geometry for the owning Frame.
func ProjectSweep2D(sweep *decoder.Sweep, product string, geom decoder.Geometry) (*Grid2D, bool) {
	params, ok := decoder.ParamsForProduct(product)
	if !ok || geom.GateCount <= 0 {
		return nil, false
	}

	factor := rayResolutionFactor(sweep.RadialCount)
	rayCount := 360
	if factor == 2.0 {
		rayCount = 720
	}

	g := &Grid2D{
		ElevationDeg: sweep.ElevationDeg,
		RayCount:     rayCount,
		GateCount:    geom.GateCount,
		FirstGateM:   geom.FirstGateM,
		GateSpacingM: geom.GateSpacingM,
		Cells:        make([]uint8, rayCount*geom.GateCount),
	}

	for _, bin := range sweep.Bins {
		gi, ok := gateIndex(bin.RangeM, geom.FirstGateM, geom.GateSpacingM, geom.GateCount)
		if !ok {
			continue
		}
		rayIdx := int(math.Floor(bin.AzimuthDeg*factor+0.01)) % rayCount
		if rayIdx < 0 {
			rayIdx += rayCount
		}
		q := decoder.Quantize(bin.Value, params)
		writeMax(g.Cells, rayIdx*geom.GateCount+gi, q)
	}

	return g, true
}

// ProjectVolume3D builds the full volumetric grid across every tilt
// within epsilon of an elevation in tilts, splatting 1-degree-resolution
// sweeps into the adjacent ray to densify per spec §4.5. It returns
// (nil, false) if the requested allocation would exceed
// maxVolumetricCells.
func ProjectVolume3D(sweeps []*decoder.Sweep, tilts []float64, product string, geom decoder.Geometry, epsilon float64) (*Grid3D, bool) {
	params, ok := decoder.ParamsForProduct(product)
	if !ok || geom.GateCount <= 0 || len(tilts) == 0 {
		return nil, false
	}

	totalCells := len(tilts) * rayCount3D * geom.GateCount
	if totalCells > maxVolumetricCells {
		return nil, false
	}

	g := &Grid3D{
		Tilts:        append([]float64{}, tilts...),
		RayCount:     rayCount3D,
		GateCount:    geom.GateCount,
		FirstGateM:   geom.FirstGateM,
		GateSpacingM: geom.GateSpacingM,
		Cells:        make([]uint8, totalCells),
	}

	for _, sweep := range sweeps {
		tiltIdx, ok := matchTilt(sweep.ElevationDeg, tilts, epsilon)
		if !ok {
			continue
		}
		isOneDegree := rayResolutionFactor(sweep.RadialCount) == 1.0

		base := tiltIdx * rayCount3D * geom.GateCount
		for _, bin := range sweep.Bins {
			gi, ok := gateIndex(bin.RangeM, geom.FirstGateM, geom.GateSpacingM, geom.GateCount)
			if !ok {
				continue
			}
			rayIdx := int(math.Floor(bin.AzimuthDeg*2+0.01)) % rayCount3D
			if rayIdx < 0 {
				rayIdx += rayCount3D
			}
			q := decoder.Quantize(bin.Value, params)
			writeMax(g.Cells, base+rayIdx*geom.GateCount+gi, q)
			if isOneDegree {
				splatIdx := (rayIdx + 1) % rayCount3D
				writeMax(g.Cells, base+splatIdx*geom.GateCount+gi, q)
			}
		}
	}

	return g, true
}

func writeMax(cells []uint8, idx int, q uint8) {
	if q > cells[idx] {
		cells[idx] = q
	}
}

// MergeSweepsForTilt concatenates the bins of every sweep within epsilon
// of tilt into one synthetic sweep, summing RadialCount so the merged
// sweep's ray-resolution decision reflects every contributing radial.
// A VCP split cut (e.g. separate surveillance and Doppler sweeps both at
// elevation_number's 0.5°) produces multiple decoder.Sweep values at the
// same nominal elevation; spec §4.5's "per-tilt" 2-D grid aggregates all
// of them into a single grid, the same way ProjectVolume3D already does
// via matchTilt/writeMax.
func MergeSweepsForTilt(sweeps []*decoder.Sweep, tilt, epsilon float64) *decoder.Sweep {
	merged := &decoder.Sweep{ElevationDeg: tilt}
	for _, sweep := range sweeps {
		if math.Abs(sweep.ElevationDeg-tilt) > epsilon {
			continue
		}
		merged.Bins = append(merged.Bins, sweep.Bins...)
		merged.RadialCount += sweep.RadialCount
		if sweep.NyquistVelocity > 0 {
			merged.NyquistVelocity = sweep.NyquistVelocity
		}
		if sweep.UnambiguousRange > 0 {
			merged.UnambiguousRange = sweep.UnambiguousRange
		}
	}
	return merged
}

func matchTilt(elevDeg float64, tilts []float64, epsilon float64) (int, bool) {
	for i, t := range tilts {
		if math.Abs(elevDeg-t) <= epsilon {
			return i, true
		}
	}
	return 0, false
}
