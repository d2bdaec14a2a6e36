package decoder

import "math"

// Quantize clamps value to [params.Min, params.Max], linearly maps it to
// [0, 255], and rounds to the nearest integer. Value 0 is the sentinel
// "empty" cell and is never produced by Quantize for an in-range value
// unless the value lies within half a quantum of params.Min and rounds
// down to 0 — callers
// that need to distinguish "empty" from "quantized to the floor" should
// consult the reflectivity floor check before quantizing.
func Quantize(value float32, params ProductParams) uint8 {
	clamped := value
	if clamped < params.Min {
		clamped = params.Min
	}
	if clamped > params.Max {
		clamped = params.Max
	}
	span := params.Max - params.Min
	if span <= 0 {
		return 0
	}
	scaled := float64(clamped-params.Min) / float64(span) * 255.0
	return uint8(math.Round(scaled))
}

// Dequantize inverts Quantize. Round-trip error is bounded by one
// quantum, (params.Max-params.Min)/255.
func Dequantize(q uint8, params ProductParams) float32 {
	span := params.Max - params.Min
	return params.Min + float32(q)/255.0*span
}

// Quantum returns the step size of one quantization unit for params.
func Quantum(params ProductParams) float32 {
	return (params.Max - params.Min) / 255.0
}
