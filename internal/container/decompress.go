// Package container decompresses Archive II / Message-31 NEXRAD archive
// files: a 24-byte volume header followed by an LDM-framed stream of
// bzip2-compressed records, each prefixed by a 4-byte big-endian signed
// control word whose absolute value is the compressed block length.
package container

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// VolumeHeaderSize is the fixed size of the Archive II volume header:
// 12-byte filename, 4-byte Julian date, 4-byte ms-of-day, 4-byte ICAO.
const VolumeHeaderSize = 24

// ErrMalformedContainer indicates a truncated control word, a volume
// header too short to read, or a bzip2 stream that failed to initialize.
var ErrMalformedContainer = errors.New("container: malformed container")

// ErrDecompressionError indicates the bzip2 decompressor failed on a
// framed block that otherwise had a plausible control word.
var ErrDecompressionError = errors.New("container: bzip2 decompression failed")

// growthFactor bounds reallocation cost across the 10-20x compression
// ratios typical of bzip2'd reflectivity data.
const growthFactor = 1.5

// Decompress accepts bzip2-prefixed input ("BZ" magic), LDM-framed input
// (volume header + control-word records), or already-uncompressed input
// (returned unchanged). Input that starts with an "ARCHIVE2" or "AR2V"
// volume header but is too short to hold a control word after it fails
// with ErrMalformedContainer. It never mutates data.
func Decompress(data []byte) ([]byte, error) {
	if len(data) >= 2 && data[0] == 'B' && data[1] == 'Z' {
		return decompressRawBzip2(data)
	}
	if looksLikeLDMContainer(data) {
		return decompressLDM(data)
	}
	if len(data) < VolumeHeaderSize+4 && (bytes.HasPrefix(data, []byte("ARCHIVE2")) || bytes.HasPrefix(data, []byte("AR2V"))) {
		return decompressLDM(data)
	}
	return data, nil
}

func looksLikeLDMContainer(data []byte) bool {
	if len(data) < VolumeHeaderSize+6 {
		return false
	}
	// A plausible first control word is immediately followed by a bzip2
	// block's "BZ" magic.
	cw := int32(binary.BigEndian.Uint32(data[VolumeHeaderSize:]))
	n := int(cw)
	if n < 0 {
		n = -n
	}
	if n == 0 || VolumeHeaderSize+4+n > len(data) {
		return false
	}
	return data[VolumeHeaderSize+4] == 'B' && data[VolumeHeaderSize+5] == 'Z'
}

func decompressRawBzip2(data []byte) ([]byte, error) {
	r := bzip2.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionError, err)
	}
	return out, nil
}

// decompressLDM implements the algorithm from spec §4.2: copy the 24-byte
// volume header unchanged, then repeatedly read a 4-byte big-endian
// signed control word, bzip2-decompress |control word| bytes, and append
// the result. Stops on a zero control word, a short read, or a bzip2
// failure; the decompressed output is kept only if at least one block
// was successfully decompressed.
func decompressLDM(data []byte) ([]byte, error) {
	if len(data) < VolumeHeaderSize {
		return nil, fmt.Errorf("%w: volume header too short (%d bytes)", ErrMalformedContainer, len(data))
	}

	out := make([]byte, 0, int(float64(len(data))*growthFactor))
	out = append(out, data[:VolumeHeaderSize]...)

	pos := VolumeHeaderSize
	blocksDecompressed := 0

	for {
		if pos+4 > len(data) {
			if pos == VolumeHeaderSize {
				return nil, fmt.Errorf("%w: truncated control word at offset %d", ErrMalformedContainer, pos)
			}
			break
		}

		controlWord := int32(binary.BigEndian.Uint32(data[pos:]))
		pos += 4

		if controlWord == 0 {
			break
		}

		blockLen := int(controlWord)
		if blockLen < 0 {
			blockLen = -blockLen
		}

		if pos+blockLen > len(data) {
			// Short read: stop, keeping whatever was already decompressed.
			break
		}

		block := data[pos : pos+blockLen]
		pos += blockLen

		decoded, err := decompressRawBzip2(block)
		if err != nil {
			if blocksDecompressed == 0 {
				return nil, fmt.Errorf("%w: block at offset %d: %v", ErrDecompressionError, pos-blockLen, err)
			}
			break
		}

		out = append(out, decoded...)
		blocksDecompressed++

		if cap(out)-len(out) < blockLen {
			grown := make([]byte, len(out), int(float64(cap(out))*growthFactor)+blockLen)
			copy(grown, out)
			out = grown
		}
	}

	if blocksDecompressed == 0 {
		return nil, fmt.Errorf("%w: no blocks decompressed", ErrMalformedContainer)
	}

	return out, nil
}
