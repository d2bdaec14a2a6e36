// Package storagecodec implements the on-disk .RDA artifact format, an
// async single-writer persistence queue, and a per-product gzip-
// compressed JSON index with age/count-based retention.
package storagecodec

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Metadata is the short-keyed header embedded in every .RDA file.
type Metadata struct {
	Station      string    `json:"s"`
	Product      string    `json:"p"`
	TimestampRFC string    `json:"t"`
	ElevationDeg float64   `json:"e,omitempty"`
	Factor       float64   `json:"f,omitempty"`
	RayCount     int       `json:"r,omitempty"`
	GateCount    int       `json:"g,omitempty"`
	GateSpacingM float64   `json:"gs,omitempty"`
	FirstGateM   float64   `json:"fg,omitempty"`
	VCPNumber    int       `json:"v,omitempty"`
	Tilts        []float64 `json:"tilts,omitempty"`
}

// Artifact is a decoded .RDA file: its metadata plus the bitmask and
// values byte streams it wraps.
type Artifact struct {
	Metadata Metadata
	Bitmask  []byte
	Values   []byte
}

// Encode writes an Artifact as a gzip-wrapped stream: a little-endian
// u32 metadata length, the metadata JSON, the bitmask bytes, then the
// values bytes.
func Encode(w io.Writer, a Artifact) error {
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("storagecodec: marshal metadata: %w", err)
	}

	gz := gzip.NewWriter(w)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metaJSON)))

	if _, err := gz.Write(lenBuf[:]); err != nil {
		gz.Close()
		return fmt.Errorf("storagecodec: write metadata length: %w", err)
	}
	if _, err := gz.Write(metaJSON); err != nil {
		gz.Close()
		return fmt.Errorf("storagecodec: write metadata: %w", err)
	}
	if _, err := gz.Write(a.Bitmask); err != nil {
		gz.Close()
		return fmt.Errorf("storagecodec: write bitmask: %w", err)
	}
	if _, err := gz.Write(a.Values); err != nil {
		gz.Close()
		return fmt.Errorf("storagecodec: write values: %w", err)
	}
	return gz.Close()
}

// TotalCells returns the grid cell count implied by meta: for a
// volumetric artifact (non-empty Tilts) that's tilts*rays*gates; for a
// per-tilt artifact it's rays*gates.
func TotalCells(meta Metadata) int {
	if len(meta.Tilts) > 0 {
		return len(meta.Tilts) * meta.RayCount * meta.GateCount
	}
	return meta.RayCount * meta.GateCount
}

// Decode reads an Artifact produced by Encode. The bitmask/values split
// point is derived from the decoded metadata's grid dimensions, since
// neither is length-prefixed on disk.
func Decode(r io.Reader) (Artifact, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return Artifact{}, fmt.Errorf("storagecodec: gzip reader: %w", err)
	}
	defer gz.Close()

	var lenBuf [4]byte
	if _, err := io.ReadFull(gz, lenBuf[:]); err != nil {
		return Artifact{}, fmt.Errorf("storagecodec: read metadata length: %w", err)
	}
	metaLen := binary.LittleEndian.Uint32(lenBuf[:])

	metaJSON := make([]byte, metaLen)
	if _, err := io.ReadFull(gz, metaJSON); err != nil {
		return Artifact{}, fmt.Errorf("storagecodec: read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return Artifact{}, fmt.Errorf("storagecodec: unmarshal metadata: %w", err)
	}

	rest, err := io.ReadAll(gz)
	if err != nil {
		return Artifact{}, fmt.Errorf("storagecodec: read payload: %w", err)
	}

	bitmaskLen := (TotalCells(meta) + 7) / 8
	if bitmaskLen > len(rest) {
		return Artifact{}, fmt.Errorf("storagecodec: bitmask length %d exceeds payload %d", bitmaskLen, len(rest))
	}

	return Artifact{
		Metadata: meta,
		Bitmask:  rest[:bitmaskLen],
		Values:   rest[bitmaskLen:],
	}, nil
}

// EncodeToBytes is a convenience wrapper returning the encoded bytes
// directly, for callers that already have the whole artifact in memory.
func EncodeToBytes(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
