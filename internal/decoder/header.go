package decoder

import "github.com/nexrad-fleet/levelii-ingest/internal/bigend"

// messageHeaderSize is the fixed 16-byte message header: size (halfwords),
// RDA redundancy channel, type, sequence number, Julian date, ms-of-day,
// number of segments, segment number.
const messageHeaderSize = 16

// archive2SlotSize is the fixed-width slot used by ARCHIVE2-framed
// metadata messages at the start of the stream (134 slots).
const archive2SlotSize = 2432

// archive2MetadataSlots is the number of fixed-width metadata slots
// immediately following the 24-byte volume header in ARCHIVE2 framing.
const archive2MetadataSlots = 134

// headerSearchFallbackWindow bounds the byte-by-byte fallback search for
// a plausible message header once the fast-path offsets fail. Preserved
// verbatim from the reference implementation (spec §9 open question (a)).
const headerSearchFallbackWindow = 4096

// maxMessagesPerBuffer bounds the scan loop against pathological input.
const maxMessagesPerBuffer = 200000

// messageHeader is a parsed 16-byte message header.
type messageHeader struct {
	sizeHalfwords int
	rdaRedundancy uint8
	msgType       uint8
	sequenceNum   uint16
	julianDate    uint16
	milliseconds  uint32
	numSegments   int
	segmentNum    int
}

// parseMessageHeader reads a messageHeader at offset, returning ok=false
// if the read is out of bounds.
func parseMessageHeader(r *bigend.Reader, offset int) (messageHeader, bool) {
	sizeHW, ok := r.U16(offset)
	if !ok {
		return messageHeader{}, false
	}
	redundancy, ok := r.U8(offset + 2)
	if !ok {
		return messageHeader{}, false
	}
	msgType, ok := r.U8(offset + 3)
	if !ok {
		return messageHeader{}, false
	}
	seq, ok := r.U16(offset + 4)
	if !ok {
		return messageHeader{}, false
	}
	julian, ok := r.U16(offset + 6)
	if !ok {
		return messageHeader{}, false
	}
	ms, ok := r.U32(offset + 8)
	if !ok {
		return messageHeader{}, false
	}
	numSeg, ok := r.U16(offset + 12)
	if !ok {
		return messageHeader{}, false
	}
	segNum, ok := r.U16(offset + 14)
	if !ok {
		return messageHeader{}, false
	}
	return messageHeader{
		sizeHalfwords: int(sizeHW),
		rdaRedundancy: redundancy,
		msgType:       msgType,
		sequenceNum:   seq,
		julianDate:    julian,
		milliseconds:  ms,
		numSegments:   int(numSeg),
		segmentNum:    int(segNum),
	}, true
}

// plausibleHeader validates a candidate header per spec §4.4 step 2:
// 1 <= type <= 32, 8 <= size_halfwords < 32768, julian_date > 10000.
func plausibleHeader(h messageHeader) bool {
	return h.msgType > 0 && h.msgType <= 32 &&
		h.sizeHalfwords >= 8 && h.sizeHalfwords < 32768 &&
		h.julianDate > 10000
}

// findHeader locates a plausible message header starting the search at
// offset. It first tries offset and offset+12 (spec §4.4 step 2); if
// neither is plausible and archive2 framing is in effect, it falls back
// to a byte-by-byte search of up to headerSearchFallbackWindow bytes
// (spec §4.4 step 3). It returns the absolute offset of the header and
// whether one was found.
func findHeader(r *bigend.Reader, offset int, archive2 bool) (int, messageHeader, bool) {
	for _, skip := range [2]int{0, 12} {
		cand := offset + skip
		if h, ok := parseMessageHeader(r, cand); ok && plausibleHeader(h) {
			return cand, h, true
		}
	}

	if !archive2 {
		return 0, messageHeader{}, false
	}

	for skip := 1; skip <= headerSearchFallbackWindow; skip++ {
		cand := offset + skip
		if h, ok := parseMessageHeader(r, cand); ok && plausibleHeader(h) {
			return cand, h, true
		}
	}

	return 0, messageHeader{}, false
}
