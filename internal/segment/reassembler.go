// Package segment reassembles multi-segment NEXRAD messages. Messages
// with num_segments > 1 are split across consecutive LDM records and
// carry a shared sequence number; the reassembler accumulates segments
// by sequence number and emits a single concatenated message once every
// slot has been filled.
package segment

import "fmt"

// MaxSegments is a hard cap on num_segments per message (spec §4.3). The
// source treats this as a defensive bound rather than a protocol limit;
// here it is a fixed compile-time constant and is not configurable at
// runtime (see DESIGN.md open question (b)).
const MaxSegments = 2000

// Completed is a fully reassembled message: the concatenated payload of
// every segment, in segment-number order.
type Completed struct {
	SequenceNum  uint16
	MessageType  uint8
	Payload      []byte
}

type inflight struct {
	messageType uint8
	numSegments int
	slots       [][]byte
	received    int
}

// Reassembler accumulates segments keyed by sequence number.
type Reassembler struct {
	entries map[uint16]*inflight
}

// New constructs an empty Reassembler.
func New() *Reassembler {
	return &Reassembler{entries: make(map[uint16]*inflight)}
}

// Clear drops all in-flight state. Invoked on start-of-volume (radial
// status 3) to prevent cross-volume stitching.
func (r *Reassembler) Clear() {
	r.entries = make(map[uint16]*inflight)
}

// Add supplies one segment of a message. segmentNum is 1-based. On
// completion (every slot from 1..numSegments filled), it returns the
// concatenated message and removes the in-flight entry. Duplicate
// segments are idempotent: the first copy received wins and later
// duplicates are silently ignored. A segmentNum of 0, greater than
// numSegments, or a numSegments exceeding MaxSegments is rejected.
func (r *Reassembler) Add(sequenceNum uint16, messageType uint8, numSegments, segmentNum int, payload []byte) (*Completed, error) {
	if numSegments > MaxSegments {
		return nil, fmt.Errorf("segment: num_segments %d exceeds hard cap %d", numSegments, MaxSegments)
	}
	if segmentNum < 1 || segmentNum > numSegments {
		return nil, fmt.Errorf("segment: segment_num %d out of range [1,%d]", segmentNum, numSegments)
	}

	e, ok := r.entries[sequenceNum]
	if !ok {
		e = &inflight{
			messageType: messageType,
			numSegments: numSegments,
			slots:       make([][]byte, numSegments),
		}
		r.entries[sequenceNum] = e
	}

	idx := segmentNum - 1
	if e.slots[idx] == nil {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		e.slots[idx] = cp
		e.received++
	}

	if e.received < e.numSegments {
		return nil, nil
	}

	total := 0
	for _, s := range e.slots {
		total += len(s)
	}
	combined := make([]byte, 0, total)
	for _, s := range e.slots {
		combined = append(combined, s...)
	}

	delete(r.entries, sequenceNum)

	return &Completed{
		SequenceNum: sequenceNum,
		MessageType: e.messageType,
		Payload:     combined,
	}, nil
}

// Pending reports the number of sequence numbers with in-flight partial
// messages. Exposed for tests and diagnostics.
func (r *Reassembler) Pending() int {
	return len(r.entries)
}
