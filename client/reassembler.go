package client

import (
	"slices"

	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/transport"
)

// Frame is a complete run of transport.FrameSize packets ready for playback.
type Frame struct {
	Index uint32
	// Payloads holds one payload per sub-sequence, in order.
	Payloads [][]byte
}

// Size returns the total payload bytes in the frame.
func (f *Frame) Size() int {
	size := 0
	for _, p := range f.Payloads {
		size += len(p)
	}
	return size
}

// GenerateResult summarizes one Generate cycle.
type GenerateResult struct {
	Promoted      int
	Overflow      int
	Stale         int
	StalePartial  int
	ReadyAfter    int
	PendingAfter  int
	PromotedIndex []uint32
}

// ReassemblerStats holds cumulative reassembler counters.
type ReassemblerStats struct {
	Inserted            uint64 `json:"inserted"`
	Duplicates          uint64 `json:"duplicates"`
	Promoted            uint64 `json:"promoted"`
	DroppedOverflow     uint64 `json:"dropped_overflow"`
	DroppedStale        uint64 `json:"dropped_stale"`
	DroppedStalePartial uint64 `json:"dropped_stale_partial"`
	DroppedSaturated    uint64 `json:"dropped_saturated"`
}

// Reassembler groups data packets into frames. The packet buffer holds
// frames still being filled; the frame buffer holds complete frames waiting
// for playback and never exceeds its capacity.
//
// It is not safe for concurrent use; the client drives it from the loop.
type Reassembler struct {
	capacity   int
	maxPending int
	metrics    *metrics.Metrics

	pending map[uint32]map[uint32][]byte
	ready   map[uint32]*Frame
	stats   ReassemblerStats
}

// NewReassembler creates a reassembler whose frame buffer holds at most
// capacity frames. maxPending bounds the number of partial frames kept; zero
// or less disables that bound.
func NewReassembler(capacity, maxPending int, m *metrics.Metrics) *Reassembler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Reassembler{
		capacity:   capacity,
		maxPending: maxPending,
		metrics:    m,
		pending:    make(map[uint32]map[uint32][]byte),
		ready:      make(map[uint32]*Frame),
	}
}

// Insert stores a data packet in its frame slot. A packet for a slot that is
// already filled overwrites it and reports true. Packets for frames below
// curFrame, which have been played or skipped, and for frames already in the
// frame buffer are ignored and also reported as duplicates.
//
// Opening a new partial frame when maxPending frames are already pending
// evicts the lowest pending frame. A packet whose frame would itself be the
// lowest is dropped instead. Both count as saturated drops.
func (r *Reassembler) Insert(packet *transport.Packet, curFrame uint32) bool {
	index := packet.FrameIndex()
	sub := packet.SubSequence()

	if index < curFrame {
		r.stats.Duplicates++
		return true
	}
	if _, promoted := r.ready[index]; promoted {
		r.stats.Duplicates++
		return true
	}

	slots, ok := r.pending[index]
	if !ok {
		if !r.makeRoom(index) {
			r.drop(metrics.DropSaturated)
			return false
		}
		slots = make(map[uint32][]byte)
		r.pending[index] = slots
	}
	_, dup := slots[sub]
	slots[sub] = packet.Payload

	if dup {
		r.stats.Duplicates++
	} else {
		r.stats.Inserted++
	}
	return dup
}

// makeRoom keeps the packet buffer within maxPending before index is
// opened. It reports false when index is below every pending frame.
func (r *Reassembler) makeRoom(index uint32) bool {
	if r.maxPending <= 0 || len(r.pending) < r.maxPending {
		return true
	}
	lowest, first := uint32(0), true
	for i := range r.pending {
		if first || i < lowest {
			lowest, first = i, false
		}
	}
	if index < lowest {
		return false
	}
	delete(r.pending, lowest)
	r.drop(metrics.DropSaturated)
	r.metrics.PendingFrames.Set(float64(len(r.pending)))
	return true
}

// Generate promotes complete frames into the frame buffer, lowest index
// first. A complete frame is dropped when the frame buffer is full or its
// index is below curFrame. Partial frames below curFrame are evicted.
func (r *Reassembler) Generate(curFrame uint32) GenerateResult {
	var res GenerateResult

	for _, index := range sortedKeys(r.pending) {
		slots := r.pending[index]
		complete := len(slots) >= transport.FrameSize

		switch {
		case index < curFrame && complete:
			delete(r.pending, index)
			res.Stale++
			r.drop(metrics.DropStale)
		case index < curFrame:
			delete(r.pending, index)
			res.StalePartial++
			r.drop(metrics.DropStalePartial)
		case !complete:
		case len(r.ready) >= r.capacity:
			delete(r.pending, index)
			res.Overflow++
			r.drop(metrics.DropOverflow)
		default:
			delete(r.pending, index)
			r.ready[index] = assemble(index, slots)
			res.Promoted++
			res.PromotedIndex = append(res.PromotedIndex, index)
			r.stats.Promoted++
			r.metrics.FramesPromoted.Inc()
		}
	}

	res.ReadyAfter = len(r.ready)
	res.PendingAfter = len(r.pending)
	r.metrics.ReadyFrames.Set(float64(res.ReadyAfter))
	r.metrics.PendingFrames.Set(float64(res.PendingAfter))
	return res
}

func (r *Reassembler) drop(reason string) {
	switch reason {
	case metrics.DropOverflow:
		r.stats.DroppedOverflow++
	case metrics.DropStale:
		r.stats.DroppedStale++
	case metrics.DropStalePartial:
		r.stats.DroppedStalePartial++
	case metrics.DropSaturated:
		r.stats.DroppedSaturated++
	}
	r.metrics.FramesDropped.WithLabelValues(reason).Inc()
}

func assemble(index uint32, slots map[uint32][]byte) *Frame {
	frame := &Frame{
		Index:    index,
		Payloads: make([][]byte, transport.FrameSize),
	}
	for sub, payload := range slots {
		frame.Payloads[sub] = payload
	}
	return frame
}

// Take removes and returns the ready frame with the given index.
func (r *Reassembler) Take(index uint32) (*Frame, bool) {
	frame, ok := r.ready[index]
	if ok {
		delete(r.ready, index)
	}
	return frame, ok
}

// Ready returns the number of frames in the frame buffer.
func (r *Reassembler) Ready() int {
	return len(r.ready)
}

// Pending returns the number of partial frames in the packet buffer.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Slots returns how many sub-sequences of a pending frame have arrived.
func (r *Reassembler) Slots(index uint32) int {
	return len(r.pending[index])
}

// ReadyIndices returns the ready frame indices in ascending order.
func (r *Reassembler) ReadyIndices() []uint32 {
	return sortedKeys(r.ready)
}

// PendingIndices returns the partial frame indices in ascending order.
func (r *Reassembler) PendingIndices() []uint32 {
	return sortedKeys(r.pending)
}

// Stats returns the cumulative counters.
func (r *Reassembler) Stats() ReassemblerStats {
	return r.stats
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
