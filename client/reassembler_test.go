package client

import (
	"testing"

	"github.com/opd-ai/framestream/metrics"
	"github.com/opd-ai/framestream/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 250 packets: frames 0 and 1 complete, frame 2 half full.
func TestGeneratePromotesCompleteFrames(t *testing.T) {
	r := NewReassembler(40, 64, nil)
	for seq := uint32(0); seq < 250; seq++ {
		r.Insert(transport.NewDataPacket(seq, 0, nil), 0)
	}

	res := r.Generate(0)
	assert.Equal(t, 2, res.Promoted)
	assert.Equal(t, []uint32{0, 1}, r.ReadyIndices())
	assert.Equal(t, []uint32{2}, r.PendingIndices())
	assert.Equal(t, 50, r.Slots(2))
}

func TestGenerateRespectsCapacity(t *testing.T) {
	m := metrics.New(nil)
	r := NewReassembler(40, 0, m)
	for i := uint32(0); i < 45; i++ {
		fillFrame(r, i, transport.FrameSize)
	}

	res := r.Generate(0)
	assert.Equal(t, 40, res.Promoted)
	assert.Equal(t, 5, res.Overflow)
	assert.Equal(t, 40, r.Ready())
	assert.Equal(t, 0, r.Pending())
	assert.Equal(t, uint32(39), r.ReadyIndices()[39])
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropOverflow)))

	// A full buffer stays full.
	fillFrame(r, 50, transport.FrameSize)
	r.Generate(0)
	assert.LessOrEqual(t, r.Ready(), 40)
}

func TestGenerateDropsStaleFrames(t *testing.T) {
	m := metrics.New(nil)
	r := NewReassembler(40, 0, m)
	fillFrame(r, 3, transport.FrameSize)
	fillFrame(r, 2, 10)
	fillFrame(r, 5, transport.FrameSize)
	fillFrame(r, 6, 10)

	res := r.Generate(5)
	assert.Equal(t, 1, res.Stale)
	assert.Equal(t, 1, res.StalePartial)
	assert.Equal(t, []uint32{5}, r.ReadyIndices())
	assert.Equal(t, []uint32{6}, r.PendingIndices())

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.DroppedStale)
	assert.Equal(t, uint64(1), stats.DroppedStalePartial)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropStalePartial)))
}

func TestInsertEvictsLowestWhenSaturated(t *testing.T) {
	m := metrics.New(nil)
	r := NewReassembler(40, 3, m)
	for i := uint32(10); i < 15; i++ {
		fillFrame(r, i, 1)
	}
	assert.Equal(t, []uint32{12, 13, 14}, r.PendingIndices())
	assert.Equal(t, uint64(2), r.Stats().DroppedSaturated)

	// A frame below every pending frame is refused rather than evicting.
	assert.False(t, r.Insert(transport.NewDataPacket(5*transport.FrameSize, 0, nil), 0))
	assert.Equal(t, []uint32{12, 13, 14}, r.PendingIndices())
	assert.Equal(t, uint64(3), r.Stats().DroppedSaturated)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesDropped.WithLabelValues(metrics.DropSaturated)))

	// Packets for frames already pending never evict.
	fillFrame(r, 13, transport.FrameSize)
	assert.Equal(t, 3, r.Pending())

	res := r.Generate(0)
	assert.Equal(t, 1, res.Promoted)
	assert.Equal(t, []uint32{12, 14}, r.PendingIndices())
}

func TestInsertBoundsPendingWithoutGenerate(t *testing.T) {
	r := NewReassembler(40, DefaultMaxPendingFrames, nil)
	for i := uint32(0); i < 10000; i++ {
		r.Insert(transport.NewDataPacket(i*transport.FrameSize, 0, nil), 0)
		require.LessOrEqual(t, r.Pending(), DefaultMaxPendingFrames)
	}

	assert.Equal(t, DefaultMaxPendingFrames, r.Pending())
	indices := r.PendingIndices()
	assert.Equal(t, uint32(10000-DefaultMaxPendingFrames), indices[0])
	assert.Equal(t, uint64(10000-DefaultMaxPendingFrames), r.Stats().DroppedSaturated)
}

func TestInsertIgnoresPlayedFrames(t *testing.T) {
	r := NewReassembler(40, 0, nil)
	fillFrame(r, 0, transport.FrameSize)
	r.Generate(0)
	_, ok := r.Take(0)
	require.True(t, ok)

	// curFrame has moved past frame 0; a late copy of one of its packets
	// must not reopen it.
	assert.True(t, r.Insert(transport.NewDataPacket(5, 0, nil), 1))
	assert.Equal(t, 0, r.Pending())

	res := r.Generate(1)
	assert.Equal(t, 0, res.StalePartial)

	stats := r.Stats()
	assert.Equal(t, uint64(100), stats.Inserted)
	assert.Equal(t, uint64(1), stats.Duplicates)
	assert.Equal(t, uint64(0), stats.DroppedStalePartial)
}

func TestInsertDuplicateOverwrites(t *testing.T) {
	r := NewReassembler(40, 0, nil)

	assert.False(t, r.Insert(transport.NewDataPacket(7, 0, []byte("old")), 0))
	assert.True(t, r.Insert(transport.NewDataPacket(7, 0, []byte("new")), 0))
	assert.Equal(t, 1, r.Slots(0))

	fillFrame(r, 0, transport.FrameSize)
	assert.Equal(t, transport.FrameSize, r.Slots(0))
	fillFrame(r, 0, transport.FrameSize)
	assert.Equal(t, transport.FrameSize, r.Slots(0))

	res := r.Generate(0)
	require.Equal(t, 1, res.Promoted)

	// Late duplicates of a promoted frame do not start a new partial frame.
	assert.True(t, r.Insert(transport.NewDataPacket(42, 0, nil), 0))
	assert.Equal(t, 0, r.Pending())
	res = r.Generate(0)
	assert.Equal(t, 0, res.Promoted)
	assert.Equal(t, 1, r.Ready())

	stats := r.Stats()
	assert.Equal(t, uint64(100), stats.Inserted)
	assert.Equal(t, uint64(1+1+100+1), stats.Duplicates)
	assert.Equal(t, uint64(1), stats.Promoted)
}

func TestFrameKeepsPayloadOrder(t *testing.T) {
	r := NewReassembler(40, 0, nil)
	for sub := transport.FrameSize - 1; sub >= 0; sub-- {
		r.Insert(transport.NewDataPacket(uint32(100+sub), 0, []byte{byte(sub)}), 0)
	}
	r.Generate(0)

	frame, ok := r.Take(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), frame.Index)
	require.Len(t, frame.Payloads, transport.FrameSize)
	for sub, p := range frame.Payloads {
		assert.Equal(t, []byte{byte(sub)}, p)
	}
	assert.Equal(t, transport.FrameSize, frame.Size())

	_, ok = r.Take(1)
	assert.False(t, ok)
}
