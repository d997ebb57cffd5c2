package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/opd-ai/framestream/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPacketSerialize tests the Packet.Serialize method.
func TestPacketSerialize(t *testing.T) {
	tests := []struct {
		name    string
		packet  *Packet
		wantErr error
	}{
		{
			name:   "data packet",
			packet: NewDataPacket(1234, 99, []byte{1, 2, 3, 4}),
		},
		{
			name:   "header only data",
			packet: NewDataPacket(0, 0, nil),
		},
		{
			name:   "pause",
			packet: NewControlPacket(KindPause, 5),
		},
		{
			name:   "resume",
			packet: NewControlPacket(KindResume, 5),
		},
		{
			name:    "zero kind",
			packet:  &Packet{},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "oversize payload",
			packet:  NewDataPacket(1, 1, make([]byte, limits.MaxPayload+1)),
			wantErr: limits.ErrMessageTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.packet.Serialize()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			require.Len(t, result, limits.HeaderSize+len(tt.packet.Payload))
			assert.Equal(t, byte(tt.packet.Kind), result[0])
			assert.Equal(t, tt.packet.Sequence, binary.BigEndian.Uint32(result[1:5]))
			assert.Equal(t, tt.packet.Timestamp, binary.BigEndian.Uint64(result[5:13]))
			assert.True(t, bytes.Equal(tt.packet.Payload, result[limits.HeaderSize:]))
		})
	}
}

func TestParsePacketRoundTrip(t *testing.T) {
	original := NewDataPacket(4294967199, 1<<40, []byte("frame-slice"))

	data, err := original.Serialize()
	require.NoError(t, err)

	parsed, err := ParsePacket(data)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)

	// Parsed payload must not alias the input buffer.
	data[limits.HeaderSize] = 'X'
	assert.Equal(t, byte('f'), parsed.Payload[0])
}

func TestParsePacketFailsClosed(t *testing.T) {
	valid, err := NewDataPacket(1, 1, []byte{1}).Serialize()
	require.NoError(t, err)

	badKind := append([]byte(nil), valid...)
	badKind[0] = 0x7f

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"nil", nil, ErrPacketTooShort},
		{"one byte", []byte{byte(KindData)}, ErrPacketTooShort},
		{"truncated header", valid[:limits.HeaderSize-1], ErrPacketTooShort},
		{"unknown kind", badKind, ErrUnknownKind},
		{"zero kind", make([]byte, limits.HeaderSize), ErrUnknownKind},
		{"oversize", make([]byte, limits.MaxDatagram+1), limits.ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				packet, err := ParsePacket(tt.data)
				assert.Nil(t, packet)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			})
		})
	}
}

func TestParsePacketLegacyControl(t *testing.T) {
	pause, err := NewDataPacket(LegacyPauseSequence, 0, nil).Serialize()
	require.NoError(t, err)
	resume, err := NewDataPacket(LegacyResumeSequence, 0, nil).Serialize()
	require.NoError(t, err)

	// Without the option, reserved values are ordinary data.
	p, err := ParsePacket(pause)
	require.NoError(t, err)
	assert.Equal(t, KindData, p.Kind)

	p, err = ParsePacketWithOptions(pause, ParseOptions{LegacyControl: true})
	require.NoError(t, err)
	assert.Equal(t, KindPause, p.Kind)

	p, err = ParsePacketWithOptions(resume, ParseOptions{LegacyControl: true})
	require.NoError(t, err)
	assert.Equal(t, KindResume, p.Kind)
}

func TestLegacyControlKeepsHeaderLayout(t *testing.T) {
	// A 12 byte sequence+timestamp datagram without the kind byte.
	old := make([]byte, 12)
	binary.BigEndian.PutUint32(old[0:4], LegacyPauseSequence)

	_, err := ParsePacketWithOptions(old, ParseOptions{LegacyControl: true})
	assert.ErrorIs(t, err, ErrPacketTooShort)
}

func TestFrameArithmetic(t *testing.T) {
	tests := []struct {
		seq   uint32
		frame uint32
		sub   uint32
	}{
		{0, 0, 0},
		{99, 0, 99},
		{100, 1, 0},
		{249, 2, 49},
		{MaxDataSequence, 42949671, 99},
	}
	for _, tt := range tests {
		p := NewDataPacket(tt.seq, 0, nil)
		assert.Equal(t, tt.frame, p.FrameIndex(), "frame of %d", tt.seq)
		assert.Equal(t, tt.sub, p.SubSequence(), "subseq of %d", tt.seq)
	}
	assert.Less(t, uint64(MaxDataSequence), uint64(LegacyResumeSequence))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "pause", KindPause.String())
	assert.Equal(t, "resume", KindResume.String())
	assert.Equal(t, "unknown(9)", Kind(9).String())
	assert.True(t, KindPause.IsControl())
	assert.True(t, KindResume.IsControl())
	assert.False(t, KindData.IsControl())
}
