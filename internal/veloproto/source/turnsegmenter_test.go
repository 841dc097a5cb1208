package source

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

type azimuthPacket struct {
	azimuth uint16
}

func newAzimuthSource(t *testing.T, pkts []azimuthPacket) *fakeSource {
	t.Helper()
	fs := &fakeSource{}
	for _, p := range pkts {
		buf := make([]byte, packet.Size)
		for b := 0; b < 12; b++ {
			boff := b * 100
			buf[boff], buf[boff+1] = packet.HeaderUpper[0], packet.HeaderUpper[1]
			binary.LittleEndian.PutUint16(buf[boff+2:boff+4], p.azimuth)
		}
		raw, err := packet.FromBytes(buf)
		require.NoError(t, err)
		fs.packets = append(fs.packets, raw)
	}
	return fs
}

func TestTurnSegmenterSplitZeroWrapsOnZeroCrossing(t *testing.T) {
	var pkts []azimuthPacket
	for i := 0; i < 750; i++ {
		pkts = append(pkts, azimuthPacket{azimuth: uint16((i % 360) * 100)})
	}
	fs := newAzimuthSource(t, pkts)
	ps := NewHDL32PointSource(fs)
	seg := NewTurnSegmenter(ps, 0, func() struct{} { return struct{}{} })

	turn1, ok, err := seg.NextTurn()
	require.NoError(t, err)
	require.True(t, ok)
	turn2, ok, err := seg.NextTurn()
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, len(turn1.Points), len(turn2.Points))
}

func TestTurnSegmenterSplitAtHalfTurn(t *testing.T) {
	var pkts []azimuthPacket
	for i := 0; i < 720; i++ {
		pkts = append(pkts, azimuthPacket{azimuth: uint16((i % 360) * 100)})
	}
	fs := newAzimuthSource(t, pkts)
	ps := NewHDL32PointSource(fs)
	seg := NewTurnSegmenter(ps, 18000, func() struct{} { return struct{}{} })

	_, ok, err := seg.NextTurn()
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTurnSegmenterReportsExhaustion(t *testing.T) {
	pkts := []azimuthPacket{{azimuth: 0}, {azimuth: 100}}
	fs := newAzimuthSource(t, pkts)
	ps := NewHDL32PointSource(fs)
	seg := NewTurnSegmenter(ps, 0, func() struct{} { return struct{}{} })

	_, ok, err := seg.NextTurn()
	require.NoError(t, err)
	assert.False(t, ok)
}
