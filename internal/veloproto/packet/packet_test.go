package packet

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPacket returns a zeroed 1206-byte buffer with the given block-0
// header/azimuth and a single point at the given laser slot set.
func buildPacket(header [2]byte, azimuth uint16, laser int, distance uint16, intensity uint8) []byte {
	buf := make([]byte, Size)
	buf[0], buf[1] = header[0], header[1]
	binary.LittleEndian.PutUint16(buf[2:4], azimuth)
	off := 4 + laser*pointStride
	binary.LittleEndian.PutUint16(buf[off:off+2], distance)
	buf[off+2] = intensity
	return buf
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, Size-1))
	require.ErrorIs(t, err, ErrShortDatagram)
}

func TestBlocksYieldsTwelve(t *testing.T) {
	raw, err := FromBytes(buildPacket(HeaderUpper, 0, 0, 500, 200))
	require.NoError(t, err)

	count := 0
	for range raw.Blocks() {
		count++
	}
	assert.Equal(t, 12, count)
}

func TestZeroDistanceOmitted(t *testing.T) {
	raw, err := FromBytes(make([]byte, Size))
	require.NoError(t, err)

	for block := range raw.Blocks() {
		for range block.Points() {
			t.Fatal("expected no points for an all-zero packet")
		}
	}
}

func TestPointsYieldsNonZeroOnly(t *testing.T) {
	raw, err := FromBytes(buildPacket(HeaderUpper, 0x1234, 5, 500, 200))
	require.NoError(t, err)

	var points []RawPoint
	for block := range raw.Blocks() {
		for p := range block.Points() {
			points = append(points, p)
		}
		break // only block 0 has data
	}
	require.Len(t, points, 1)
	assert.EqualValues(t, 5, points[0].Laser)
	assert.EqualValues(t, 500, points[0].Distance)
	assert.EqualValues(t, 200, points[0].Intensity)
}

func TestMetaFields(t *testing.T) {
	buf := buildPacket(HeaderUpper, 0x2710, 0, 1, 1)
	binary.LittleEndian.PutUint32(buf[timestampOffset:timestampOffset+4], 123456)
	buf[statusIDOffset] = 'H'
	buf[statusValOffset] = 42

	raw, err := FromBytes(buf)
	require.NoError(t, err)

	meta := raw.Meta()
	assert.EqualValues(t, 0x2710, meta.Azimuth)
	assert.EqualValues(t, 123456, meta.Timestamp)
	assert.Equal(t, StatusBytes{ID: 'H', Value: 42}, meta.Status)
}
