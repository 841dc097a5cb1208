// Package packet decodes the fixed 1206-byte UDP datagram shared by the
// HDL-32E and HDL-64 spinning LiDAR sensors into typed views. It performs no
// calibration math and holds no sensor-model knowledge beyond the wire
// layout; that belongs to the hdl32 and hdl64 packages.
package packet

import (
	"encoding/binary"
	"errors"
	"iter"
)

// Size is the fixed length of a raw Velodyne UDP datagram.
const Size = 1206

const (
	blocksPerPacket  = 12
	pointsPerBlock   = 32
	blockStride      = 100
	pointStride      = 3
	blocksSectionLen = blocksPerPacket * blockStride // 1200
	timestampOffset  = blocksSectionLen
	statusIDOffset   = 1204
	statusValOffset  = 1205
)

// Block headers identifying which bank of lasers a firing block belongs to.
var (
	HeaderUpper = [2]byte{0xFF, 0xEE}
	HeaderLower = [2]byte{0xFF, 0xDD}
)

// ErrInvalidBlockHeader is returned when a firing block's two-byte header
// does not match a header the caller's sensor model accepts.
var ErrInvalidBlockHeader = errors.New("packet: invalid block header")

// ErrShortDatagram is returned when a UDP payload is shorter than Size.
var ErrShortDatagram = errors.New("packet: datagram shorter than 1206 bytes")

// RawPacket is an opaque view over one 1206-byte datagram. It holds a
// reference to the caller's buffer, not a copy; callers must not mutate or
// reuse the backing slice (or anything derived from a RawPacket built over
// it) past the point they're done with the packet.
type RawPacket struct {
	data []byte
}

// FromBytes validates that data is exactly Size bytes and wraps it as a
// RawPacket without copying. The caller retains ownership of data and must
// not mutate it while the RawPacket (or any Block/RawPoint derived from it)
// is still in use.
func FromBytes(data []byte) (*RawPacket, error) {
	if len(data) != Size {
		return nil, ErrShortDatagram
	}
	return &RawPacket{data: data}, nil
}

// StatusBytes is the single telemetry id/value pair attached to every
// datagram, consumed one pair per packet by the HDL-64 status accumulator.
type StatusBytes struct {
	ID    uint8
	Value uint8
}

// Meta is the per-packet metadata extracted alongside the point stream.
type Meta struct {
	// Azimuth of the packet's first block, in hundredths of a degree.
	Azimuth uint16
	// Timestamp in microseconds from the top of the hour.
	Timestamp uint32
	Status    StatusBytes
}

// RawPoint is one measurement slot within a firing block. Laser is the
// position of the measurement within the block (0..31), not a global laser
// index — the caller derives the global index from the block header.
type RawPoint struct {
	Distance  uint16
	Intensity uint8
	Laser     uint8
}

// Block is a lazy view over one 100-byte firing block.
type Block struct {
	Header  [2]byte
	Azimuth uint16
	raw     []byte // the 96 bytes of point data for this block
}

// Status returns the status id/value pair carried by this datagram.
func (p *RawPacket) Status() StatusBytes {
	return StatusBytes{ID: p.data[statusIDOffset], Value: p.data[statusValOffset]}
}

// Meta returns the packet's timestamp, leading azimuth and status bytes
// without iterating the firing blocks.
func (p *RawPacket) Meta() Meta {
	return Meta{
		Azimuth:   binary.LittleEndian.Uint16(p.data[2:4]),
		Timestamp: binary.LittleEndian.Uint32(p.data[timestampOffset : timestampOffset+4]),
		Status:    p.Status(),
	}
}

// Blocks yields the twelve firing blocks in wire order. It allocates
// nothing beyond the Block value itself.
func (p *RawPacket) Blocks() iter.Seq[Block] {
	return func(yield func(Block) bool) {
		for i := 0; i < blocksPerPacket; i++ {
			off := i * blockStride
			block := Block{
				Header:  [2]byte{p.data[off], p.data[off+1]},
				Azimuth: binary.LittleEndian.Uint16(p.data[off+2 : off+4]),
				raw:     p.data[off+4 : off+blockStride],
			}
			if !yield(block) {
				return
			}
		}
	}
}

// Points yields the up-to-32 non-empty raw points in this block. A point
// with a raw distance of zero means "no return" and is omitted.
func (b Block) Points() iter.Seq[RawPoint] {
	return func(yield func(RawPoint) bool) {
		for i := 0; i < pointsPerBlock; i++ {
			off := i * pointStride
			distance := binary.LittleEndian.Uint16(b.raw[off : off+2])
			if distance == 0 {
				continue
			}
			point := RawPoint{
				Distance:  distance,
				Intensity: b.raw[off+2],
				Laser:     uint8(i),
			}
			if !yield(point) {
				return
			}
		}
	}
}
