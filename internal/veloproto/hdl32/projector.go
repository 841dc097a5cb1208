// Package hdl32 projects raw firing-block measurements from a 32-laser
// spinning sensor into calibrated Cartesian points. The HDL-32E carries no
// per-unit calibration beyond a fixed vertical-angle table, so unlike its
// 64-laser sibling this package needs no status accumulator.
package hdl32

import (
	"errors"
	"math"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// ErrWrongHeader is returned when a firing block's header is not the
// upper-bank marker the HDL-32E always uses.
var ErrWrongHeader = errors.New("hdl32: block header is not the upper-bank marker")

// FullPoint is a calibrated measurement ready for downstream consumption.
type FullPoint struct {
	X, Y, Z   float32
	LaserID   uint8
	Intensity uint8
	Timestamp uint32
}

// Projector turns raw points from one packet into FullPoints, filtering the
// duplicate return a laser reports in double-return mode.
type Projector struct {
	cache       [32]uint16
	prevAzimuth uint16
	haveAzimuth bool
}

// NewProjector returns a Projector ready to process a fresh packet stream.
func NewProjector() *Projector {
	return &Projector{}
}

// Project decodes raw, calling emit once per surviving point. It returns the
// packet's metadata, or ErrWrongHeader if any block's header is not the
// HDL-32E's upper-bank marker.
func (p *Projector) Project(raw *packet.RawPacket, emit func(FullPoint)) (packet.Meta, error) {
	meta := raw.Meta()
	timestamp := meta.Timestamp

	for block := range raw.Blocks() {
		if block.Header != packet.HeaderUpper {
			return meta, ErrWrongHeader
		}
		azimSin, azimCos := sincos(float32(block.Azimuth) / 100)

		for rp := range block.Points() {
			laser := rp.Laser
			cached := &p.cache[laser]
			if p.haveAzimuth && block.Azimuth == p.prevAzimuth && *cached == rp.Distance {
				*cached = 0
				continue
			}
			*cached = rp.Distance

			distance := float32(rp.Distance) / 500
			vertSin, vertCos := sincos(verticalAngles[laser])

			x, y, z := computeXYZ(distance, azimSin, azimCos, vertSin, vertCos)

			emit(FullPoint{
				X:         x,
				Y:         y,
				Z:         z,
				LaserID:   laser,
				Intensity: rp.Intensity,
				Timestamp: timestamp,
			})
		}
		p.prevAzimuth = block.Azimuth
		p.haveAzimuth = true
	}
	return meta, nil
}

func computeXYZ(dist, azimSin, azimCos, vertSin, vertCos float32) (x, y, z float32) {
	t := dist * vertCos
	return t * azimSin, t * azimCos, dist * vertSin
}

func sincos(degrees float32) (sin, cos float32) {
	rad := float64(toRadians(degrees))
	s, c := math.Sincos(rad)
	return float32(s), float32(c)
}

func toRadians(degrees float32) float32 {
	return degrees * float32(math.Pi) / 180
}
