package hdl64

import (
	"errors"

	"github.com/cartograph-labs/velodecode/internal/veloproto/packet"
)

// ErrInvalidBlockHeader is returned when a firing block's header is
// neither the upper nor the lower bank marker.
var ErrInvalidBlockHeader = errors.New("hdl64: invalid block header")

// FullPoint is a calibrated measurement ready for downstream consumption.
type FullPoint struct {
	X, Y, Z   float32
	LaserID   uint8
	Intensity uint8
	Timestamp uint32
}

// Projector turns raw points from one packet into FullPoints using a
// per-laser calibration table, filtering the duplicate return a laser
// reports in double-return mode.
type Projector struct {
	db          *CalibDb
	cache       [64]uint16
	prevAzimuth uint16
	haveAzimuth bool
}

// NewProjector returns a Projector that reads calibration constants from
// db. db is not copied; callers must not mutate it while the projector is
// in use, consistent with the accumulator handing out a read-only table
// once initialised.
func NewProjector(db *CalibDb) *Projector {
	return &Projector{db: db}
}

// Project decodes raw, calling emit once per surviving point. It returns
// the packet's metadata, or ErrInvalidBlockHeader if any block's header is
// neither the upper nor lower bank marker.
func (p *Projector) Project(raw *packet.RawPacket, emit func(FullPoint)) (packet.Meta, error) {
	meta := raw.Meta()
	timestamp := meta.Timestamp

	for block := range raw.Blocks() {
		var laserDelta uint8
		switch block.Header {
		case packet.HeaderUpper:
			laserDelta = 0
		case packet.HeaderLower:
			laserDelta = 32
		default:
			return meta, ErrInvalidBlockHeader
		}
		azimSin, azimCos := sincos(float32(block.Azimuth) / 100)

		for rp := range block.Points() {
			laserID := rp.Laser + laserDelta
			cached := &p.cache[laserID]
			if p.haveAzimuth && block.Azimuth == p.prevAzimuth && *cached == rp.Distance {
				*cached = 0
				continue
			}
			*cached = rp.Distance

			calib := &p.db.Lasers[laserID]
			distance := float32(rp.Distance) * p.db.DistLSB

			x, y, z := computeXYZ(distance, azimSin, azimCos, calib)
			intensity := calibIntensity(rp.Intensity, rp.Distance, calib)

			emit(FullPoint{
				X:         x,
				Y:         y,
				Z:         z,
				LaserID:   laserID,
				Intensity: intensity,
				Timestamp: timestamp,
			})
		}
		p.prevAzimuth = block.Azimuth
		p.haveAzimuth = true
	}
	return meta, nil
}

// computeXYZ applies the laser's rotational, vertical and per-axis
// distance corrections. distance and the result are in centimetres before
// the final conversion to metres; the rotation step intentionally uses the
// already-rotated cosine when deriving the rotated sine, matching the
// sensor vendor's own reference math.
func computeXYZ(distance, azimSin, azimCos float32, calib *LaserCalib) (x, y, z float32) {
	calDistance := distance + calib.DistCorrection

	sin, cos := azimSin, azimCos
	cosRot := cos*calib.RotCorrCos + sin*calib.RotCorrSin
	sinRot := sin*calib.RotCorrCos - cosRot*calib.RotCorrSin

	xyDist := calDistance*calib.VertCorrCos - calib.VertOffset*calib.VertCorrSin
	xx := abs32(xyDist*sinRot - calib.HorizOffset*cosRot)
	yy := abs32(xyDist*cosRot + calib.HorizOffset*sinRot)

	var dcx, dcy float32
	if calDistance > 2500 {
		dcx, dcy = calib.DistCorrection, calib.DistCorrection
	} else {
		dcx = (calib.DistCorrection-calib.DistCorrX)*(xx-240)/(2504-240) + calib.DistCorrX
		dcy = (calib.DistCorrection-calib.DistCorrY)*(yy-193)/(2504-193) + calib.DistCorrY
	}

	xyX := (distance+dcx)*calib.VertCorrCos - calib.VertOffset*calib.VertCorrSin
	x = xyX*sinRot - calib.HorizOffset*cosRot

	xyY := (distance+dcy)*calib.VertCorrCos - calib.VertOffset*calib.VertCorrSin
	y = xyY*cosRot + calib.HorizOffset*sinRot

	z = calDistance*calib.VertCorrSin + calib.VertOffset*calib.VertCorrCos

	return x / 100, y / 100, z / 100
}

func calibIntensity(intensity uint8, rawDistance uint16, calib *LaserCalib) uint8 {
	t1 := 1 - calib.FocalDist/13100
	t2 := 1 - float32(rawDistance)/65535
	t3 := t1*t1 - t2*t2

	base := int32(intensity) - int32(calib.MinIntensity)
	if base < 0 {
		base = 0
	}
	res := float32(base) + 256*calib.FocalSlope*abs32(t3)
	switch {
	case res > 255:
		return 255
	case res < 0:
		return 0
	default:
		return uint8(res)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
